package daemon_test

import (
	"context"
	"testing"
	"time"

	"photoline/internal/api"
	"photoline/internal/daemon"
	"photoline/internal/ingest"
	"photoline/internal/services/objectstore"
	"photoline/internal/testsupport"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDaemonRunStop(t *testing.T) {
	f := newFixture(t)
	f.cfg.Reconcile.Enabled = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()
	waitFor(t, func() bool { return f.daemon.Running() && f.daemon.Addr() != "" })

	client, err := api.NewClient(f.daemon.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("status = %+v", status)
	}

	// A second instance over the same data directory must refuse to start.
	objects, err := objectstore.New(context.Background(), f.cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	svc, err := ingest.NewFromConfig(f.cfg, f.store, objects, nil, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	second, err := daemon.New(f.cfg, daemon.Deps{Store: f.store, Objects: objects, Ingest: svc})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Run(ctx); err == nil {
		t.Fatal("expected second instance to fail")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if f.daemon.Running() {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
