package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"photoline/internal/config"
	"photoline/internal/testsupport"
)

// storageWorker accepts PUT {key} and answers with the public URL.
type storageWorker struct {
	mu   sync.Mutex
	puts int
}

func (w *storageWorker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.NotFound(rw, r)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)
	w.mu.Lock()
	w.puts++
	w.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	_, _ = io.WriteString(rw, `{"url":"https://cdn.test/`+key+`"}`)
}

func (w *storageWorker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.puts
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	worker     *storageWorker
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	worker := &storageWorker{}
	srv := httptest.NewServer(worker)
	t.Cleanup(srv.Close)

	opts = append([]testsupport.ConfigOption{testsupport.WithStorageURL(srv.URL, "")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, worker: worker}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Fatalf("output missing %q:\n%s", w, output)
		}
	}
}
