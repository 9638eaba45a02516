package objectstore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"photoline/internal/faults"
	"photoline/internal/services/objectstore"
	"photoline/internal/testsupport"
)

const testKey = "ada/09-03-2024-AbCdEf1234.jpg"

type recordedRequest struct {
	method      string
	path        string
	auth        string
	contentType string
	cache       string
	body        []byte
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{
		method:      req.Method,
		path:        req.URL.Path,
		auth:        req.Header.Get("Authorization"),
		contentType: req.Header.Get("Content-Type"),
		cache:       req.Header.Get("Cache-Control"),
		body:        body,
	})
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newHTTPStore(t *testing.T, handler http.HandlerFunc) (objectstore.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageURL(srv.URL, "secret"))
	store, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	return store, srv
}

func requireCode(t *testing.T, err error, want faults.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := faults.CodeOf(err); got != want {
		t.Fatalf("code = %s, want %s (err: %v)", got, want, err)
	}
}

func TestHTTPPutSuccess(t *testing.T) {
	rec := &recorder{}
	store, _ := newHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"url":"https://cdn.example.com/`+testKey+`","filename":"`+testKey+`"}`)
	})

	data := testsupport.Filler(256 << 10)
	var events []objectstore.Progress
	result, err := store.Put(context.Background(), testKey, data, "image/jpeg", func(p objectstore.Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.URL != "https://cdn.example.com/"+testKey || result.Key != testKey {
		t.Fatalf("result = %+v", result)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.method != http.MethodPut || req.path != "/"+testKey {
		t.Fatalf("request = %s %s", req.method, req.path)
	}
	if req.auth != "Bearer secret" {
		t.Fatalf("authorization = %q", req.auth)
	}
	if req.contentType != "image/jpeg" {
		t.Fatalf("content type = %q", req.contentType)
	}
	if len(req.body) != len(data) {
		t.Fatalf("body length = %d, want %d", len(req.body), len(data))
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	var last int64
	for _, ev := range events {
		if ev.Sent < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Sent, last)
		}
		if ev.Total != int64(len(data)) {
			t.Fatalf("progress total = %d, want %d", ev.Total, len(data))
		}
		last = ev.Sent
	}
	if last != int64(len(data)) {
		t.Fatalf("final progress = %d, want %d", last, len(data))
	}
}

func TestHTTPPutFallsBackToBaseURL(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing url", `{"filename":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, srv := newHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				_, _ = io.WriteString(w, tt.body)
			})
			result, err := store.Put(context.Background(), testKey, []byte("jpeg"), "image/jpeg", nil)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if result.URL != srv.URL+"/"+testKey {
				t.Fatalf("URL = %q, want %q", result.URL, srv.URL+"/"+testKey)
			}
		})
	}
}

func TestHTTPPutErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   faults.Code
	}{
		{"server error", http.StatusInternalServerError, "boom", faults.StorageUnavailable},
		{"bad gateway", http.StatusBadGateway, "", faults.StorageUnavailable},
		{"throttled", http.StatusTooManyRequests, "", faults.StorageUnavailable},
		{"forbidden", http.StatusForbidden, "denied", faults.StorageRejected},
		{"bad request", http.StatusBadRequest, "", faults.StorageRejected},
		{"undecodable body", http.StatusOK, "<html>", faults.StorageBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := store.Put(context.Background(), testKey, []byte("jpeg"), "image/jpeg", nil)
			requireCode(t, err, tt.want)
		})
	}
}

func TestHTTPPutBoundaryRejectsBeforeIO(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	t.Cleanup(srv.Close)
	cfg := testsupport.NewConfig(t,
		testsupport.WithStorageURL(srv.URL, ""),
		testsupport.WithUploadLimits(1024, 512),
	)
	store, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}

	tests := []struct {
		name        string
		contentType string
		size        int
		want        faults.Code
	}{
		{"text payload", "text/plain", 10, faults.StorageContentType},
		{"empty type", "", 10, faults.StorageContentType},
		{"over ceiling", "image/jpeg", 1025, faults.StorageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(context.Background(), testKey, testsupport.Filler(tt.size), tt.contentType, nil)
			requireCode(t, err, tt.want)
		})
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("boundary failures reached the server %d times", n)
	}
}

func TestHTTPPutTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	cfg := testsupport.NewConfig(t, testsupport.WithStorageURL(srv.URL, ""))
	cfg.Storage.TimeoutSeconds = 1
	store, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}

	started := time.Now()
	_, err = store.Put(context.Background(), testKey, []byte("jpeg"), "image/jpeg", nil)
	requireCode(t, err, faults.StorageTimeout)
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestHTTPPutCallerCancellation(t *testing.T) {
	store, _ := newHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Put(ctx, testKey, []byte("jpeg"), "image/jpeg", nil)
	requireCode(t, err, faults.RequestCanceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestHTTPPutNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithStorageURL(url, ""))
	store, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	_, err = store.Put(context.Background(), testKey, []byte("jpeg"), "image/jpeg", nil)
	requireCode(t, err, faults.StorageUnavailable)
}

func TestHTTPStat(t *testing.T) {
	store, srv := newHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/" + testKey:
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Cache-Control", objectstore.CacheControl)
			w.Header().Set("Content-Length", "4")
			_, _ = io.WriteString(w, "jpeg")
		case "/broken.jpg":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	found, err := store.Stat(ctx, testKey)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !found.Exists || found.Size != 4 || found.URL != srv.URL+"/"+testKey {
		t.Fatalf("Stat existing = %+v", found)
	}

	missing, err := store.Stat(ctx, "ada/missing.jpg")
	if err != nil {
		t.Fatalf("Stat missing: %v", err)
	}
	if missing.Exists {
		t.Fatal("missing object reported as present")
	}

	_, err = store.Stat(ctx, "broken.jpg")
	requireCode(t, err, faults.StorageUnavailable)
}

func TestNewRequiresStorageSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.BaseURL = ""
	if _, err := objectstore.New(context.Background(), cfg); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := objectstore.New(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNormalizeContentType(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "image/jpeg",
		" IMAGE/PNG ":              "image/png",
		"image/webp; charset=utf8": "image/webp",
		"":                         "",
		"not a type;;":             "",
	}
	for in, want := range tests {
		if got := objectstore.NormalizeContentType(in); got != want {
			t.Fatalf("NormalizeContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeS3 is a minimal path-style S3 endpoint holding objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	status  int
	rec     recorder
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		f.rec.record(r)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		last := f.rec.all()
		f.mu.Lock()
		f.objects[path] = last[len(last)-1].body
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		f.mu.Lock()
		data, ok := f.objects[path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Store(t *testing.T, fake *fakeS3) objectstore.Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
	cfg := testsupport.NewConfig(t, testsupport.WithS3Endpoint(srv.URL, "photos"))
	store, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	if store.Backend() != "s3" {
		t.Fatalf("backend = %q, want s3", store.Backend())
	}
	return store
}

func TestS3PutAndStat(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3Store(t, fake)
	ctx := context.Background()

	data := testsupport.Filler(4096)
	var last objectstore.Progress
	result, err := store.Put(ctx, testKey, data, "image/jpeg", func(p objectstore.Progress) { last = p })
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(result.URL, "/photos/"+testKey) {
		t.Fatalf("URL = %q", result.URL)
	}
	if last.Sent != int64(len(data)) || last.Total != int64(len(data)) {
		t.Fatalf("final progress = %+v", last)
	}

	reqs := fake.rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected one PUT, got %d", len(reqs))
	}
	if reqs[0].path != "/photos/"+testKey {
		t.Fatalf("path = %q", reqs[0].path)
	}
	if reqs[0].cache != objectstore.CacheControl {
		t.Fatalf("cache-control = %q", reqs[0].cache)
	}
	if reqs[0].contentType != "image/jpeg" {
		t.Fatalf("content type = %q", reqs[0].contentType)
	}

	stat, err := store.Stat(ctx, testKey)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !stat.Exists || stat.Size != int64(len(data)) {
		t.Fatalf("Stat = %+v", stat)
	}
	missing, err := store.Stat(ctx, "ada/missing.jpg")
	if err != nil {
		t.Fatalf("Stat missing: %v", err)
	}
	if missing.Exists {
		t.Fatal("missing object reported as present")
	}
}

func TestS3PutErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   faults.Code
	}{
		{http.StatusForbidden, faults.StorageRejected},
		{http.StatusServiceUnavailable, faults.StorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fake := &fakeS3{objects: map[string][]byte{}, status: tt.status}
			store := newS3Store(t, fake)
			_, err := store.Put(context.Background(), testKey, []byte("jpeg"), "image/jpeg", nil)
			requireCode(t, err, tt.want)
			if n := len(fake.rec.all()); n != 1 {
				t.Fatalf("expected a single attempt, got %d", n)
			}
		})
	}
}
