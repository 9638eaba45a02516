package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"photoline/internal/approval"
	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/ingest"
	"photoline/internal/media/compress"
	"photoline/internal/media/normalize"
	"photoline/internal/metrics"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
	"photoline/internal/testsupport"
)

var keyPattern = regexp.MustCompile(`^ada/\d{2}-\d{2}-\d{4}-[A-Za-z0-9]{10}\.jpg$`)

// worker is an in-memory storage worker speaking the PUT {key} contract.
type worker struct {
	mu      sync.Mutex
	objects map[string][]byte
	status  int
	puts    int
	srv     *httptest.Server
}

func newWorker(t *testing.T) *worker {
	t.Helper()
	w := &worker{objects: map[string][]byte{}}
	w.srv = httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *worker) serve(rw http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	w.mu.Lock()
	defer w.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		w.puts++
		body, _ := io.ReadAll(r.Body)
		if w.status != 0 {
			rw.WriteHeader(w.status)
			return
		}
		w.objects[key] = body
		_, _ = io.WriteString(rw, `{"url":"https://cdn.test/`+key+`","filename":"`+key+`"}`)
	case http.MethodGet:
		data, ok := w.objects[key]
		if !ok {
			http.NotFound(rw, r)
			return
		}
		_, _ = rw.Write(data)
	}
}

func (w *worker) object(key string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.objects[key]
	return data, ok
}

func (w *worker) putCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.puts
}

type recorder struct {
	mu       sync.Mutex
	requests []string
	stages   []string
	bytes    []int64
}

func (r *recorder) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) IncRequest(outcome, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, outcome+":"+code)
}

func (r *recorder) ObserveUploadBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes = append(r.bytes, n)
}

func (r *recorder) IncReconcile(string) {}

var _ metrics.Recorder = (*recorder)(nil)

type harness struct {
	cfg         *config.Config
	store       *store.Store
	worker      *worker
	svc         *ingest.Service
	metrics     *recorder
	transitions []ingest.Transition
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	h := &harness{worker: newWorker(t), metrics: &recorder{}}
	opts = append([]testsupport.ConfigOption{testsupport.WithStorageURL(h.worker.srv.URL, "")}, opts...)
	h.cfg = testsupport.NewConfig(t, opts...)
	h.store = testsupport.MustOpenStore(t, h.cfg)

	objects := mustObjects(t, h.cfg)
	observer := ingest.ObserverFunc(func(_ context.Context, tr ingest.Transition) {
		h.transitions = append(h.transitions, tr)
	})
	var err error
	h.svc, err = ingest.NewFromConfig(h.cfg, h.store, objects, h.metrics, nil, observer)
	if err != nil {
		t.Fatalf("ingest.NewFromConfig: %v", err)
	}
	return h
}

func (h *harness) states() []ingest.State {
	out := make([]ingest.State, 0, len(h.transitions)+1)
	if len(h.transitions) > 0 {
		out = append(out, h.transitions[0].From)
	}
	for _, tr := range h.transitions {
		out = append(out, tr.To)
	}
	return out
}

func (h *harness) images(t *testing.T) []*store.Image {
	t.Helper()
	images, err := h.store.ListImages(context.Background(), store.ListFilter{})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	return images
}

func requireCode(t *testing.T, err error, want faults.Code) {
	t.Helper()
	if got := faults.CodeOf(err); got != want {
		t.Fatalf("code = %q, want %q (err: %v)", got, want, err)
	}
}

func statesEqual(a, b []ingest.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSubmitKeyUsesOwnerHandleAndDate(t *testing.T) {
	w := newWorker(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageURL(w.srv.URL, ""))
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreateUser(t, st, "auth-alice", "alice@example.com", true)

	opts, err := ingest.OptionsFromConfig(cfg, st, mustObjects(t, cfg), nil, nil)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	opts.Now = func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }
	svc, err := ingest.New(opts)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	result, err := svc.Submit(context.Background(), ingest.Submission{
		Data:        testsupport.EncodeJPEG(t, testsupport.Quadrants(200, 150), 90),
		ContentType: "image/jpeg",
		AuthUserID:  "auth-alice",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pinned := regexp.MustCompile(`^alice/05-03-2024-[A-Za-z0-9]{10}\.jpg$`)
	if !pinned.MatchString(result.Filename) {
		t.Fatalf("filename %q does not match %s", result.Filename, pinned)
	}
	if _, ok := w.object(result.Filename); !ok {
		t.Fatalf("object %q not in storage", result.Filename)
	}
}

func TestAdmitChecksApprovalOnly(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)
	testsupport.MustCreateUser(t, h.store, "auth-wait", "wait@example.com", false)

	tests := []struct {
		authID string
		want   faults.Code
	}{
		{"", faults.AuthSessionRequired},
		{"auth-unknown", faults.UserNotApproved},
		{"auth-wait", faults.UserNotApproved},
		{"auth-ada", ""},
	}
	for _, tt := range tests {
		t.Run(tt.authID, func(t *testing.T) {
			requireCode(t, h.svc.Admit(context.Background(), tt.authID), tt.want)
		})
	}
	if h.worker.putCount() != 0 || len(h.images(t)) != 0 {
		t.Fatal("Admit must not touch storage or the ledger")
	}
}

func TestSubmitEndToEnd(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-ada", "Ada@example.com", true)

	// 240x320 stored pixels with orientation 6 display as 320x240, over the
	// 256x192 ceiling.
	raw := testsupport.OrientedJPEG(t, testsupport.Quadrants(240, 320), 6, false)
	var progress []objectstore.Progress
	result, err := h.svc.Submit(context.Background(), ingest.Submission{
		Data:        raw,
		ContentType: "image/jpeg",
		Filename:    "IMG_0001.JPG",
		AuthUserID:  "auth-ada",
		Progress:    func(p objectstore.Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !keyPattern.MatchString(result.Filename) {
		t.Fatalf("filename %q does not match key pattern", result.Filename)
	}
	if result.URL != "https://cdn.test/"+result.Filename {
		t.Fatalf("url = %q", result.URL)
	}
	if result.Width != 256 || result.Height != 192 {
		t.Fatalf("dimensions = %dx%d, want 256x192", result.Width, result.Height)
	}

	stored, ok := h.worker.object(result.Filename)
	if !ok {
		t.Fatalf("object %q not in storage", result.Filename)
	}
	if int64(len(stored)) != result.Bytes || result.Bytes > h.cfg.Limits.UploadBudgetBytes {
		t.Fatalf("stored %d bytes, result reports %d", len(stored), result.Bytes)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("decode stored object: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 256 || b.Dy() != 192 {
		t.Fatalf("stored object is %dx%d", b.Dx(), b.Dy())
	}

	row, err := h.store.ImageByID(context.Background(), result.ImageID)
	if err != nil {
		t.Fatalf("ImageByID: %v", err)
	}
	if row.Status != store.StatusStored || row.URL != result.URL || row.StorageKey != result.Filename {
		t.Fatalf("row = %+v", row)
	}

	if len(progress) == 0 || progress[len(progress)-1].Sent != result.Bytes {
		t.Fatalf("progress events = %+v", progress)
	}

	want := []ingest.State{
		ingest.StateUnauthenticated,
		ingest.StateApproved,
		ingest.StateNormalizing,
		ingest.StateCompressing,
		ingest.StateUploading,
		ingest.StatePersisting,
		ingest.StateDone,
	}
	if got := h.states(); !statesEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if len(h.metrics.requests) != 1 || h.metrics.requests[0] != "success:" {
		t.Fatalf("request metrics = %v", h.metrics.requests)
	}
	if len(h.metrics.stages) != 4 {
		t.Fatalf("stage metrics = %v", h.metrics.stages)
	}
	if len(h.metrics.bytes) != 1 || h.metrics.bytes[0] != result.Bytes {
		t.Fatalf("upload byte metrics = %v", h.metrics.bytes)
	}
}

func TestSubmitApprovalGate(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-waiting", "wait@example.com", false)
	raw := testsupport.EncodeJPEG(t, testsupport.Quadrants(128, 96), 90)

	tests := []struct {
		name   string
		authID string
		want   faults.Code
		states []ingest.State
	}{
		{
			name:   "no session",
			authID: "",
			want:   faults.AuthSessionRequired,
			states: []ingest.State{ingest.StateUnauthenticated, ingest.StateFailed},
		},
		{
			name:   "unknown member",
			authID: "auth-nobody",
			want:   faults.UserNotApproved,
			states: []ingest.State{ingest.StateUnauthenticated, ingest.StateUnapproved, ingest.StateFailed},
		},
		{
			name:   "unapproved member",
			authID: "auth-waiting",
			want:   faults.UserNotApproved,
			states: []ingest.State{ingest.StateUnauthenticated, ingest.StateUnapproved, ingest.StateFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.transitions = nil
			result, err := h.svc.Submit(context.Background(), ingest.Submission{
				Data:        raw,
				ContentType: "image/jpeg",
				AuthUserID:  tt.authID,
			})
			if result != nil {
				t.Fatalf("expected no result, got %+v", result)
			}
			requireCode(t, err, tt.want)
			if got := h.states(); !statesEqual(got, tt.states) {
				t.Fatalf("states = %v, want %v", got, tt.states)
			}
		})
	}
	if n := h.worker.putCount(); n != 0 {
		t.Fatalf("refused submissions reached storage %d times", n)
	}
	if images := h.images(t); len(images) != 0 {
		t.Fatalf("refused submissions created %d rows", len(images))
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	h := newHarness(t, testsupport.WithUploadLimits(64<<10, 32<<10))
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)
	jpegData := testsupport.EncodeJPEG(t, testsupport.Quadrants(128, 96), 90)

	tests := []struct {
		name string
		sub  ingest.Submission
		want faults.Code
	}{
		{"empty data", ingest.Submission{ContentType: "image/jpeg"}, faults.FileRequired},
		{"body over ceiling", ingest.Submission{Data: testsupport.Filler(64<<10 + 1), ContentType: "image/jpeg"}, faults.FileTooLarge},
		{"declared over ceiling", ingest.Submission{Data: jpegData, ContentType: "image/jpeg", DeclaredSize: 1 << 30}, faults.FileTooLarge},
		{"pdf", ingest.Submission{Data: jpegData, ContentType: "application/pdf"}, faults.InvalidFileType},
		{"sniffed text", ingest.Submission{Data: []byte("hello world")}, faults.InvalidFileType},
		{"undecodable image", ingest.Submission{Data: []byte("not really a jpeg"), ContentType: "image/jpeg"}, faults.ImageLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sub.AuthUserID = "auth-ada"
			_, err := h.svc.Submit(context.Background(), tt.sub)
			requireCode(t, err, tt.want)
		})
	}
	if n := h.worker.putCount(); n != 0 {
		t.Fatalf("invalid submissions reached storage %d times", n)
	}
}

func TestSubmitResolutionRejection(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)

	_, err := h.svc.Submit(context.Background(), ingest.Submission{
		Data:        testsupport.EncodeJPEG(t, testsupport.Quadrants(32, 24), 90),
		ContentType: "image/jpeg",
		AuthUserID:  "auth-ada",
	})
	requireCode(t, err, faults.ResolutionTooLow)
	if !faults.IsRejection(err) {
		t.Fatal("resolution failure should be a rejection")
	}
	body := faults.Response(err, false)
	if !body.Rejected || body.Redirect == "" {
		t.Fatalf("response body = %+v", body)
	}
	if h.metrics.requests[0] != "rejected:"+string(faults.ResolutionTooLow) {
		t.Fatalf("request metrics = %v", h.metrics.requests)
	}
}

func TestSubmitCompressesToBudget(t *testing.T) {
	const budget = 16 << 10
	h := newHarness(t, testsupport.WithUploadLimits(1<<20, budget))
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)

	raw := testsupport.EncodePNG(t, testsupport.Noise(256, 192, 7))
	result, err := h.svc.Submit(context.Background(), ingest.Submission{
		Data:        raw,
		ContentType: "image/png",
		AuthUserID:  "auth-ada",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Bytes > budget {
		t.Fatalf("result is %d bytes, budget %d", result.Bytes, budget)
	}
	if result.Width < 64 && result.Height < 48 {
		t.Fatalf("compressed below the floor: %dx%d", result.Width, result.Height)
	}
}

func TestSubmitStorageFailureSettlesRow(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		want       faults.Code
		wantStatus store.ImageStatus
	}{
		{"rejected upload is abandoned", http.StatusForbidden, faults.StorageRejected, store.StatusAbandoned},
		{"unavailable store stays pending", http.StatusServiceUnavailable, faults.StorageUnavailable, store.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.worker.status = tt.status
			testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)

			_, err := h.svc.Submit(context.Background(), ingest.Submission{
				Data:        testsupport.EncodeJPEG(t, testsupport.Quadrants(128, 96), 90),
				ContentType: "image/jpeg",
				AuthUserID:  "auth-ada",
			})
			requireCode(t, err, tt.want)

			images := h.images(t)
			if len(images) != 1 {
				t.Fatalf("expected one row, got %d", len(images))
			}
			if images[0].Status != tt.wantStatus {
				t.Fatalf("row status = %s, want %s", images[0].Status, tt.wantStatus)
			}
			if tt.wantStatus == store.StatusAbandoned && images[0].ErrorCode != string(tt.want) {
				t.Fatalf("row error code = %q", images[0].ErrorCode)
			}
		})
	}
}

// failingLedger stores reservations but refuses to complete them.
type failingLedger struct {
	*store.Store
}

func (failingLedger) CompleteImage(context.Context, int64, string) error {
	return errors.New("database is locked")
}

func TestSubmitPersistFailureCarriesURL(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)

	normalizer, err := normalize.New(ingest.NormalizePolicy(h.cfg))
	if err != nil {
		t.Fatalf("normalize.New: %v", err)
	}
	compressor, err := compress.New(ingest.CompressPolicy(h.cfg))
	if err != nil {
		t.Fatalf("compress.New: %v", err)
	}
	svc, err := ingest.New(ingest.Options{
		Gate:           approval.New(h.store, 0, 0, nil),
		Ledger:         failingLedger{h.store},
		Normalizer:     normalizer,
		Compressor:     compressor,
		Storage:        mustObjects(t, h.cfg),
		MaxUploadBytes: h.cfg.Limits.MaxUploadBytes,
		BudgetBytes:    h.cfg.Limits.UploadBudgetBytes,
		AcceptedTypes:  h.cfg.Storage.AllowedContentTypes,
	})
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	_, err = svc.Submit(context.Background(), ingest.Submission{
		Data:        testsupport.EncodeJPEG(t, testsupport.Quadrants(128, 96), 90),
		ContentType: "image/jpeg",
		AuthUserID:  "auth-ada",
	})
	requireCode(t, err, faults.DBInsertFailed)
	fe := faults.From(err)
	if !strings.HasPrefix(fe.URL, "https://cdn.test/ada/") {
		t.Fatalf("error URL = %q, want the stored object URL", fe.URL)
	}
	if body := faults.Response(err, false); body.URL != fe.URL {
		t.Fatalf("response URL = %q", body.URL)
	}
	images := h.images(t)
	if len(images) != 1 || images[0].Status != store.StatusPending {
		t.Fatalf("rows = %+v, want one pending row for reconcile", images)
	}
}

func TestSubmitCallerCancellation(t *testing.T) {
	h := newHarness(t)
	testsupport.MustCreateUser(t, h.store, "auth-ada", "ada@example.com", true)
	raw := testsupport.EncodeJPEG(t, testsupport.Quadrants(128, 96), 90)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := ingest.NewFromConfig(h.cfg, h.store, cancelingStore{inner: mustObjects(t, h.cfg), cancel: cancel}, nil, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	_, err = svc.Submit(ctx, ingest.Submission{Data: raw, ContentType: "image/jpeg", AuthUserID: "auth-ada"})
	requireCode(t, err, faults.RequestCanceled)

	// The outcome is unknown, so the reserved row waits for reconcile.
	images := h.images(t)
	if len(images) != 1 || images[0].Status != store.StatusPending {
		t.Fatalf("rows = %+v, want one pending row", images)
	}
}

func mustObjects(t *testing.T, cfg *config.Config) objectstore.Store {
	t.Helper()
	objects, err := objectstore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.New: %v", err)
	}
	return objects
}

// cancelingStore cancels the caller's context before delegating.
type cancelingStore struct {
	inner  objectstore.Store
	cancel func()
}

func (c cancelingStore) Put(ctx context.Context, key string, data []byte, contentType string, progress objectstore.ProgressFunc) (objectstore.Result, error) {
	c.cancel()
	return c.inner.Put(ctx, key, data, contentType, progress)
}

func (c cancelingStore) Stat(ctx context.Context, key string) (objectstore.StatResult, error) {
	return c.inner.Stat(ctx, key)
}

func (c cancelingStore) Backend() string { return c.inner.Backend() }
