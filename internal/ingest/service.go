package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"photoline/internal/faults"
	"photoline/internal/logging"
	"photoline/internal/media/compress"
	"photoline/internal/media/normalize"
	"photoline/internal/media/orientation"
	"photoline/internal/metrics"
	"photoline/internal/objectkey"
	"photoline/internal/services"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

// Authorizer resolves an authenticated identity to an approved member.
type Authorizer interface {
	Authorize(ctx context.Context, authUserID string) (*store.User, error)
}

// forgetter is implemented by gates that cache approval decisions.
type forgetter interface {
	Forget(authUserID string)
}

// Ledger records image rows around the upload.
type Ledger interface {
	ReserveImage(ctx context.Context, in store.Reservation) (*store.Image, error)
	CompleteImage(ctx context.Context, id int64, url string) error
	AbandonImage(ctx context.Context, id int64, code string) error
}

// Submission is one raw upload.
type Submission struct {
	Data         []byte
	ContentType  string
	Filename     string
	DeclaredSize int64
	AuthUserID   string
	// Orientation overrides the embedded EXIF tag when set.
	Orientation orientation.Tag
	Progress    objectstore.ProgressFunc
}

// Result describes a stored image.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	ImageID  int64  `json:"imageId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int64  `json:"bytes"`
	Quality  int    `json:"quality"`
}

// Options wires a Service.
type Options struct {
	Gate       Authorizer
	Ledger     Ledger
	Normalizer *normalize.Normalizer
	Compressor *compress.Compressor
	Storage    objectstore.Store
	Keys       *objectkey.Allocator
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	Observers  []Observer
	Now        func() time.Time

	MaxUploadBytes int64
	BudgetBytes    int64
	AcceptedTypes  []string
}

// Service runs submissions through the pipeline.
type Service struct {
	gate       Authorizer
	ledger     Ledger
	normalizer *normalize.Normalizer
	compressor *compress.Compressor
	storage    objectstore.Store
	keys       *objectkey.Allocator
	metrics    metrics.Recorder
	logger     *slog.Logger
	observers  []Observer
	now        func() time.Time

	maxBytes int64
	budget   int64
	accepted []string
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Gate == nil:
		return nil, errors.New("ingest: approval gate is required")
	case opts.Ledger == nil:
		return nil, errors.New("ingest: ledger is required")
	case opts.Normalizer == nil:
		return nil, errors.New("ingest: normalizer is required")
	case opts.Compressor == nil:
		return nil, errors.New("ingest: compressor is required")
	case opts.Storage == nil:
		return nil, errors.New("ingest: object store is required")
	case opts.MaxUploadBytes <= 0:
		return nil, errors.New("ingest: max upload bytes must be positive")
	case opts.BudgetBytes <= 0 || opts.BudgetBytes > opts.MaxUploadBytes:
		return nil, fmt.Errorf("ingest: budget %d must be within (0, %d]", opts.BudgetBytes, opts.MaxUploadBytes)
	case len(opts.AcceptedTypes) == 0:
		return nil, errors.New("ingest: accepted content types are required")
	}

	svc := &Service{
		gate:       opts.Gate,
		ledger:     opts.Ledger,
		normalizer: opts.Normalizer,
		compressor: opts.Compressor,
		storage:    opts.Storage,
		keys:       opts.Keys,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		observers:  slices.Clone(opts.Observers),
		now:        opts.Now,
		maxBytes:   opts.MaxUploadBytes,
		budget:     opts.BudgetBytes,
		accepted:   slices.Clone(opts.AcceptedTypes),
	}
	if svc.logger == nil {
		svc.logger = logging.NewNop()
	}
	svc.logger = logging.NewComponentLogger(svc.logger, "ingest")
	if svc.metrics == nil {
		svc.metrics = metrics.Noop{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.keys == nil {
		svc.keys = objectkey.NewAllocator(objectkey.WithLogger(svc.logger))
	}
	return svc, nil
}

// Submit runs sub through every stage and returns the stored image. Errors
// are *faults.Error values.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	r := &run{
		svc:     s,
		ctx:     ctx,
		logger:  logging.WithContext(ctx, s.logger),
		state:   StateUnauthenticated,
		entered: s.now(),
	}
	result, err := r.execute(sub)
	s.count(err)
	return result, err
}

func (s *Service) count(err error) {
	switch {
	case err == nil:
		s.metrics.IncRequest("success", "")
	case faults.IsRejection(err):
		s.metrics.IncRequest("rejected", string(faults.CodeOf(err)))
	default:
		s.metrics.IncRequest("failure", string(faults.CodeOf(err)))
	}
}

// Admit checks that authUserID belongs to an approved member without reading
// any image data. Transports call it before accepting a request body; Submit
// checks again.
func (s *Service) Admit(ctx context.Context, authUserID string) error {
	if _, err := s.gate.Authorize(ctx, authUserID); err != nil {
		s.count(err)
		return err
	}
	return nil
}

// ForgetApproval drops any cached approval decision for authUserID so the
// next submission reads the member directory.
func (s *Service) ForgetApproval(authUserID string) {
	if f, ok := s.gate.(forgetter); ok {
		f.Forget(authUserID)
	}
}

// validate checks the request itself before any decoding.
func (s *Service) validate(sub Submission) error {
	if len(sub.Data) == 0 {
		return faults.Wrap(faults.FileRequired, string(StateApproved), "validate request", "no image data", nil)
	}
	size := max(int64(len(sub.Data)), sub.DeclaredSize)
	if size > s.maxBytes {
		return faults.Wrap(faults.FileTooLarge, string(StateApproved), "validate request",
			fmt.Sprintf("%d bytes exceeds limit of %d", size, s.maxBytes), nil)
	}
	declared := objectstore.NormalizeContentType(sub.ContentType)
	if declared == "" {
		declared = objectstore.NormalizeContentType(http.DetectContentType(sub.Data))
	}
	if !slices.Contains(s.accepted, declared) {
		return faults.Wrap(faults.InvalidFileType, string(StateApproved), "validate request",
			fmt.Sprintf("content type %q is not an accepted image type", declared), nil)
	}
	return nil
}

func handleFor(user *store.User) string {
	if user.Email != "" {
		return objectkey.Handle(user.Email)
	}
	return objectkey.Handle(user.Username)
}

// settleable reports whether a failed upload definitely left nothing in
// storage. Timeouts, network failures, cancellations and unreadable
// responses may have stored the object, so those rows stay pending for the
// reconcile sweep.
func settleable(err error) bool {
	switch faults.CodeOf(err) {
	case faults.StorageRejected, faults.StorageContentType, faults.StorageTooLarge:
		return true
	default:
		return false
	}
}

// run carries the state of one submission.
type run struct {
	svc       *Service
	ctx       context.Context
	logger    *slog.Logger
	state     State
	lastState State
	entered   time.Time
}

func (r *run) execute(sub Submission) (*Result, error) {
	s := r.svc

	user, err := s.gate.Authorize(r.ctx, sub.AuthUserID)
	if err != nil {
		if faults.CodeOf(err) == faults.UserNotApproved {
			r.advance(StateUnapproved)
		}
		return nil, r.fail(err)
	}
	r.ctx = services.WithUserID(r.ctx, user.ID)
	r.logger = r.logger.With(logging.String(logging.FieldUserID, user.ID))
	r.advance(StateApproved)

	if err := s.validate(sub); err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateNormalizing)
	normalized, err := s.normalizer.Normalize(sub.Data, sub.Orientation)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateCompressing)
	fitted, err := s.compressor.Fit(normalized, s.budget)
	if err != nil {
		return nil, r.fail(err)
	}
	if fitted != normalized {
		r.logger.Debug("image compressed to budget",
			logging.Int64("from_bytes", normalized.Size()),
			logging.Int64("to_bytes", fitted.Size()),
			logging.Int("quality", fitted.Quality),
			logging.Int("width", fitted.Width),
			logging.Int("height", fitted.Height),
		)
	}

	r.advance(StateUploading)
	key, err := s.keys.Allocate(handleFor(user), s.now())
	if err != nil {
		return nil, r.fail(faults.Wrap(faults.ProcessFailed, string(StateUploading), "allocate key", "", err))
	}
	r.ctx = services.WithStorageKey(r.ctx, key.String())
	r.logger = r.logger.With(logging.String(logging.FieldStorageKey, key.String()))

	reserved, err := s.ledger.ReserveImage(r.ctx, store.Reservation{
		UserID:     user.ID,
		StorageKey: key.String(),
		Width:      fitted.Width,
		Height:     fitted.Height,
		ByteSize:   fitted.Size(),
	})
	if err != nil {
		return nil, r.fail(faults.Wrap(faults.DBInsertFailed, string(StateUploading), "reserve image row", "", err))
	}

	stored, err := s.storage.Put(r.ctx, key.String(), fitted.Data, fitted.ContentType(), r.progress(sub.Progress))
	if err != nil {
		r.settleFailedUpload(reserved.ID, err)
		return nil, r.fail(err)
	}
	s.metrics.ObserveUploadBytes(fitted.Size())

	r.advance(StatePersisting)
	// The object exists now; finish recording it even if the caller left.
	if err := s.ledger.CompleteImage(context.WithoutCancel(r.ctx), reserved.ID, stored.URL); err != nil {
		fe := faults.WithURL(faults.Wrap(faults.DBInsertFailed, string(StatePersisting), "complete image row", "", err), stored.URL)
		r.logger.Error("object stored but row not completed",
			logging.Alert("stored_unrecorded"),
			logging.Int64("image_id", reserved.ID),
			logging.String("url", stored.URL),
		)
		return nil, r.fail(fe)
	}

	r.advance(StateDone)
	r.logger.Info("image stored",
		logging.String(logging.FieldEventType, "image_stored"),
		logging.String("url", stored.URL),
		logging.Int64("image_id", reserved.ID),
		logging.Int64("bytes", fitted.Size()),
	)
	return &Result{
		URL:      stored.URL,
		Filename: key.String(),
		ImageID:  reserved.ID,
		Width:    fitted.Width,
		Height:   fitted.Height,
		Bytes:    fitted.Size(),
		Quality:  fitted.Quality,
	}, nil
}

func (r *run) settleFailedUpload(imageID int64, uploadErr error) {
	if !settleable(uploadErr) {
		r.logger.Info("upload outcome unknown; row left pending for reconcile",
			logging.Int64("image_id", imageID),
			logging.String(logging.FieldErrorCode, string(faults.CodeOf(uploadErr))),
		)
		return
	}
	code := string(faults.CodeOf(uploadErr))
	if err := r.svc.ledger.AbandonImage(context.WithoutCancel(r.ctx), imageID, code); err != nil {
		logging.WarnWithContext(r.logger, "failed to mark image row abandoned", "abandon_failed",
			logging.Int64("image_id", imageID),
			logging.String(logging.FieldErrorHint, "the reconcile sweep will settle the row"),
			logging.String(logging.FieldImpact, "row stays pending until the next sweep"),
			logging.Error(err),
		)
	}
}

func (r *run) progress(next objectstore.ProgressFunc) objectstore.ProgressFunc {
	sampler := logging.NewProgressSampler(10)
	return func(p objectstore.Progress) {
		if sampler.ShouldLog(p.Percent(), string(StateUploading)) {
			r.logger.Debug("upload progress",
				logging.Int64("sent", p.Sent),
				logging.Int64("total", p.Total),
				logging.Int("percent", int(p.Percent())),
			)
		}
		if next != nil {
			next(p)
		}
	}
}

// advance moves to the next state and reports the transition.
func (r *run) advance(to State) {
	r.transition(Transition{To: to})
}

// fail moves to StateFailed and returns the registry error for err.
func (r *run) fail(err error) error {
	fe := faults.From(err)
	r.transition(Transition{To: StateFailed, Err: fe})

	attrs := []logging.Attr{
		logging.String(logging.FieldErrorCode, string(fe.Code)),
		logging.String("failed_in", string(r.lastState)),
		logging.Error(fe),
	}
	if def, ok := faults.Lookup(fe.Code); ok && len(def.Troubleshooting) > 0 {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, def.Troubleshooting[0]))
	}
	switch fe.ErrorKind() {
	case faults.CategoryAuthentication, faults.CategoryAuthorization, faults.CategoryValidation:
		r.logger.Info("submission refused", logging.Args(attrs...)...)
	default:
		if fe.Code == faults.RequestCanceled {
			r.logger.Info("submission canceled", logging.Args(attrs...)...)
			return fe
		}
		logging.ErrorWithContext(r.logger, "submission failed", "ingest_failure", attrs...)
	}
	return fe
}

func (r *run) transition(t Transition) {
	now := r.svc.now()
	t.From = r.state
	t.Elapsed = now.Sub(r.entered)
	r.lastState = r.state
	r.state = t.To
	r.entered = now
	if !t.To.Terminal() {
		r.ctx = services.WithStage(r.ctx, string(t.To))
	}

	switch t.From {
	case StateNormalizing, StateCompressing, StateUploading, StatePersisting:
		r.svc.metrics.ObserveStage(string(t.From), t.Elapsed)
	}
	r.logger.Debug("stage transition",
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String("from", string(t.From)),
		logging.String("to", string(t.To)),
		logging.Duration("elapsed", t.Elapsed),
	)
	for _, obs := range r.svc.observers {
		obs.Observe(r.ctx, t)
	}
}
