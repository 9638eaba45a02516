package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"photoline/internal/api"
	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/ingest"
	"photoline/internal/logging"
	"photoline/internal/media/orientation"
	"photoline/internal/services"
	"photoline/internal/store"
)

const (
	defaultImageLimit = 50
	maxImageLimit     = 200
	// multipartOverhead is slack for boundaries and the small text fields.
	multipartOverhead = 64 << 10
)

type apiServer struct {
	logger   *slog.Logger
	daemon   *Daemon
	handler  http.Handler
	maxBytes int64
	details  bool
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		maxBytes: cfg.Limits.MaxUploadBytes,
		details:  strings.EqualFold(cfg.Logging.Level, "debug"),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/images", authMiddleware(token, srv.handleUpload))
	mux.HandleFunc("GET /api/images", authMiddleware(token, srv.handleImages))
	mux.HandleFunc("GET /api/errors", authMiddleware(token, srv.handleErrors))
	mux.HandleFunc("GET /api/errors/{code}", authMiddleware(token, srv.handleError))
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("DELETE /api/approvals/{authUserID}", authMiddleware(token, srv.handleForgetApproval))
	mux.Handle("GET /metrics", d.metrics.Handler())

	srv.handler = srv.withRequestID(mux)
	return srv
}

func (s *apiServer) newServer() *http.Server {
	return &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

// withRequestID tags every request with a correlation id, honouring one
// supplied by the caller.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(api.HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(api.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()

	authID := strings.TrimSpace(r.Header.Get(api.HeaderAuthUserID))
	if err := s.daemon.ingest.Admit(ctx, authID); err != nil {
		logger.Info("upload request refused before body",
			logging.String(logging.FieldErrorCode, string(faults.CodeOf(err))),
		)
		s.writeFault(w, err)
		return
	}

	sub, err := s.readSubmission(w, r)
	if err != nil {
		logger.Info("upload request refused",
			logging.String(logging.FieldErrorCode, string(faults.CodeOf(err))),
			logging.Error(err),
		)
		s.writeFault(w, err)
		return
	}

	result, err := s.daemon.ingest.Submit(ctx, sub)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	requestID, _ := services.RequestIDFromContext(ctx)
	logger.Info("upload request complete",
		logging.String("url", result.URL),
		logging.Duration("elapsed", time.Since(started)),
	)
	s.writeJSON(w, http.StatusOK, api.FromResult(result, requestID))
}

// readSubmission parses the multipart body. The body is capped at the upload
// ceiling plus multipart overhead; the pipeline enforces the exact ceiling on
// the file itself.
func (s *apiServer) readSubmission(w http.ResponseWriter, r *http.Request) (ingest.Submission, error) {
	sub := ingest.Submission{AuthUserID: strings.TrimSpace(r.Header.Get(api.HeaderAuthUserID))}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(s.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return sub, faults.Newf(faults.FileTooLarge, "request body exceeds %d bytes", s.maxBytes)
		case errors.Is(err, http.ErrNotMultipart):
			return sub, faults.New(faults.FileRequired, "expected a multipart form", err)
		default:
			return sub, faults.New(faults.RequestFailed, "parse multipart form", err)
		}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(api.FieldImage)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return sub, faults.New(faults.FileRequired, "no image field", nil)
		}
		return sub, faults.New(faults.RequestFailed, "read image field", err)
	}
	defer file.Close()

	data, err := readPart(file, s.maxBytes)
	if err != nil {
		return sub, err
	}
	sub.Data = data
	sub.DeclaredSize = header.Size
	// Browsers and multipart helpers fall back to octet-stream; let the
	// pipeline sniff those.
	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/octet-stream") {
		sub.ContentType = ct
	}
	sub.Filename = strings.TrimSpace(r.FormValue(api.FieldFilename))
	if sub.Filename == "" {
		sub.Filename = header.Filename
	}
	if raw := strings.TrimSpace(r.FormValue(api.FieldOrientation)); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || !orientation.Tag(value).Valid() {
			return sub, faults.Newf(faults.RequestFailed, "orientation %q is not an EXIF orientation", raw)
		}
		sub.Orientation = orientation.Tag(value)
	}
	return sub, nil
}

func readPart(file multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, faults.New(faults.RequestFailed, "read image data", err)
	}
	if int64(len(data)) > limit {
		return nil, faults.Newf(faults.FileTooLarge, "image exceeds %d bytes", limit)
	}
	return data, nil
}

func (s *apiServer) handleImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authID := strings.TrimSpace(r.Header.Get(api.HeaderAuthUserID))
	if authID == "" {
		s.writeFault(w, faults.New(faults.AuthSessionRequired, "no authenticated user", nil))
		return
	}
	user, err := s.daemon.store.UserByAuthID(ctx, authID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeFault(w, faults.New(faults.UserNotApproved, "no member record", nil))
			return
		}
		s.writeFault(w, faults.New(faults.UserRecordFailed, "lookup member", err))
		return
	}

	limit := defaultImageLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxImageLimit)
	}
	images, err := s.daemon.store.ListImages(ctx, store.ListFilter{
		UserID: user.ID,
		Status: store.ImageStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  limit,
	})
	if err != nil {
		s.writeFault(w, faults.New(faults.UserRecordFailed, "list images", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImageListResponse{Images: api.FromImages(images)})
}

func (s *apiServer) handleErrors(w http.ResponseWriter, r *http.Request) {
	defs := faults.All()
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		defs = faults.ByCategory(faults.Category(strings.ToLower(category)))
	}
	s.writeJSON(w, http.StatusOK, api.ErrorListResponse{Errors: defs})
}

func (s *apiServer) handleError(w http.ResponseWriter, r *http.Request) {
	code := faults.Code(strings.ToUpper(strings.TrimSpace(r.PathValue("code"))))
	def, ok := faults.Lookup(code)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown error code")
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// handleForgetApproval is called after a member's approval changes out of
// process.
func (s *apiServer) handleForgetApproval(w http.ResponseWriter, r *http.Request) {
	authID := strings.TrimSpace(r.PathValue("authUserID"))
	if authID == "" {
		s.writeError(w, http.StatusBadRequest, "auth user id is required")
		return
	}
	s.daemon.ingest.ForgetApproval(authID)
	logging.WithContext(r.Context(), s.logger).Info("approval cache entry dropped",
		logging.String("auth_user_id", authID),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) writeFault(w http.ResponseWriter, err error) {
	body := faults.Response(err, s.details)
	s.writeJSON(w, body.HTTPStatus, body)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
