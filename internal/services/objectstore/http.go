package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/logging"
)

// maxResponseBytes caps how much of a worker response is read.
const maxResponseBytes = 64 << 10

// HTTPDoer describes the HTTP client used by the storage backends.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpStore talks to a storage worker that accepts PUT {base}/{key} and
// answers with JSON {url, filename}.
type httpStore struct {
	baseURL  string
	token    string
	timeout  time.Duration
	boundary Boundary
	client   HTTPDoer
	logger   *slog.Logger
}

type workerResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func newHTTPStore(cfg *config.Config, o options) *httpStore {
	client := o.client
	if client == nil {
		client = &http.Client{}
	}
	return &httpStore{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.Storage.BaseURL), "/"),
		token:    strings.TrimSpace(cfg.Storage.Token),
		timeout:  cfg.StorageTimeout(),
		boundary: NewBoundary(cfg),
		client:   client,
		logger:   o.logger,
	}
}

func (s *httpStore) Backend() string { return config.BackendHTTP }

func (s *httpStore) Put(ctx context.Context, key string, data []byte, contentType string, progress ProgressFunc) (Result, error) {
	if err := s.boundary.Check(contentType, int64(len(data))); err != nil {
		return Result{}, err
	}
	reqCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	body := newProgressReader(data, progress)
	target := joinURL(s.baseURL, key)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, target, body)
	if err != nil {
		return Result{}, faults.Wrap(faults.StorageUnavailable, stage, "build request", "", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", NormalizeContentType(contentType))
	s.authorize(req)

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, classifyTransport(ctx, "put object", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, classifyTransport(ctx, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, classifyStatus("put object", resp.StatusCode, string(payload))
	}
	body.finish()

	result := Result{Key: key}
	if trimmed := strings.TrimSpace(string(payload)); trimmed != "" {
		var decoded workerResponse
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return Result{}, faults.Wrap(faults.StorageBadResponse, stage, "decode response", "", err)
		}
		result.URL = strings.TrimSpace(decoded.URL)
		if decoded.Filename != "" && decoded.Filename != key {
			s.logger.Debug("worker reported different filename",
				logging.String(logging.FieldStorageKey, key),
				logging.String("filename", decoded.Filename),
			)
		}
	}
	if result.URL == "" {
		result.URL = target
	}

	s.logger.Debug("object stored",
		logging.String(logging.FieldStorageKey, key),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// Stat issues a GET for the object. The worker serves objects with a
// long-lived immutable cache header.
func (s *httpStore) Stat(ctx context.Context, key string) (StatResult, error) {
	reqCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	target := joinURL(s.baseURL, key)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return StatResult{}, faults.Wrap(faults.StorageUnavailable, stage, "build request", "", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return StatResult{}, classifyTransport(ctx, "stat object", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return StatResult{URL: target}, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		size := resp.ContentLength
		if size < 0 {
			n, copyErr := io.Copy(io.Discard, resp.Body)
			if copyErr != nil && !errors.Is(copyErr, io.EOF) {
				return StatResult{}, classifyTransport(ctx, "stat object", copyErr)
			}
			size = n
		}
		return StatResult{
			Exists:      true,
			URL:         target,
			Size:        size,
			ContentType: resp.Header.Get("Content-Type"),
		}, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return StatResult{}, classifyStatus("stat object", resp.StatusCode, string(snippet))
	}
}

func (s *httpStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.token))
	}
}
