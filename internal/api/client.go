package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photoline/internal/faults"
)

// Header names shared by the daemon and its clients.
const (
	HeaderAuthUserID = "X-Auth-User-ID"
	HeaderRequestID  = "X-Request-ID"
)

// Multipart field names for POST /api/images.
const (
	FieldImage       = "image"
	FieldFilename    = "filename"
	FieldOrientation = "orientation"
)

const defaultClientTimeout = 2 * time.Minute

// maxResponseBytes bounds decoded response bodies.
const maxResponseBytes = 4 << 20

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a running daemon.
type Client struct {
	base  *url.URL
	token string
	http  HTTPDoer
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// NewClient returns a client for the daemon listening on bind. bind may be a
// host:port pair or a full URL.
func NewClient(bind, token string, opts ...ClientOption) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UploadRequest is one image posted to the daemon.
type UploadRequest struct {
	AuthUserID  string
	Filename    string
	ContentType string
	Orientation int
	Data        []byte
}

// Upload posts an image and returns the stored location.
func (c *Client) Upload(ctx context.Context, in UploadRequest) (UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = "upload"
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldImage, filename))
	if ct := strings.TrimSpace(in.ContentType); ct != "" {
		header.Set("Content-Type", ct)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return UploadResponse{}, faults.New(faults.ClientRequest, "build multipart body", err)
	}
	if _, err := part.Write(in.Data); err != nil {
		return UploadResponse{}, faults.New(faults.ClientRequest, "build multipart body", err)
	}
	if err := mw.WriteField(FieldFilename, filename); err != nil {
		return UploadResponse{}, faults.New(faults.ClientRequest, "build multipart body", err)
	}
	if in.Orientation > 0 {
		if err := mw.WriteField(FieldOrientation, strconv.Itoa(in.Orientation)); err != nil {
			return UploadResponse{}, faults.New(faults.ClientRequest, "build multipart body", err)
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, faults.New(faults.ClientRequest, "build multipart body", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/images", nil, &body)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderAuthUserID, in.AuthUserID)

	var out UploadResponse
	if err := c.do(ctx, req, &out); err != nil {
		return UploadResponse{}, err
	}
	return out, nil
}

// ListImages returns a member's images, newest first.
func (c *Client) ListImages(ctx context.Context, authUserID string, limit int) ([]ImageItem, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/images", values, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderAuthUserID, authUserID)

	var out ImageListResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/status", nil, nil)
	if err != nil {
		return DaemonStatus{}, err
	}
	var out DaemonStatus
	if err := c.do(ctx, req, &out); err != nil {
		return DaemonStatus{}, err
	}
	return out, nil
}

// ForgetApproval tells the daemon to drop its cached approval decision for a
// member.
func (c *Client) ForgetApproval(ctx context.Context, authUserID string) error {
	path := "/api/approvals/" + url.PathEscape(strings.TrimSpace(authUserID))
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, faults.New(faults.ClientRequest, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransport(ctx, err)
	}
	if resp.StatusCode >= 400 {
		return decodeFailure(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return faults.New(faults.ClientParse, "decode response", err)
	}
	return nil
}

// decodeFailure turns a failure body back into the daemon's registry error.
func decodeFailure(status int, payload []byte) error {
	var body faults.Body
	if err := json.Unmarshal(payload, &body); err == nil && faults.IsValid(body.Code) {
		fe := faults.New(body.Code, body.Message, nil)
		if body.Details != "" {
			fe.Detail = body.Details
		}
		fe.URL = body.URL
		return fe
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return faults.Newf(faults.ClientRequest, "status %d: %s", status, msg)
}

func classifyTransport(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return faults.New(faults.RequestCanceled, "canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return faults.New(faults.ClientTimeout, "daemon did not answer in time", err)
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return faults.New(faults.ClientTimeout, "daemon did not answer in time", err)
	}
	return faults.New(faults.ClientNetwork, "daemon unreachable", err)
}
