// Package gateway is the client's single HTTP entry point to the remote
// API. It attaches the session credential, classifies failures into
// transport and application errors and exposes typed endpoint wrappers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/rcliao/automarket/internal/observability"
)

// TokenSource yields the current credential. An empty string means no
// credential; session.Session implements it.
type TokenSource interface {
	Token(ctx context.Context) string
}

// Client issues requests against the API base URL. It never retries.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	streamClient  *http.Client
	streamTimeout time.Duration
	tokens        TokenSource
	limiter       *rate.Limiter
	metrics       *observability.Metrics
	log           zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for regular calls. Streams reuse
// its transport without the per-call timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = &http.Client{Transport: hc.Transport}
	}
}

// WithTimeout sets the per-call timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithStreamTimeout bounds a whole stream. Zero disables the bound.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Client) { c.streamTimeout = d }
}

// WithRateLimit throttles call issuance. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the access logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base URL must not be empty")
	}
	transport := otelhttp.NewTransport(http.DefaultTransport)
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		tokens:       tokens,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues a GET and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodGet, path, nil)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodPost, path, body)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodDelete, path, nil)
}

// Call issues one request. A non-nil body is encoded as JSON. An empty
// response body yields a nil RawMessage.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp, err := c.send(ctx, c.httpClient, method, path, reader, contentType)
	if err != nil {
		return nil, err
	}
	return c.readBody(resp, method, path)
}

// FilePart is a file field of a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// PostMultipart issues a multipart/form-data POST.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files ...FilePart) (json.RawMessage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("gateway: write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("gateway: create file part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(w, f.Content); err != nil {
			return nil, fmt.Errorf("gateway: copy file part %s: %w", f.Field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("gateway: close multipart: %w", err)
	}

	resp, err := c.send(ctx, c.httpClient, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return c.readBody(resp, http.MethodPost, path)
}

// Stream POSTs a JSON body and returns the open response body of a
// streaming endpoint. The caller must close it. Closing the body also
// releases the stream timeout.
func (c *Client) Stream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode POST %s: %w", path, err)
	}

	cancel := context.CancelFunc(func() {})
	if c.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
	}
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, path, bytes.NewReader(b), "application/json")
	if err != nil {
		cancel()
		return nil, err
	}
	return &streamBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.cancel()
	return err
}

// send performs the request and returns a response with a 2xx status.
// Failed statuses are drained, closed and returned as *ApplicationError.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	route := routeLabel(path)
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.observe(method, route, observability.OutcomeTransport, start)
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	authed := false
	if c.tokens != nil {
		if token := c.tokens.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			authed = true
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.observe(method, route, observability.OutcomeTransport, start)
		c.log.Debug().Err(err).Str("method", method).Str("path", path).
			Str("request_id", requestID).Bool("auth", authed).Msg("request failed")
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Str("request_id", requestID).Bool("auth", authed).
		Dur("latency", time.Since(start)).Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.observe(method, route, observability.OutcomeApplication, start)
		return nil, newApplicationError(method, path, resp.StatusCode, raw)
	}
	c.observe(method, route, observability.OutcomeOK, start)
	return resp, nil
}

func (c *Client) readBody(resp *http.Response, method, path string) (json.RawMessage, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return raw, nil
}

func (c *Client) observe(method, route, outcome string, start time.Time) {
	c.metrics.ObserveRequest(method, route, outcome, time.Since(start))
}

var idSegment = regexp.MustCompile(`^[0-9]+$`)

// routeLabel bounds metric cardinality: numeric segments and the segment
// after /products become ":id". Query strings are dropped.
func routeLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s == "" {
			continue
		}
		if idSegment.MatchString(s) || (i > 0 && segs[i-1] == "products") {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}
