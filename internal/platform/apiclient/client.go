// Package apiclient is the HTTP client for the remote CDS backend. Every
// computation the dashboard shows (risk scoring, SHAP explanations,
// treatment matching, synthetic patients, imaging and monitoring reports)
// happens behind this client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of a backend response body is read.
const maxResponseBytes = 10 << 20

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for regular calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout for regular calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLongTimeout sets the timeout for slow calls such as synthetic data
// generation and dataset imports.
func WithLongTimeout(d time.Duration) Option {
	return func(c *Client) { c.longTimeout = d }
}

// WithToken sets a bearer token sent on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for call tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Observer is told about every finished backend call. outcome is "ok" or
// the Kind of the failure.
type Observer interface {
	ObserveBackendCall(method, endpoint, outcome string, latency time.Duration)
}

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client calls the CDS backend. It is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	longTimeout time.Duration
	token       string
	userAgent   string
	logger      zerolog.Logger
	observer    Observer
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		timeout:     30 * time.Second,
		longTimeout: 2 * time.Minute,
		userAgent:   "cds-dashboard",
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id that is forwarded to the
// backend as X-Request-ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Get issues a GET. params may be nil, url.Values, or a struct with `url`
// tags. The decoded body is written to out.
func (c *Client) Get(ctx context.Context, path string, params, out any) error {
	return c.do(ctx, c.timeout, http.MethodGet, path, params, nil, out)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, c.timeout, http.MethodPost, path, nil, body, out)
}

// GetRaw issues a GET and returns the undecoded JSON body.
func (c *Client) GetRaw(ctx context.Context, path string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, c.timeout, http.MethodGet, path, params, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) postLong(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, c.longTimeout, http.MethodPost, path, nil, body, out)
}

// Ping checks the backend health endpoint and returns the round trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.do(ctx, c.timeout, http.MethodGet, "/health", nil, nil, nil)
	return time.Since(start), err
}

func (c *Client) buildURL(path string, params any) (string, error) {
	u := c.baseURL + path
	if params == nil {
		return u, nil
	}
	var values url.Values
	switch p := params.(type) {
	case url.Values:
		values = p
	default:
		v, err := query.Values(params)
		if err != nil {
			return "", fmt.Errorf("encode query: %w", err)
		}
		values = v
	}
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, params, body, out any) error {
	if c.observer == nil {
		return c.call(ctx, timeout, method, path, params, body, out)
	}
	start := time.Now()
	err := c.call(ctx, timeout, method, path, params, body, out)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	c.observer.ObserveBackendCall(method, endpointOf(path), outcome, time.Since(start))
	return err
}

// endpointOf collapses path parameters so a path can be used as a metric
// label.
func endpointOf(path string) string {
	if strings.HasPrefix(path, "/monitoring/patients/") && strings.HasSuffix(path, "/monitoring") {
		return "/monitoring/patients/{id}/monitoring"
	}
	return path
}

func (c *Client) call(ctx context.Context, timeout time.Duration, method, path string, params, body, out any) error {
	u, err := c.buildURL(path, params)
	if err != nil {
		return &Error{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindNetwork, Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &Error{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	rid := requestIDFromContext(ctx)
	if rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := transportError(method, path, err)
		c.logger.Warn().
			Str("request_id", rid).
			Str("method", method).
			Str("path", path).
			Str("kind", string(apiErr.Kind)).
			Dur("latency", time.Since(start)).
			Err(err).
			Msg("backend call failed")
		return apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(method, path, err)
	}

	evt := c.logger.Debug()
	if resp.StatusCode >= 300 {
		evt = c.logger.Warn()
	}
	evt.
		Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: serverMessage(resp.StatusCode, data),
		}
	}

	if out == nil {
		return nil
	}
	if isBlank(data) {
		return emptyError(method, path)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Method: method, Path: path, Message: "malformed response", Err: err}
	}
	return nil
}

func isBlank(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// serverMessage extracts a human readable message from an error body. The
// backend reports errors as {"detail": "..."}, {"detail": [{"msg": "..."}]},
// {"message": "..."} or {"error": "..."}.
func serverMessage(status int, data []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			raw, ok := payload[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
			var items []struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(raw, &items); err == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				if len(msgs) > 0 {
					return strings.Join(msgs, "; ")
				}
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}
