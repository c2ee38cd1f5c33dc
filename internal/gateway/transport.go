package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL    = "http://127.0.0.1:8080"
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 2 * time.Second
)

// HTTPError is a non-2xx backend reply, or a 2xx reply whose envelope says
// success=false.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying (429 or 5xx).
func (e *HTTPError) Retryable() bool {
	return retryableStatus(e.StatusCode)
}

// Rejected reports whether the backend refused the request (4xx, or a
// success=false envelope on 2xx).
func (e *HTTPError) Rejected() bool {
	return e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// Request is one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	// Body is JSON encoded when non-nil.
	Body any
	// Idempotent allows automatic retries for a non-GET request. Cart
	// mutations leave it unset: a lost reply must not apply them twice.
	Idempotent bool
}

// retryable reports whether the transport may resend r on its own.
func (r Request) retryable() bool {
	return r.Idempotent || r.Method == http.MethodGet || r.Method == http.MethodHead
}

// Transport performs a backend call and decodes the envelope's data into out.
type Transport interface {
	Do(ctx context.Context, req Request, out any) error
}

// TokenSource supplies the bearer token, if any.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// HTTPTransport is the JSON-over-HTTP Transport. For GET and idempotent
// requests it retries transport errors, 429 and 5xx with capped exponential
// backoff, honoring Retry-After. Other requests are sent once.
type HTTPTransport struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	newID      func() string
	logger     *slog.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithTimeout sets the per-attempt client timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) TransportOption {
	return func(t *HTTPTransport) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays sets the first backoff delay and the cap.
func WithRetryDelays(base, maxDelay time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.baseDelay = base
		t.maxDelay = maxDelay
	}
}

// WithCorrelationIDs overrides the X-Correlation-Id generator.
func WithCorrelationIDs(gen func() string) TransportOption {
	return func(t *HTTPTransport) { t.newID = gen }
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport creates a transport for baseURL. tokens may be nil.
func NewHTTPTransport(baseURL string, tokens TokenSource, opts ...TransportOption) *HTTPTransport {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	t := &HTTPTransport{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		newID:      correlationID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req, retrying where allowed, and decodes the envelope data into out.
func (t *HTTPTransport) Do(ctx context.Context, req Request, out any) error {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	maxRetries := t.maxRetries
	if !req.retryable() {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
		if err != nil {
			return err
		}
		if token, ok := t.accessToken(ctx); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		httpReq.Header.Set("X-Correlation-Id", t.newID())
		httpReq.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		for key, value := range req.Header {
			httpReq.Header.Set(key, value)
		}

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			if attempt < maxRetries && ctx.Err() == nil {
				t.logger.Debug("backend request failed, retrying", "method", req.Method, "path", req.Path, "attempt", attempt+1, "error", err)
				if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if retryableStatus(resp.StatusCode) && attempt < maxRetries {
			t.logger.Debug("backend busy, retrying", "method", req.Method, "path", req.Path, "status", resp.StatusCode, "attempt", attempt+1)
			if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return decodeEnvelope(resp.StatusCode, payload, out)
	}
}

func (t *HTTPTransport) accessToken(ctx context.Context) (string, bool) {
	if t.tokens == nil {
		return "", false
	}
	return t.tokens.AccessToken(ctx)
}

func decodeEnvelope(status int, payload []byte, out any) error {
	var env envelope
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &env); err != nil && status >= 200 && status <= 299 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if status < 200 || status > 299 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &HTTPError{StatusCode: status, Code: env.Code, Message: msg}
	}
	if env.Success != nil && !*env.Success {
		return &HTTPError{StatusCode: status, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func correlationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (t *HTTPTransport) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := t.maxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := t.baseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
