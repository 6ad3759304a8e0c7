// Package executor implements the transport primitive of the request pipeline.
//
// An Executor sends one Descriptor with a per-attempt timeout and retries
// transport failures, timeouts and 5xx responses with exponential backoff.
// Client errors (status < 500) are returned immediately as *HTTPError.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/fleetclient/internal/metrics"
)

// Default budgets.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
)

// RequestIDHeader is stamped on every attempt of a call with the same value.
const RequestIDHeader = "X-Request-ID"

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration // 0 = uncapped
	BackoffMultiple float64
}

// DefaultRetryConfig: 3 attempts, 1s doubling, no jitter.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     DefaultMaxAttempts,
	InitialDelay:    DefaultBaseDelay,
	BackoffMultiple: 2.0,
}

// maxBackoff bounds the uncapped delay so the conversion to Duration
// cannot overflow.
const maxBackoff = time.Duration(math.MaxInt64)

// Backoff returns the sleep applied after failed attempt n (1-based).
func (c RetryConfig) Backoff(n int) time.Duration {
	mult := c.BackoffMultiple
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(c.InitialDelay) * math.Pow(mult, float64(n-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	if math.IsNaN(delay) || delay >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(delay)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config configures an Executor.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryConfig
	HTTPClient *http.Client
	Sleep      SleepFunc
	Logger     *slog.Logger
}

// Response is a raw HTTP response with a fully read body.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// IsJSON reports whether the declared content type is JSON.
func (r *Response) IsJSON() bool {
	return IsJSONContentType(r.ContentType)
}

// NoContent reports whether the body carries nothing to decode: it is
// empty, or it is neither JSON nor an HTML document.
func (r *Response) NoContent() bool {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return true
	}
	return !r.IsJSON() && !LooksLikeHTML(r.Body)
}

// Executor executes descriptors against a base URL.
type Executor struct {
	baseURL    string
	timeout    time.Duration
	retry      RetryConfig
	httpClient *http.Client
	sleep      SleepFunc
	logger     *slog.Logger
}

// New creates an Executor, filling unset fields with defaults.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = DefaultBaseDelay
	}
	if cfg.Retry.BackoffMultiple <= 0 {
		cfg.Retry.BackoffMultiple = 2.0
	}
	if cfg.HTTPClient == nil {
		// No client-level timeout: each attempt carries its own deadline.
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		httpClient: cfg.HTTPClient,
		sleep:      cfg.Sleep,
		logger:     cfg.Logger,
	}
}

// Execute sends d, retrying per the retry policy. It returns a *Response for
// status < 400, or one of *HTTPError, *NetworkError, *TimeoutError.
func (e *Executor) Execute(ctx context.Context, d Descriptor) (*Response, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	body, err := encodeBody(d.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrInvalidDescriptor, err)
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = e.retry.MaxAttempts
	}

	op := d.operation()
	requestID := uuid.NewString()
	if id, ok := d.Headers.Get(RequestIDHeader); ok {
		requestID = id
	}

	var (
		lastErr     error
		lastStatus  int
		lastBody    []byte
		lastTimeout bool
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		resp, timedOut, err := e.attempt(ctx, d, body, requestID, timeout)
		metrics.HTTPLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

		switch {
		case err == nil && resp.Status < 400:
			metrics.HTTPAttemptsTotal.WithLabelValues(op, "ok").Inc()
			e.logger.Debug("Request succeeded",
				"operation", op, "path", d.Path, "status", resp.Status, "attempt", attempt)
			return resp, nil

		case err == nil && resp.Status < 500:
			metrics.HTTPAttemptsTotal.WithLabelValues(op, "http_error").Inc()
			return nil, &HTTPError{
				Path:        d.Path,
				Status:      resp.Status,
				ContentType: resp.ContentType,
				Body:        resp.Body,
			}

		case err == nil:
			metrics.HTTPAttemptsTotal.WithLabelValues(op, "server_error").Inc()
			lastErr = fmt.Errorf("http %d", resp.Status)
			lastStatus, lastBody, lastTimeout = resp.Status, resp.Body, false

		case timedOut:
			metrics.HTTPAttemptsTotal.WithLabelValues(op, "timeout").Inc()
			lastErr = err
			lastStatus, lastBody, lastTimeout = 0, nil, true

		default:
			metrics.HTTPAttemptsTotal.WithLabelValues(op, "network_error").Inc()
			lastErr = err
			lastStatus, lastBody, lastTimeout = 0, nil, false
		}

		if ctx.Err() != nil {
			return nil, &NetworkError{Path: d.Path, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}

		delay := e.retry.Backoff(attempt)
		e.logger.Warn("Request failed, retrying",
			"operation", op,
			"path", d.Path,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", lastErr,
		)
		metrics.HTTPBackoffSeconds.WithLabelValues(op).Observe(delay.Seconds())
		if err := e.sleep(ctx, delay); err != nil {
			return nil, &NetworkError{Path: d.Path, Attempts: attempt, Err: err}
		}
	}

	if lastTimeout {
		return nil, &TimeoutError{Path: d.Path, Timeout: timeout, Attempts: maxAttempts}
	}
	return nil, &NetworkError{
		Path:     d.Path,
		Status:   lastStatus,
		Attempts: maxAttempts,
		Body:     lastBody,
		Err:      lastErr,
	}
}

// attempt performs one round trip under its own deadline. The body is read
// before the deadline is released; a response arriving after expiry is dropped.
func (e *Executor) attempt(
	ctx context.Context,
	d Descriptor,
	body []byte,
	requestID string,
	timeout time.Duration,
) (*Response, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, d.Method, e.baseURL+d.Path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	d.Headers.apply(req)
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, isTimeout(ctx, attemptCtx), fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, isTimeout(ctx, attemptCtx), fmt.Errorf("read response: %w", err)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        data,
	}, false, nil
}

// isTimeout reports whether the attempt deadline fired while the caller's
// context was still live.
func isTimeout(parent, attemptCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

// IsJSONContentType reports whether ct names a JSON media type.
func IsJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

var htmlMarkers = []string{"<!doctype html", "<html"}

// LooksLikeHTML reports whether body begins with an HTML document marker.
func LooksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	if len(trimmed) > 32 {
		trimmed = trimmed[:32]
	}
	head := strings.ToLower(string(trimmed))
	for _, m := range htmlMarkers {
		if strings.HasPrefix(head, m) {
			return true
		}
	}
	return false
}
