// Package fleet is the typed client of the device-fleet backend.
//
// Every call goes through the request pipeline: executor, envelope decoder,
// contract check and, for operations with a legacy route, the compatibility
// router. Calls return a Result; the error return is reserved for malformed
// requests.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/fleetclient/internal/metrics"
	"github.com/vietddude/fleetclient/internal/pipeline/compat"
	"github.com/vietddude/fleetclient/internal/pipeline/contract"
	"github.com/vietddude/fleetclient/internal/pipeline/envelope"
	"github.com/vietddude/fleetclient/internal/pipeline/executor"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
)

const (
	// VersionPrefix is prepended to every versioned path.
	VersionPrefix = "/v1"
	// APIKeyHeader carries the credential on authenticated calls.
	APIKeyHeader = "X-API-Key"
	// DefaultCaptureTimeout is the per-attempt budget of capture endpoints.
	DefaultCaptureTimeout = 30 * time.Second
)

// KeyProvider supplies the API key. An empty key means none is configured.
type KeyProvider interface {
	APIKey() string
}

// StaticKey is a fixed KeyProvider.
type StaticKey string

func (k StaticKey) APIKey() string { return string(k) }

// Options configures a Client.
type Options struct {
	BaseURL        string
	Keys           KeyProvider
	Timeout        time.Duration
	CaptureTimeout time.Duration
	Retry          executor.RetryConfig
	HTTPClient     *http.Client
	Sleep          executor.SleepFunc
	Sink           envelope.CorrelationSink
	Logger         *slog.Logger
}

// Client talks to one fleet backend.
type Client struct {
	exec           *executor.Executor
	decoder        *envelope.Decoder
	router         *compat.Router
	keys           KeyProvider
	captureTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	captureTimeout := opts.CaptureTimeout
	if captureTimeout <= 0 {
		captureTimeout = DefaultCaptureTimeout
	}

	return &Client{
		exec: executor.New(executor.Config{
			BaseURL:    opts.BaseURL,
			Timeout:    opts.Timeout,
			Retry:      opts.Retry,
			HTTPClient: opts.HTTPClient,
			Sleep:      opts.Sleep,
			Logger:     logger.With("component", "executor"),
		}),
		decoder:        envelope.NewDecoder(opts.Sink, logger.With("component", "decoder")),
		router:         compat.NewRouter(logger.With("component", "compat")),
		keys:           opts.Keys,
		captureTimeout: captureTimeout,
		logger:         logger,
	}
}

// Request describes one logical call.
type Request struct {
	Operation   string
	Method      string
	Path        string // without the version prefix
	Body        any
	Headers     executor.Headers
	Timeout     time.Duration
	MaxAttempts int
	Auth        bool // send X-API-Key; fail fast when none is configured
	Legacy      bool // unprefixed legacy namespace
	Validator   contract.Validator
}

func (r Request) path() string {
	if r.Legacy {
		return r.Path
	}
	return VersionPrefix + r.Path
}

func (r Request) op() string {
	if r.Operation != "" {
		return r.Operation
	}
	return r.path()
}

func (r Request) descriptor() (executor.Descriptor, error) {
	d := executor.Descriptor{
		Operation:   r.op(),
		Method:      r.Method,
		Path:        r.path(),
		Body:        r.Body,
		Headers:     r.Headers,
		Timeout:     r.Timeout,
		MaxAttempts: r.MaxAttempts,
	}
	if err := d.Validate(); err != nil {
		return executor.Descriptor{}, err
	}
	return d, nil
}

var errNoAPIKey = errors.New("api key not configured")

// fetch runs one request through executor, decoder and validator.
func (c *Client) fetch(ctx context.Context, r Request) (json.RawMessage, error) {
	d, err := r.descriptor()
	if err != nil {
		return nil, err
	}

	if r.Auth {
		key := ""
		if c.keys != nil {
			key = c.keys.APIKey()
		}
		if key == "" {
			return nil, taxonomy.New(taxonomy.CodeUnauthorized,
				fmt.Sprintf("%s requires an API key", d.Operation),
				taxonomy.WithCause(errNoAPIKey))
		}
		d = d.WithHeader(APIKeyHeader, key)
	}

	resp, err := c.exec.Execute(ctx, d)
	if err != nil {
		return nil, c.decoder.FromTransport(d.Operation, err)
	}

	decoded, err := c.decoder.Decode(d.Operation, d.Path, resp)
	if err != nil {
		return nil, err
	}
	if decoded.Kind == envelope.KindEmpty {
		return nil, nil
	}

	if r.Validator != nil {
		if res := contract.Check(r.Validator, decoded.Data); !res.OK {
			metrics.ContractIssuesTotal.WithLabelValues(d.Operation).Inc()
			c.logger.Warn("Response drifted from contract",
				"operation", d.Operation,
				"path", d.Path,
				"kind", decoded.Kind.String(),
				"issues", res.Issues,
			)
		}
	}
	return decoded.Data, nil
}

// classify turns a pipeline error into the caller-facing failure.
func (c *Client) classify(operation string, err error) *taxonomy.ClassifiedError {
	ce := envelope.ClassifyError(err)

	code := ce.Code
	if ce.Category() == taxonomy.CategoryUnknown {
		code = "other"
	}
	metrics.ClassifiedErrorsTotal.WithLabelValues(string(ce.Category()), code).Inc()

	c.logger.Warn("Call failed",
		"operation", operation,
		"code", ce.Code,
		"category", ce.Category(),
		"retryable", ce.Retryable,
		"correlation_id", ce.CorrelationID,
		"error", err,
	)
	return ce
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Do runs r and decodes its payload into T. An empty body yields the zero T.
func Do[T any](ctx context.Context, c *Client, r Request) (Result[T], error) {
	raw, err := c.fetch(ctx, r)
	if err != nil {
		if errors.Is(err, executor.ErrInvalidDescriptor) {
			return Result[T]{}, err
		}
		return Err[T](c.classify(r.op(), err)), nil
	}

	v, err := decodeInto[T](raw)
	if err != nil {
		return Err[T](c.classify(r.op(), &envelope.MalformedError{Path: r.path(), Err: err})), nil
	}
	return Ok(v), nil
}

// Renames maps legacy keys to their versioned names.
type Renames map[string]string

// WithFallback runs versioned and falls back to legacy when the versioned
// route is not served. The legacy payload is normalized with renames before
// it is decoded into T.
func WithFallback[T any](
	ctx context.Context,
	c *Client,
	versioned, legacy Request,
	renames Renames,
) (Result[T], error) {
	legacy.Legacy = true
	for _, r := range []Request{versioned, legacy} {
		if _, err := r.descriptor(); err != nil {
			return Result[T]{}, err
		}
	}

	normalize := func(outcome compat.Outcome, raw json.RawMessage) (T, error) {
		if outcome == compat.OutcomeLegacy {
			var err error
			if raw, err = compat.NormalizeLegacy(raw, renames); err != nil {
				var zero T
				return zero, err
			}
		}
		return decodeInto[T](raw)
	}

	// A request that cannot be encoded is returned as an error even when it
	// is the legacy leg, whose failure the router only logs.
	var invalid error
	call := func(r Request) compat.Call {
		return func(ctx context.Context) (json.RawMessage, error) {
			raw, err := c.fetch(ctx, r)
			if errors.Is(err, executor.ErrInvalidDescriptor) && invalid == nil {
				invalid = err
			}
			return raw, err
		}
	}

	v, _, err := compat.CallWithFallback[T](ctx, c.router, versioned.op(),
		call(versioned), call(legacy), normalize)
	if invalid != nil {
		return Result[T]{}, invalid
	}
	if err != nil {
		return Err[T](c.classify(versioned.op(), err)), nil
	}
	return Ok(v), nil
}

// ProbeFeature runs r as a feature probe: a route that is not served
// yields Capability{Supported: false} instead of a failure.
func ProbeFeature[T any](ctx context.Context, c *Client, r Request) (Result[compat.Capability[T]], error) {
	if _, err := r.descriptor(); err != nil {
		return Result[compat.Capability[T]]{}, err
	}

	capability, err := compat.Probe[T](ctx, c.router, r.op(),
		func(ctx context.Context) (json.RawMessage, error) { return c.fetch(ctx, r) },
		decodeInto[T],
	)
	if errors.Is(err, executor.ErrInvalidDescriptor) {
		return Result[compat.Capability[T]]{}, err
	}
	if err != nil {
		return Err[compat.Capability[T]](c.classify(r.op(), err)), nil
	}
	return Ok(capability), nil
}
