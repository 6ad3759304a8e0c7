package taxonomy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Descriptor is the error object carried by a failure envelope.
type Descriptor struct {
	Code              string   `json:"code"`
	Message           string   `json:"message"`
	Retryable         bool     `json:"retryable"`
	RetryAfterSeconds *float64 `json:"retry_after_seconds,omitempty"`
	Details           string   `json:"details,omitempty"`
}

// UnmarshalJSON accepts details either as a string or as arbitrary JSON,
// which is kept verbatim.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code              string          `json:"code"`
		Message           string          `json:"message"`
		Retryable         bool            `json:"retryable"`
		RetryAfterSeconds *float64        `json:"retry_after_seconds"`
		Details           json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Code = raw.Code
	d.Message = raw.Message
	d.Retryable = raw.Retryable
	d.RetryAfterSeconds = raw.RetryAfterSeconds
	d.Details = ""

	details := bytes.TrimSpace(raw.Details)
	if len(details) == 0 || bytes.Equal(details, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(details, &s); err == nil {
		d.Details = s
		return nil
	}
	d.Details = string(details)
	return nil
}

// ClassifiedError is the failure value every pipeline call terminates in.
// It is built once at the failure boundary and never mutated afterwards.
type ClassifiedError struct {
	Code              string
	Message           string
	Retryable         bool
	RetryAfterSeconds *float64
	CorrelationID     string
	Details           string

	// HTTPStatus is the response status that carried the failure, 0 if none.
	HTTPStatus int

	category    Category
	userMessage string
	cause       error
}

// Option customizes a ClassifiedError during construction.
type Option func(*ClassifiedError)

// WithRetryable marks the error as retryable by the caller.
func WithRetryable(retryable bool) Option {
	return func(e *ClassifiedError) { e.Retryable = retryable }
}

// WithRetryAfter sets the server-declared retry delay in seconds.
func WithRetryAfter(seconds float64) Option {
	return func(e *ClassifiedError) { e.RetryAfterSeconds = &seconds }
}

// WithCorrelationID attaches the correlation id of the failing response.
func WithCorrelationID(id string) Option {
	return func(e *ClassifiedError) { e.CorrelationID = id }
}

// WithDetails attaches free-form details.
func WithDetails(details string) Option {
	return func(e *ClassifiedError) { e.Details = details }
}

// WithHTTPStatus records the HTTP status of the failing response.
func WithHTTPStatus(status int) Option {
	return func(e *ClassifiedError) { e.HTTPStatus = status }
}

// WithCause keeps the underlying error reachable through errors.Is / errors.As.
func WithCause(err error) Option {
	return func(e *ClassifiedError) { e.cause = err }
}

// New builds a ClassifiedError for code, deriving category and display text.
func New(code, message string, opts ...Option) *ClassifiedError {
	e := &ClassifiedError{
		Code:    Normalize(code),
		Message: message,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.category = Classify(e.Code)
	e.userMessage = UserMessage(e.Code)
	return e
}

// FromDescriptor converts a server ErrorDescriptor. Retryability and retry
// delay are carried through unchanged.
func FromDescriptor(d Descriptor, correlationID string, opts ...Option) *ClassifiedError {
	base := []Option{
		WithRetryable(d.Retryable),
		WithCorrelationID(correlationID),
		WithDetails(d.Details),
	}
	if d.RetryAfterSeconds != nil {
		base = append(base, WithRetryAfter(*d.RetryAfterSeconds))
	}
	return New(d.Code, d.Message, append(base, opts...)...)
}

// Category returns the derived error family.
func (e *ClassifiedError) Category() Category { return e.category }

// UserMessage returns display text suitable for the UI.
func (e *ClassifiedError) UserMessage() string { return e.userMessage }

// Descriptor renders the error back into its wire form.
func (e *ClassifiedError) Descriptor() Descriptor {
	return Descriptor{
		Code:              e.Code,
		Message:           e.Message,
		Retryable:         e.Retryable,
		RetryAfterSeconds: e.RetryAfterSeconds,
		Details:           e.Details,
	}
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s [%s]: %s (correlation_id=%s)", e.Code, e.category, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.category, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

// As extracts a ClassifiedError from err's chain.
func As(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
