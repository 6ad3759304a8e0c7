package executor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidDescriptor is returned for descriptors that can never be sent.
// It signals a programmer error and is never retried.
var ErrInvalidDescriptor = errors.New("invalid request descriptor")

// Header is a single request header.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Later entries win over earlier ones
// with the same (case-insensitive) name.
type Headers []Header

// With returns a copy of h with name set to value.
func (h Headers) With(name, value string) Headers {
	out := make(Headers, 0, len(h)+1)
	for _, hdr := range h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	return append(out, Header{Name: name, Value: value})
}

// Get returns the last value set for name.
func (h Headers) Get(name string) (string, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if strings.EqualFold(h[i].Name, name) {
			return h[i].Value, true
		}
	}
	return "", false
}

func (h Headers) apply(req *http.Request) {
	for _, hdr := range h {
		req.Header.Set(hdr.Name, hdr.Value)
	}
}

// Descriptor describes a single logical call. It is built per call and
// treated as immutable.
type Descriptor struct {
	// Operation is a low-cardinality name used for logs and metrics
	// (e.g. "cameras.list"). Defaults to the path.
	Operation string

	Method  string
	Path    string
	Body    any
	Headers Headers

	// Timeout is the per-attempt wall-clock budget. Zero uses the executor default.
	Timeout time.Duration

	// MaxAttempts is the retry budget. Zero uses the executor default.
	MaxAttempts int
}

// Validate reports whether d can be sent.
func (d Descriptor) Validate() error {
	switch d.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidDescriptor, d.Method)
	}
	if !strings.HasPrefix(d.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidDescriptor, d.Path)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidDescriptor)
	}
	if d.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative max attempts", ErrInvalidDescriptor)
	}
	return nil
}

// WithPath returns a copy of d targeting path.
func (d Descriptor) WithPath(path string) Descriptor {
	d.Path = path
	return d
}

// WithHeader returns a copy of d with one header set.
func (d Descriptor) WithHeader(name, value string) Descriptor {
	d.Headers = d.Headers.With(name, value)
	return d
}

func (d Descriptor) operation() string {
	if d.Operation != "" {
		return d.Operation
	}
	return d.Path
}
