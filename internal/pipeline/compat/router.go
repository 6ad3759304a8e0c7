// Package compat routes calls to the versioned protocol and falls back to the
// legacy endpoints when the versioned route is not served.
package compat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vietddude/fleetclient/internal/metrics"
	"github.com/vietddude/fleetclient/internal/pipeline/envelope"
	"github.com/vietddude/fleetclient/internal/pipeline/executor"
)

// State is a step of the fallback state machine.
type State int

const (
	TryVersioned State = iota
	TryLegacy
	TerminalFail
	Done
)

func (s State) String() string {
	switch s {
	case TryVersioned:
		return "try_versioned"
	case TryLegacy:
		return "try_legacy"
	case TerminalFail:
		return "terminal_fail"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome records which protocol satisfied a call.
type Outcome string

const (
	OutcomeVersioned   Outcome = "versioned"
	OutcomeLegacy      Outcome = "legacy"
	OutcomeFailed      Outcome = "failed"
	OutcomeUnsupported Outcome = "unsupported"
)

// Next returns the state following s when the call made in s returned err.
// TerminalFail and Done are absorbing.
func Next(s State, err error) State {
	switch s {
	case TryVersioned:
		if err == nil {
			return Done
		}
		if ShouldFallback(err) {
			return TryLegacy
		}
		return TerminalFail
	case TryLegacy:
		if err == nil {
			return Done
		}
		return TerminalFail
	default:
		return s
	}
}

// ShouldFallback reports whether err means the versioned route is not served:
// an HTML catch-all answer on any status, or a bare 404/501. A status that carries a
// failure envelope came from a real handler and is a business error.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := envelope.AsHTMLFallback(err); ok {
		return true
	}

	var httpErr *executor.HTTPError
	if errors.As(err, &httpErr) {
		return notImplemented(httpErr.Status) && !envelope.IsFailureEnvelope(httpErr.Body)
	}

	var netErr *executor.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Status == http.StatusNotImplemented && !envelope.IsFailureEnvelope(netErr.Body)
	}
	return false
}

func notImplemented(status int) bool {
	return status == http.StatusNotFound || status == http.StatusNotImplemented
}

// Call performs one protocol path and returns its decoded payload.
type Call func(ctx context.Context) (json.RawMessage, error)

// Normalize converts the payload of whichever path succeeded into T.
type Normalize[T any] func(outcome Outcome, raw json.RawMessage) (T, error)

// Router runs fallback cascades.
type Router struct {
	logger *slog.Logger
}

// NewRouter creates a Router. logger may be nil.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// CallWithFallback tries versioned, then legacy when ShouldFallback allows it.
// A nil legacy call disables the fallback. When both paths fail the
// versioned error is returned.
func CallWithFallback[T any](
	ctx context.Context,
	r *Router,
	operation string,
	versioned, legacy Call,
	normalize Normalize[T],
) (T, Outcome, error) {
	var (
		zero         T
		state        = TryVersioned
		raw          json.RawMessage
		outcome      Outcome
		versionedErr error
	)

	for {
		switch state {
		case TryVersioned:
			var err error
			raw, err = versioned(ctx)
			state = Next(state, err)
			switch state {
			case Done:
				outcome = OutcomeVersioned
			case TryLegacy:
				versionedErr = err
				if legacy == nil {
					state = TerminalFail
					continue
				}
				r.logger.Info("Versioned route unavailable, falling back to legacy",
					"operation", operation, "error", err)
			default:
				versionedErr = err
			}

		case TryLegacy:
			var err error
			raw, err = legacy(ctx)
			state = Next(state, err)
			if err != nil {
				r.logger.Warn("Legacy fallback failed",
					"operation", operation, "error", err, "versioned_error", versionedErr)
			} else {
				outcome = OutcomeLegacy
			}

		case Done:
			v, err := normalize(outcome, raw)
			if err != nil {
				r.record(operation, OutcomeFailed)
				return zero, OutcomeFailed, &envelope.MalformedError{Path: operation, Err: err}
			}
			r.record(operation, outcome)
			return v, outcome, nil

		default:
			r.record(operation, OutcomeFailed)
			return zero, OutcomeFailed, versionedErr
		}
	}
}

func (r *Router) record(operation string, outcome Outcome) {
	metrics.CompatOutcomesTotal.WithLabelValues(operation, string(outcome)).Inc()
	r.logger.Debug("Call resolved", "operation", operation, "outcome", outcome)
}

// Capability is the result of a feature probe. Value is set only when the
// feature is supported.
type Capability[T any] struct {
	Supported bool `json:"supported"`
	Value     T    `json:"value,omitempty"`
}

// Probe issues call and treats "route not served" as an unsupported feature
// rather than a failure. Any other error is returned.
func Probe[T any](
	ctx context.Context,
	r *Router,
	operation string,
	call Call,
	decode func(raw json.RawMessage) (T, error),
) (Capability[T], error) {
	raw, err := call(ctx)
	if err != nil {
		if ShouldFallback(err) {
			r.logger.Info("Feature not supported by backend", "operation", operation, "error", err)
			r.record(operation, OutcomeUnsupported)
			return Capability[T]{Supported: false}, nil
		}
		r.record(operation, OutcomeFailed)
		return Capability[T]{}, err
	}

	v, err := decode(raw)
	if err != nil {
		r.record(operation, OutcomeFailed)
		return Capability[T]{}, &envelope.MalformedError{Path: operation, Err: err}
	}
	r.record(operation, OutcomeVersioned)
	return Capability[T]{Supported: true, Value: v}, nil
}
