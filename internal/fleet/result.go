package fleet

import "github.com/vietddude/fleetclient/internal/pipeline/taxonomy"

// Result is the outcome of a call: a value, or a classified failure.
// Business and transport failures are carried here, never as a Go error.
type Result[T any] struct {
	value T
	err   *taxonomy.ClassifiedError
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Err wraps a classified failure.
func Err[T any](e *taxonomy.ClassifiedError) Result[T] { return Result[T]{err: e} }

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the value, zero on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, nil on success.
func (r Result[T]) Err() *taxonomy.ClassifiedError { return r.err }

// Unwrap converts the result into the (value, error) form.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		return r.value, r.err
	}
	return r.value, nil
}
