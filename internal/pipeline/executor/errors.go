package executor

import (
	"fmt"
	"time"
)

// TimeoutError is returned when the final attempt exceeded its wall-clock budget.
type TimeoutError struct {
	Path     string
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %v (%d attempts)", e.Path, e.Timeout, e.Attempts)
}

// NetworkError is returned when the retry budget was exhausted by transport
// failures or 5xx responses. Status and Body describe the last 5xx response;
// Status is 0 when the last attempt never received a response.
type NetworkError struct {
	Path     string
	Status   int
	Attempts int
	Body     []byte
	Err      error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request %s failed after %d attempts: http %d", e.Path, e.Attempts, e.Status)
	}
	return fmt.Sprintf("request %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is returned immediately for client errors (status < 500).
type HTTPError struct {
	Path        string
	Status      int
	ContentType string
	Body        []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request %s: http %d", e.Path, e.Status)
}
