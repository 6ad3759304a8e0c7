package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vietddude/fleetclient/internal/pipeline/executor"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
)

// ClassifyError converts any pipeline error into a ClassifiedError.
// A failure envelope carried in an error response body takes precedence
// over the bare HTTP status.
func ClassifyError(err error) *taxonomy.ClassifiedError {
	if err == nil {
		return nil
	}
	if ce, ok := taxonomy.As(err); ok {
		return ce
	}

	if htmlErr, ok := AsHTMLFallback(err); ok {
		opts := []taxonomy.Option{
			taxonomy.WithDetails(fmt.Sprintf("expected %s, got %q", htmlErr.ExpectedContentType, htmlErr.ActualContentType)),
			taxonomy.WithCause(err),
		}
		if htmlErr.Status != 0 {
			opts = append(opts, taxonomy.WithHTTPStatus(htmlErr.Status))
		}
		return taxonomy.New(taxonomy.CodeRouteMisconfigured,
			fmt.Sprintf("%s is served by the UI instead of the API", htmlErr.Path), opts...)
	}

	var (
		malformedErr *MalformedError
		httpErr      *executor.HTTPError
		netErr       *executor.NetworkError
		timeoutErr   *executor.TimeoutError
	)

	switch {
	case errors.As(err, &malformedErr):
		return taxonomy.New(taxonomy.CodeMalformedResponse, malformedErr.Error(),
			taxonomy.WithCause(err))

	case errors.As(err, &httpErr):
		if ce := fromFailureBody(httpErr.Body, httpErr.Status); ce != nil {
			return ce
		}
		return fromStatus(httpErr.Status, err)

	case errors.As(err, &timeoutErr):
		return taxonomy.New(taxonomy.CodeRequestTimeout, timeoutErr.Error(),
			taxonomy.WithRetryable(true),
			taxonomy.WithCause(err),
		)

	case errors.As(err, &netErr):
		if netErr.Status != 0 {
			if ce := fromFailureBody(netErr.Body, netErr.Status); ce != nil {
				return ce
			}
			return fromStatus(netErr.Status, err)
		}
		return taxonomy.New(taxonomy.CodeNetworkError, netErr.Error(),
			taxonomy.WithRetryable(true),
			taxonomy.WithCause(err),
		)

	case errors.Is(err, executor.ErrInvalidDescriptor):
		return taxonomy.New(taxonomy.CodeInvalidRequest, err.Error(), taxonomy.WithCause(err))

	default:
		return taxonomy.New(taxonomy.CodeInternalError, err.Error(), taxonomy.WithCause(err))
	}
}

// AsHTMLFallback reports whether an HTML page answered the API path, either
// as a decoded *HTMLFallbackError or as the body of an HTTP error response.
func AsHTMLFallback(err error) (*HTMLFallbackError, bool) {
	var htmlErr *HTMLFallbackError
	if errors.As(err, &htmlErr) {
		return htmlErr, true
	}
	return htmlInTransport(err)
}

func htmlInTransport(err error) (*HTMLFallbackError, bool) {
	var httpErr *executor.HTTPError
	if errors.As(err, &httpErr) && executor.LooksLikeHTML(httpErr.Body) {
		return &HTMLFallbackError{
			Path:                httpErr.Path,
			Status:              httpErr.Status,
			ExpectedContentType: JSONContentType,
			ActualContentType:   httpErr.ContentType,
		}, true
	}
	var netErr *executor.NetworkError
	if errors.As(err, &netErr) && netErr.Status != 0 && executor.LooksLikeHTML(netErr.Body) {
		return &HTMLFallbackError{
			Path:                netErr.Path,
			Status:              netErr.Status,
			ExpectedContentType: JSONContentType,
		}, true
	}
	return nil, false
}

// IsFailureEnvelope reports whether body is a versioned failure envelope.
func IsFailureEnvelope(body []byte) bool {
	_, _, ok := failureEnvelope(body)
	return ok
}

func failureEnvelope(body []byte) (taxonomy.Descriptor, string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return taxonomy.Descriptor{}, "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return taxonomy.Descriptor{}, "", false
	}
	success, ok := discriminator(fields)
	if !ok || success {
		return taxonomy.Descriptor{}, "", false
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Error == nil {
		return taxonomy.Descriptor{}, "", false
	}
	return *env.Error, env.CorrelationID, true
}

// fromFailureBody classifies a business failure. The transport error is not
// kept as cause: the server answered, so the route exists.
func fromFailureBody(body []byte, status int) *taxonomy.ClassifiedError {
	desc, correlationID, ok := failureEnvelope(body)
	if !ok {
		return nil
	}
	return taxonomy.FromDescriptor(desc, correlationID, taxonomy.WithHTTPStatus(status))
}

func fromStatus(status int, cause error) *taxonomy.ClassifiedError {
	opts := []taxonomy.Option{taxonomy.WithHTTPStatus(status), taxonomy.WithCause(cause)}
	msg := fmt.Sprintf("http %d %s", status, http.StatusText(status))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return taxonomy.New(taxonomy.CodeUnauthorized, msg, opts...)
	case status == http.StatusTooManyRequests:
		return taxonomy.New(taxonomy.CodeRateLimited, msg, append(opts, taxonomy.WithRetryable(true))...)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return taxonomy.New(taxonomy.CodeInvalidRequest, msg, opts...)
	case status >= 500:
		return taxonomy.New(taxonomy.CodeInternalError, msg, append(opts, taxonomy.WithRetryable(true))...)
	default:
		return taxonomy.New(taxonomy.CodeHTTPError, msg, opts...)
	}
}
