// Package envelope decodes versioned response envelopes and legacy bare bodies.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/fleetclient/internal/metrics"
	"github.com/vietddude/fleetclient/internal/pipeline/executor"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
)

// JSONContentType is the content type every API route is expected to answer with.
const JSONContentType = "application/json"

// Envelope is the wire wrapper of the versioned protocol.
type Envelope struct {
	Success       bool                 `json:"success"`
	Data          json.RawMessage      `json:"data,omitempty"`
	Error         *taxonomy.Descriptor `json:"error,omitempty"`
	CorrelationID string               `json:"correlation_id"`
	Timestamp     string               `json:"timestamp"`
}

// Kind tells what a decoded body turned out to be.
type Kind int

const (
	KindSuccess Kind = iota // versioned success envelope
	KindLegacy              // bare JSON without the success discriminator
	KindEmpty               // no body or non-JSON content
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindLegacy:
		return "legacy"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Decoded is the outcome of a successful decode. Data holds the envelope
// payload for KindSuccess and the whole body for KindLegacy.
type Decoded struct {
	Kind          Kind
	Data          json.RawMessage
	CorrelationID string
	Timestamp     string
}

// HTMLFallbackError means the UI catch-all route answered an API path.
type HTMLFallbackError struct {
	Path                string
	Status              int // 0 when the page came with a success status
	ExpectedContentType string
	ActualContentType   string
}

func (e *HTMLFallbackError) Error() string {
	return fmt.Sprintf("html fallback for %s: expected %s, got %q",
		e.Path, e.ExpectedContentType, e.ActualContentType)
}

// MalformedError means a JSON response could not be interpreted.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response for %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// CorrelationSink receives the correlation id of every success envelope.
type CorrelationSink interface {
	RecordCorrelation(operation, correlationID string)
}

// Decoder interprets raw response bodies.
type Decoder struct {
	sink   CorrelationSink
	logger *slog.Logger
}

// NewDecoder creates a Decoder. sink may be nil.
func NewDecoder(sink CorrelationSink, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{sink: sink, logger: logger}
}

// Decode interprets resp. A failure envelope is returned as a
// *taxonomy.ClassifiedError; an HTML document as *HTMLFallbackError.
func (d *Decoder) Decode(operation, path string, resp *executor.Response) (Decoded, error) {
	return d.DecodeBody(operation, path, resp.ContentType, resp.Body)
}

// DecodeBody is Decode over an explicit content type and body.
func (d *Decoder) DecodeBody(operation, path, contentType string, body []byte) (Decoded, error) {
	trimmed := bytes.TrimSpace(body)

	switch {
	case len(trimmed) == 0:
		metrics.DecodeTotal.WithLabelValues("empty").Inc()
		return Decoded{Kind: KindEmpty}, nil
	case executor.LooksLikeHTML(trimmed):
		return Decoded{}, d.htmlFallback(operation, path, contentType)
	case !executor.IsJSONContentType(contentType):
		metrics.DecodeTotal.WithLabelValues("empty").Inc()
		return Decoded{Kind: KindEmpty}, nil
	}

	switch trimmed[0] {
	case '{':
		return d.decodeObject(operation, path, contentType, trimmed)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Decoded{}, d.malformed(path, err)
		}
		if executor.LooksLikeHTML([]byte(s)) {
			return Decoded{}, d.htmlFallback(operation, path, contentType)
		}
	}

	if !json.Valid(trimmed) {
		return Decoded{}, d.malformed(path, fmt.Errorf("invalid json"))
	}
	metrics.DecodeTotal.WithLabelValues("legacy").Inc()
	return Decoded{Kind: KindLegacy, Data: json.RawMessage(trimmed)}, nil
}

func (d *Decoder) decodeObject(operation, path, contentType string, body []byte) (Decoded, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Decoded{}, d.malformed(path, err)
	}

	success, isEnvelope := discriminator(fields)
	if !isEnvelope {
		metrics.DecodeTotal.WithLabelValues("legacy").Inc()
		return Decoded{Kind: KindLegacy, Data: json.RawMessage(body)}, nil
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Decoded{}, d.malformed(path, err)
	}

	if !success {
		if env.Error == nil {
			return Decoded{}, d.malformed(path, fmt.Errorf("failure envelope without error object"))
		}
		metrics.DecodeTotal.WithLabelValues("failure").Inc()
		return Decoded{}, taxonomy.FromDescriptor(*env.Error, env.CorrelationID)
	}

	metrics.DecodeTotal.WithLabelValues("success").Inc()
	if d.sink != nil && env.CorrelationID != "" {
		d.sink.RecordCorrelation(operation, env.CorrelationID)
	}
	return Decoded{
		Kind:          KindSuccess,
		Data:          env.Data,
		CorrelationID: env.CorrelationID,
		Timestamp:     env.Timestamp,
	}, nil
}

// discriminator reports the value of a boolean "success" field, and whether
// one was present at all.
func discriminator(fields map[string]json.RawMessage) (success, ok bool) {
	raw, found := fields["success"]
	if !found {
		return false, false
	}
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// FromTransport rewrites an executor error whose response body is an HTML
// document into *HTMLFallbackError. Other errors are returned unchanged.
func (d *Decoder) FromTransport(operation string, err error) error {
	htmlErr, ok := htmlInTransport(err)
	if !ok {
		return err
	}
	d.logHTML(operation, htmlErr)
	return htmlErr
}

func (d *Decoder) htmlFallback(operation, path, contentType string) error {
	htmlErr := &HTMLFallbackError{
		Path:                path,
		ExpectedContentType: JSONContentType,
		ActualContentType:   contentType,
	}
	d.logHTML(operation, htmlErr)
	return htmlErr
}

func (d *Decoder) logHTML(operation string, e *HTMLFallbackError) {
	metrics.DecodeTotal.WithLabelValues("html").Inc()
	d.logger.Warn("API route answered with HTML",
		"operation", operation, "path", e.Path, "status", e.Status, "content_type", e.ActualContentType)
}

func (d *Decoder) malformed(path string, err error) error {
	metrics.DecodeTotal.WithLabelValues("malformed").Inc()
	return &MalformedError{Path: path, Err: err}
}

// Encode renders a success envelope around data.
func Encode(data any, correlationID string, ts time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	return json.Marshal(Envelope{
		Success:       true,
		Data:          raw,
		CorrelationID: correlationID,
		Timestamp:     ts.UTC().Format(time.RFC3339Nano),
	})
}

// EncodeFailure renders a failure envelope.
func EncodeFailure(desc taxonomy.Descriptor, correlationID string, ts time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Success:       false,
		Error:         &desc,
		CorrelationID: correlationID,
		Timestamp:     ts.UTC().Format(time.RFC3339Nano),
	})
}
