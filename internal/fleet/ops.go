package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/vietddude/fleetclient/internal/pipeline/compat"
	"github.com/vietddude/fleetclient/internal/pipeline/contract"
)

// Operation names used for logs, metrics and the correlation register.
const (
	OpSystemStats     = "system.stats"
	OpListCameras     = "cameras.list"
	OpCaptureSnapshot = "cameras.capture"
	OpRerunAnalysis   = "analysis.rerun"
	OpRaw             = "raw"
)

// SystemStats is the backend host summary.
type SystemStats struct {
	CPU           float64 `json:"cpu"`
	Memory        float64 `json:"memory,omitempty"`
	Disk          float64 `json:"disk,omitempty"`
	UptimeSeconds float64 `json:"uptimeSeconds,omitempty"`
}

var systemStatsContract = contract.Object(
	contract.Field("cpu", contract.Number()),
	contract.Field("memory", contract.Optional(contract.Number())),
	contract.Field("disk", contract.Optional(contract.Number())),
	contract.Field("uptimeSeconds", contract.Optional(contract.Number())),
)

// SystemStats fetches GET /v1/system/stats.
func (c *Client) SystemStats(ctx context.Context) (Result[SystemStats], error) {
	return Do[SystemStats](ctx, c, Request{
		Operation: OpSystemStats,
		Method:    http.MethodGet,
		Path:      "/system/stats",
		Auth:      true,
		Validator: systemStatsContract,
	})
}

// Camera is one camera in versioned shape.
type Camera struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

var cameraListContract = contract.MustCompileSchema("camera-list", `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string"},
			"status": {"enum": ["online", "offline", "unknown"]},
			"lastSeen": {"type": ["string", "null"]}
		}
	}
}`)

// legacyCameraRenames translates legacy camera keys that are not plain
// snake_case of their versioned names.
var legacyCameraRenames = Renames{
	"device_id":   "id",
	"camera_name": "name",
}

// ListCameras fetches the camera list, falling back to the legacy
// GET /cameras route on backends without the versioned one.
func (c *Client) ListCameras(ctx context.Context) (Result[[]Camera], error) {
	return WithFallback[[]Camera](ctx, c,
		Request{
			Operation: OpListCameras,
			Method:    http.MethodGet,
			Path:      "/cameras",
			Auth:      true,
			Validator: cameraListContract,
		},
		Request{
			Operation: OpListCameras,
			Method:    http.MethodGet,
			Path:      "/cameras",
			Auth:      true,
		},
		legacyCameraRenames,
	)
}

// Snapshot is the result of a capture.
type Snapshot struct {
	CameraID   string `json:"cameraId"`
	ImageURL   string `json:"imageUrl"`
	CapturedAt string `json:"capturedAt"`
}

// CaptureSnapshot triggers POST /v1/cameras/{id}/capture with the
// dedicated capture budget.
func (c *Client) CaptureSnapshot(ctx context.Context, cameraID string) (Result[Snapshot], error) {
	return Do[Snapshot](ctx, c, Request{
		Operation: OpCaptureSnapshot,
		Method:    http.MethodPost,
		Path:      "/cameras/" + url.PathEscape(cameraID) + "/capture",
		Auth:      true,
		Timeout:   c.captureTimeout,
	})
}

// RerunJob is the accepted re-run of an analysis.
type RerunJob struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// RerunAnalysis probes POST /v1/analysis/{id}/rerun. Backends without the
// feature yield Capability{Supported: false}.
func (c *Client) RerunAnalysis(ctx context.Context, analysisID string) (Result[compat.Capability[RerunJob]], error) {
	return ProbeFeature[RerunJob](ctx, c, Request{
		Operation: OpRerunAnalysis,
		Method:    http.MethodPost,
		Path:      "/analysis/" + url.PathEscape(analysisID) + "/rerun",
		Auth:      true,
	})
}

// Get fetches an arbitrary path and returns its payload untouched.
func (c *Client) Get(ctx context.Context, path string, legacy bool) (Result[json.RawMessage], error) {
	return Do[json.RawMessage](ctx, c, Request{
		Operation: OpRaw,
		Method:    http.MethodGet,
		Path:      path,
		Auth:      true,
		Legacy:    legacy,
	})
}
