// Package diagserver exposes backend health, recent correlation ids and
// Prometheus metrics over HTTP.
package diagserver

import "time"

// SystemStatus represents the health state of the backend as seen by the client.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// criticalAfter is the number of consecutive failed polls that makes the
// backend critical.
const criticalAfter = 3

// BackendHealth is the outcome of the last health polls.
type BackendHealth struct {
	Status              SystemStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastCode            string       `json:"last_code,omitempty"`
	LastCorrelationID   string       `json:"last_correlation_id,omitempty"`
	CPU                 float64      `json:"cpu"`
	LastCheck           time.Time    `json:"last_check"`
	Latency             string       `json:"latency"`
}
