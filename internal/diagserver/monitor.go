package diagserver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/fleetclient/internal/fleet"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
)

// StatsFetcher fetches the backend host summary.
type StatsFetcher interface {
	SystemStats(ctx context.Context) (fleet.Result[fleet.SystemStats], error)
}

// Monitor polls the backend and keeps the latest BackendHealth.
type Monitor struct {
	fetcher  StatsFetcher
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	health BackendHealth
}

// NewMonitor creates a Monitor polling every interval.
func NewMonitor(fetcher StatsFetcher, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		// Unknown until the first poll.
		health: BackendHealth{Status: StatusDegraded},
	}
}

// Start polls until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check polls the backend once and returns the updated health.
func (m *Monitor) Check(ctx context.Context) BackendHealth {
	start := time.Now()
	res, err := m.fetcher.SystemStats(ctx)
	latency := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.health
	h.LastCheck = start
	h.Latency = latency.String()

	switch {
	case err != nil:
		h.ConsecutiveFailures++
		h.LastCode = taxonomy.CodeInvalidRequest
		h.LastCorrelationID = ""
		m.logger.Error("Health poll could not be issued", "error", err)
	case !res.IsOk():
		h.ConsecutiveFailures++
		h.LastCode = res.Err().Code
		h.LastCorrelationID = res.Err().CorrelationID
	default:
		h.ConsecutiveFailures = 0
		h.LastCode = ""
		h.LastCorrelationID = ""
		h.CPU = res.Value().CPU
	}

	switch {
	case h.ConsecutiveFailures == 0:
		h.Status = StatusHealthy
	case h.ConsecutiveFailures >= criticalAfter:
		h.Status = StatusCritical
	default:
		h.Status = StatusDegraded
	}

	if h.Status != m.health.Status {
		m.logger.Info("Backend health changed",
			"from", m.health.Status, "to", h.Status, "code", h.LastCode)
	}
	m.health = h
	return h
}

// Health returns the last computed health.
func (m *Monitor) Health() BackendHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}
