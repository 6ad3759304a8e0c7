package diagserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vietddude/fleetclient/internal/pipeline/diag"
	"github.com/vietddude/fleetclient/internal/pipeline/envelope"
)

// Server provides HTTP endpoints for diagnostics.
type Server struct {
	monitor  *Monitor
	recorder *diag.Recorder
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new diagnostics server. monitor may be nil.
func NewServer(monitor *Monitor, recorder *diag.Recorder, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor:  monitor,
		recorder: recorder,
		logger:   logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/diagnostics/correlations", s.handleCorrelations)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.write(w, http.StatusOK, map[string]string{"status": string(StatusHealthy)})
		return
	}

	health := s.monitor.Health()
	status := http.StatusOK
	if health.Status == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	s.write(w, status, health)
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	if op := r.URL.Query().Get("operation"); op != "" {
		s.write(w, http.StatusOK, s.recorder.Recent(op))
		return
	}
	s.write(w, http.StatusOK, s.recorder.Snapshot())
}

// write answers with a success envelope, like the backend does.
func (s *Server) write(w http.ResponseWriter, status int, data any) {
	body, err := envelope.Encode(data, uuid.NewString(), time.Now())
	if err != nil {
		s.logger.Error("Failed to encode diagnostics response", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", envelope.JSONContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
