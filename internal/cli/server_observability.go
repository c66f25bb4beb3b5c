package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ObservabilityServer serves Prometheus metrics and a health endpoint while
// watch mode runs.
type ObservabilityServer struct {
	addr    string
	server  *http.Server
	lastRun atomic.Pointer[healthStatus]
}

type healthStatus struct {
	Status       string    `json:"status"`
	LastPass     time.Time `json:"last_pass"`
	Declarations int       `json:"declarations"`
	Failures     int       `json:"failures"`
}

func NewObservabilityServer(addr string) *ObservabilityServer {
	s := &ObservabilityServer{addr: addr}
	s.lastRun.Store(&healthStatus{Status: "starting"})
	return s
}

// RecordPass updates the health payload after a resolution pass.
func (s *ObservabilityServer) RecordPass(report *Report) {
	status := "up"
	if len(report.Failures) > 0 {
		status = "degraded"
	}
	s.lastRun.Store(&healthStatus{
		Status:       status,
		LastPass:     time.Now(),
		Declarations: report.Submitted,
		Failures:     len(report.Failures),
	})
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.lastRun.Load()
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	slog.Info("observability server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
