package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/andre-dussing/european-public-data-pipeline/metrics"
	"github.com/andre-dussing/european-public-data-pipeline/pipeline"
)

// HealthServer exposes liveness, readiness, and stats endpoints
type HealthServer struct {
	server  *http.Server
	stats   *pipeline.Stats
	logger  *zap.Logger
	started time.Time
}

func NewHealthServer(port int, stats *pipeline.Stats, m *metrics.Metrics, logger *zap.Logger) *HealthServer {
	h := &HealthServer{
		stats:   stats,
		logger:  logger,
		started: time.Now().UTC(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	mux.Handle("/metrics", m.Handler())

	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return h
}

func (h *HealthServer) Start() {
	go func() {
		h.logger.Info("Health server listening", zap.String("addr", h.server.Addr))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Health server failed", zap.Error(err))
		}
	}()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stages, rowsLoaded := h.stats.Snapshot()

	status := "healthy"
	code := http.StatusOK
	if !h.stats.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      status,
		"uptime":      time.Since(h.started).String(),
		"stages":      stages,
		"rows_loaded": rowsLoaded,
	})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (h *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
