package handlers

import (
	"net/http"
	"time"

	"video-narrator/core/monitoring"
	"video-narrator/storage"

	"go.uber.org/zap"
)

// SystemHandler serves health and metrics
type SystemHandler struct {
	workspace *storage.Workspace
	metrics   *monitoring.MetricsExporter
	logger    *zap.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(workspace *storage.Workspace, metrics *monitoring.MetricsExporter, logger *zap.Logger) *SystemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemHandler{workspace: workspace, metrics: metrics, logger: logger}
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"directories": h.workspace.DirectoryStatus(),
	})
}

// Metrics handles GET /metrics
func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	text, err := h.metrics.GetPrometheusMetrics(r.Context())
	if err != nil {
		h.logger.Error("render metrics", zap.Error(err))
		http.Error(w, "Failed to render metrics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(text))
}
