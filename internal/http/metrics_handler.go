package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/lounge-reconciler/internal/telemetry"
)

type snapshotter interface {
	Snapshot(ctx context.Context) ([]telemetry.Point, error)
}

// MetricsHandler serves the current instrument readings as JSON.
type MetricsHandler struct {
	source    snapshotter
	responder responder
}

// NewMetricsHandler reads from source on every request.
func NewMetricsHandler(source snapshotter, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{source: source, responder: newResponder(defaultLogger(logger))}
}

// Snapshot writes one collection of every instrument.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	points, err := h.source.Snapshot(r.Context())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, err)
		return
	}
	if points == nil {
		points = []telemetry.Point{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, metricsResponse{Metrics: points})
}

type metricsResponse struct {
	Metrics []telemetry.Point `json:"metrics"`
}
