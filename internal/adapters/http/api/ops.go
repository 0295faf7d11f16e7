package api

import (
	"context"
	"net/http"

	"github.com/okian/rampart/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsProvider exposes the service counters served at /stats.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// OpsHandler serves the operational endpoints: liveness, metrics and stats.
type OpsHandler struct {
	stats StatsProvider
}

// NewOpsHandler creates an OpsHandler over stats.
func NewOpsHandler(stats StatsProvider) *OpsHandler {
	return &OpsHandler{stats: stats}
}

type healthResponse struct {
	Status   string `json:"status"`
	Pipeline string `json:"pipeline"`
}

// HandleHealth always answers 200 while the process serves HTTP. The pipeline
// field tells whether queued recomputes are being processed.
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Pipeline: "stopped"}
	if started, _ := h.stats.GetStats(r.Context())["started"].(bool); started {
		resp.Pipeline = "running"
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStats handles GET /stats.
func (h *OpsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GetStats(r.Context()))
}

// MetricsHandler serves the custom registry in Prometheus text format.
func (h *OpsHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
