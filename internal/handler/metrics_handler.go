package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/service"
	"github.com/unireg/unireg-api/pkg/response"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	ready   func(ctx context.Context) error
}

// NewMetricsHandler constructs a metrics handler. The ready func probes
// backing stores for the readiness endpoint and may be nil.
func NewMetricsHandler(metrics *service.MetricsService, ready func(ctx context.Context) error) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, ready: ready}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Snapshot godoc
// @Summary Aggregate runtime metrics
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope{data=models.SystemMetrics}
// @Security BearerAuth
// @Router /admin/system/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Ready reports whether backing stores are reachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
