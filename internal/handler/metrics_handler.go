package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      pinger
}

// NewMetricsHandler constructs a metrics handler. db may be nil, in which case
// readiness always succeeds.
func NewMetricsHandler(metrics *service.MetricsService, db pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db}
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

// Ready reports whether the database accepts connections.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			response.Error(c, appErrors.Wrap(err, "NOT_READY", http.StatusServiceUnavailable, "database unavailable"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// System godoc
// @Summary Request and transaction counters
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *MetricsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
