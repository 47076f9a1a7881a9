package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hostal/internal/domain/fiscal/stats"
	"hostal/internal/infrastructure/http/v1/dto"
)

// StatsHandler serves read-only usage and gap reports.
type StatsHandler struct {
	*BaseHandler
	stats *stats.Service
}

// NewStatsHandler creates a statistics handler.
func NewStatsHandler(base *BaseHandler, svc *stats.Service) *StatsHandler {
	return &StatsHandler{BaseHandler: base, stats: svc}
}

// Usage reports range consumption for a series.
// GET /fiscal/series/:series/usage
func (h *StatsHandler) Usage(c *gin.Context) {
	series, ok := h.ParseSeries(c, c.Param("series"))
	if !ok {
		return
	}

	usage, err := h.stats.Usage(c.Request.Context(), series)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// Gaps lists the numbers below the watermark that never reached the
// authority.
// GET /fiscal/series/:series/gaps
func (h *StatsHandler) Gaps(c *gin.Context) {
	series, ok := h.ParseSeries(c, c.Param("series"))
	if !ok {
		return
	}

	gaps, err := h.stats.Gaps(c.Request.Context(), series)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GapsResponse{Series: string(series), Gaps: gaps})
}
