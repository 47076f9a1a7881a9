package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hostal/internal/domain/fiscal/resolution"
	"hostal/internal/infrastructure/http/v1/dto"
)

// ResolutionHandler handles the administrative resolution surface.
type ResolutionHandler struct {
	*BaseHandler
	registry *resolution.Registry
}

// NewResolutionHandler creates a resolution handler.
func NewResolutionHandler(base *BaseHandler, registry *resolution.Registry) *ResolutionHandler {
	return &ResolutionHandler{BaseHandler: base, registry: registry}
}

// Configure registers a new numbering resolution.
// POST /fiscal/resolutions
func (h *ResolutionHandler) Configure(c *gin.Context) {
	var req dto.ConfigureResolutionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if _, ok := h.ParseSeries(c, req.Series); !ok {
		return
	}

	res := req.ToEntity()
	if err := h.registry.Configure(c.Request.Context(), res); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromResolution(res))
}

// List returns every resolution of a series.
// GET /fiscal/resolutions?series=invoice
func (h *ResolutionHandler) List(c *gin.Context) {
	series, ok := h.ParseSeries(c, c.Query("series"))
	if !ok {
		return
	}

	all, err := h.registry.List(c.Request.Context(), series)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.ResolutionResponse, 0, len(all))
	for _, res := range all {
		out = append(out, dto.FromResolution(res))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// Active returns the resolution currently authorizing a series.
// GET /fiscal/resolutions/active?series=invoice
func (h *ResolutionHandler) Active(c *gin.Context) {
	series, ok := h.ParseSeries(c, c.Query("series"))
	if !ok {
		return
	}

	res, err := h.registry.ActiveResolution(c.Request.Context(), series, time.Now().UTC())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromResolution(res))
}
