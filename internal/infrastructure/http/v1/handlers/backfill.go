package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hostal/internal/core/apperror"
	"hostal/internal/domain/fiscal/backfill"
	"hostal/internal/infrastructure/http/v1/dto"
)

// BackfillHandler handles registration of historical numbers.
type BackfillHandler struct {
	*BaseHandler
	backfill *backfill.Service
}

// NewBackfillHandler creates a backfill handler.
func NewBackfillHandler(base *BaseHandler, svc *backfill.Service) *BackfillHandler {
	return &BackfillHandler{BaseHandler: base, backfill: svc}
}

// Register inserts one historical number, or a contiguous block when
// from/to are given.
// POST /fiscal/backfill
func (h *BackfillHandler) Register(c *gin.Context) {
	var req dto.BackfillRequest
	if !h.BindJSON(c, &req) {
		return
	}
	series, ok := h.ParseSeries(c, req.Series)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if req.IsRange() {
		recs, err := h.backfill.RegisterRange(ctx, series, req.From, req.To, req.Prefix, req.Force)
		if err != nil {
			h.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"items": dto.FromRecords(recs)})
		return
	}

	if req.Number <= 0 {
		h.Error(c, apperror.NewValidation("number or from/to range is required"))
		return
	}

	rec, err := h.backfill.Register(ctx, backfill.Request{
		Series:           series,
		SequentialNumber: req.Number,
		Prefix:           req.Prefix,
		BillingReference: req.BillingReference,
		Force:            req.Force,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromRecord(rec))
}
