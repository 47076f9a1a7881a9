package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal/allocator"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/issuing"
	"hostal/internal/domain/fiscal/lifecycle"
	"hostal/internal/infrastructure/http/v1/dto"
)

// DocumentHandler handles fiscal document allocation and lifecycle.
type DocumentHandler struct {
	*BaseHandler
	allocator *allocator.Service
	lifecycle *lifecycle.Service
	issuing   *issuing.Service
	ledger    document.Ledger
}

// NewDocumentHandler creates a fiscal document handler.
func NewDocumentHandler(base *BaseHandler, alloc *allocator.Service, lc *lifecycle.Service, iss *issuing.Service, ledger document.Ledger) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler: base,
		allocator:   alloc,
		lifecycle:   lc,
		issuing:     iss,
		ledger:      ledger,
	}
}

func (h *DocumentHandler) allocatorInput(req dto.ReserveRequest) allocator.Input {
	return allocator.Input{
		BillingReference: req.BillingReference,
		BuyerID:          req.BuyerID,
		SellerID:         req.SellerID,
		NetAmount:        req.NetAmount,
		TaxAmount:        req.TaxAmount,
		TotalAmount:      req.TotalAmount,
	}
}

// Reserve allocates the next sequential number without delivering.
// POST /fiscal/documents/reserve
func (h *DocumentHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	series, ok := h.ParseSeries(c, req.Series)
	if !ok {
		return
	}

	rec, err := h.allocator.ReserveNext(c.Request.Context(), series, h.allocatorInput(req))
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromRecord(rec))
}

// Issue reserves a number and submits the document to the authority.
// POST /fiscal/documents/issue
func (h *DocumentHandler) Issue(c *gin.Context) {
	var req dto.IssueRequest
	if !h.BindJSON(c, &req) {
		return
	}
	series, ok := h.ParseSeries(c, req.Series)
	if !ok {
		return
	}

	rec, err := h.issuing.Issue(c.Request.Context(), series, h.allocatorInput(req.ReserveRequest), req.Payload)
	if err != nil {
		var rejection *issuing.RejectionError
		if errors.As(err, &rejection) {
			h.Error(c, apperror.NewConflict("tax authority rejected document").
				WithDetail("reason", rejection.Reason))
			return
		}
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromRecord(rec))
}

// MarkSent finalizes a pending record after authority acknowledgment.
// POST /fiscal/documents/:id/sent
func (h *DocumentHandler) MarkSent(c *gin.Context) {
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	var req dto.MarkSentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.lifecycle.MarkSent(c.Request.Context(), recordID, req.ExternalReference); err != nil {
		h.Error(c, err)
		return
	}
	h.respondWithRecord(c, recordID)
}

// MarkFailed burns the number of a rejected document.
// POST /fiscal/documents/:id/failed
func (h *DocumentHandler) MarkFailed(c *gin.Context) {
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	var req dto.MarkFailedRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.lifecycle.MarkFailed(c.Request.Context(), recordID, req.Reason); err != nil {
		h.Error(c, err)
		return
	}
	h.respondWithRecord(c, recordID)
}

// Cancel releases a pending reservation.
// POST /fiscal/documents/:id/cancel
func (h *DocumentHandler) Cancel(c *gin.Context) {
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.CancelPending(c.Request.Context(), recordID); err != nil {
		h.Error(c, err)
		return
	}
	h.respondWithRecord(c, recordID)
}

// Get returns one fiscal document.
// GET /fiscal/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	recordID, ok := h.recordID(c)
	if !ok {
		return
	}
	h.respondWithRecord(c, recordID)
}

// List returns documents of a series ordered by number.
// GET /fiscal/documents?series=invoice&status=pending
func (h *DocumentHandler) List(c *gin.Context) {
	series, ok := h.ParseSeries(c, c.Query("series"))
	if !ok {
		return
	}

	filter := document.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status := document.Status(raw)
		if !status.Valid() {
			h.Error(c, apperror.NewValidation("unknown status").WithDetail("status", raw))
			return
		}
		filter.Status = &status
	}

	recs, err := h.ledger.ListBySeries(c.Request.Context(), series, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.FromRecords(recs)})
}

func (h *DocumentHandler) recordID(c *gin.Context) (id.ID, bool) {
	recordID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return id.Nil(), false
	}
	return recordID, true
}

func (h *DocumentHandler) respondWithRecord(c *gin.Context, recordID id.ID) {
	rec, err := h.ledger.FindByID(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromRecord(rec))
}
