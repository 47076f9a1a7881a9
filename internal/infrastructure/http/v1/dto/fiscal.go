// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
)

// ReserveRequest asks for the next sequential number of a series.
type ReserveRequest struct {
	Series           string          `json:"series" binding:"required"`
	BillingReference string          `json:"billingReference" binding:"required"`
	BuyerID          string          `json:"buyerId"`
	SellerID         string          `json:"sellerId"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
}

// IssueRequest reserves a number and submits the document in one call.
type IssueRequest struct {
	ReserveRequest
	Payload json.RawMessage `json:"payload"`
}

// MarkSentRequest records the authority's acknowledgment.
type MarkSentRequest struct {
	ExternalReference string `json:"externalReference" binding:"required"`
}

// MarkFailedRequest records the authority's rejection.
type MarkFailedRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ConfigureResolutionRequest registers a new numbering authorization.
type ConfigureResolutionRequest struct {
	Series          string    `json:"series" binding:"required"`
	Prefix          string    `json:"prefix" binding:"required"`
	RangeStart      int64     `json:"rangeStart" binding:"required"`
	RangeEnd        int64     `json:"rangeEnd" binding:"required"`
	ValidFrom       time.Time `json:"validFrom" binding:"required"`
	ValidTo         time.Time `json:"validTo" binding:"required"`
	AuthorityNumber string    `json:"authorityNumber"`
}

// ToEntity converts the request into a resolution entity.
func (r ConfigureResolutionRequest) ToEntity() *resolution.Resolution {
	return &resolution.Resolution{
		Series:          fiscal.Series(r.Series),
		Prefix:          r.Prefix,
		RangeStart:      r.RangeStart,
		RangeEnd:        r.RangeEnd,
		ValidFrom:       r.ValidFrom,
		ValidTo:         r.ValidTo,
		AuthorityNumber: r.AuthorityNumber,
	}
}

// BackfillRequest registers historical numbers. Either a single number or
// an inclusive from/to block.
type BackfillRequest struct {
	Series           string `json:"series" binding:"required"`
	Number           int64  `json:"number"`
	From             int64  `json:"from"`
	To               int64  `json:"to"`
	Prefix           string `json:"prefix"`
	BillingReference string `json:"billingReference"`
	Force            bool   `json:"force"`
}

// IsRange reports whether the request targets a block of numbers.
func (r BackfillRequest) IsRange() bool {
	return r.Number == 0 && r.From > 0
}

// DocumentResponse is the API view of a ledger record.
type DocumentResponse struct {
	ID                string          `json:"id"`
	Series            string          `json:"series"`
	SequentialNumber  int64           `json:"sequentialNumber"`
	Prefix            string          `json:"prefix"`
	FullNumber        string          `json:"fullNumber"`
	Status            string          `json:"status"`
	BillingReference  string          `json:"billingReference"`
	BuyerID           string          `json:"buyerId,omitempty"`
	SellerID          string          `json:"sellerId,omitempty"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	TaxAmount         decimal.Decimal `json:"taxAmount"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	ExternalReference string          `json:"externalReference,omitempty"`
	FailureReason     string          `json:"failureReason,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
}

// FromRecord maps a ledger record to its API view.
func FromRecord(rec *document.Record) DocumentResponse {
	return DocumentResponse{
		ID:                rec.ID.String(),
		Series:            string(rec.Series),
		SequentialNumber:  rec.SequentialNumber,
		Prefix:            rec.Prefix,
		FullNumber:        rec.FullNumber(),
		Status:            string(rec.Status),
		BillingReference:  rec.BillingReference,
		BuyerID:           rec.BuyerID,
		SellerID:          rec.SellerID,
		NetAmount:         rec.NetAmount,
		TaxAmount:         rec.TaxAmount,
		TotalAmount:       rec.TotalAmount,
		ExternalReference: rec.ExternalReference,
		FailureReason:     rec.FailureReason,
		CreatedAt:         rec.CreatedAt,
		SentAt:            rec.SentAt,
	}
}

// FromRecords maps a slice of ledger records.
func FromRecords(recs []*document.Record) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// ResolutionResponse is the API view of a numbering resolution.
type ResolutionResponse struct {
	ID              string    `json:"id"`
	Series          string    `json:"series"`
	Prefix          string    `json:"prefix"`
	RangeStart      int64     `json:"rangeStart"`
	RangeEnd        int64     `json:"rangeEnd"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidTo         time.Time `json:"validTo"`
	AuthorityNumber string    `json:"authorityNumber,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FromResolution maps a resolution to its API view.
func FromResolution(res *resolution.Resolution) ResolutionResponse {
	return ResolutionResponse{
		ID:              res.ID.String(),
		Series:          string(res.Series),
		Prefix:          res.Prefix,
		RangeStart:      res.RangeStart,
		RangeEnd:        res.RangeEnd,
		ValidFrom:       res.ValidFrom,
		ValidTo:         res.ValidTo,
		AuthorityNumber: res.AuthorityNumber,
		CreatedAt:       res.CreatedAt,
	}
}

// GapsResponse lists numbers that never reached the authority.
type GapsResponse struct {
	Series string  `json:"series"`
	Gaps   []int64 `json:"gaps"`
}
