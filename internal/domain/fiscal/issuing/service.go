// Package issuing orchestrates the full outbound flow: reserve a number,
// submit the document to the tax authority gateway, and settle the record
// according to the gateway's answer.
package issuing

import (
	"context"
	"encoding/json"
	"errors"

	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/allocator"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/lifecycle"
	"hostal/pkg/logger"
)

// Submission is what the gateway needs to deliver one document. The
// payload is the pre-built document body; its shape belongs to the
// gateway's protocol, not to this core.
type Submission struct {
	Series           fiscal.Series   `json:"series"`
	Prefix           string          `json:"prefix"`
	SequentialNumber int64           `json:"sequentialNumber"`
	Payload          json.RawMessage `json:"payload"`
}

// Receipt is the gateway's acknowledgment.
type Receipt struct {
	ExternalReference string `json:"externalReference"`
}

// RejectionError is a business-level refusal by the tax authority. It
// burns the reserved number. Transport-level failures are ordinary errors
// and leave the record pending for the operator.
type RejectionError struct {
	Reason string
}

// Error implements error.
func (e *RejectionError) Error() string {
	return "tax authority rejected document: " + e.Reason
}

// Gateway delivers fiscal documents to the tax authority.
type Gateway interface {
	Submit(ctx context.Context, sub Submission) (*Receipt, error)
}

// Service is the issuing orchestrator.
type Service struct {
	allocator *allocator.Service
	lifecycle *lifecycle.Service
	gateway   Gateway
}

// NewService creates an issuing orchestrator.
func NewService(alloc *allocator.Service, lc *lifecycle.Service, gw Gateway) *Service {
	return &Service{allocator: alloc, lifecycle: lc, gateway: gw}
}

// Issue reserves the next number for the series, submits the document,
// and finalizes the record.
//
// Outcomes:
//   - acknowledgment: record marked sent, returned with its reference
//   - rejection: record marked failed (number burned), error returned
//   - transport failure: record stays pending, error returned; the
//     operator either cancels it or retries delivery out of band
func (s *Service) Issue(ctx context.Context, series fiscal.Series, input allocator.Input, payload json.RawMessage) (*document.Record, error) {
	rec, err := s.allocator.ReserveNext(ctx, series, input)
	if err != nil {
		return nil, err
	}

	receipt, err := s.gateway.Submit(ctx, Submission{
		Series:           series,
		Prefix:           rec.Prefix,
		SequentialNumber: rec.SequentialNumber,
		Payload:          payload,
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			if ferr := s.lifecycle.MarkFailed(ctx, rec.ID, rejection.Reason); ferr != nil {
				logger.Error(ctx, "could not mark rejected document as failed",
					"record_id", rec.ID,
					"error", ferr,
				)
			}
			return nil, err
		}

		logger.Warn(ctx, "gateway unreachable, reservation left pending",
			"series", series,
			"number", rec.SequentialNumber,
			"error", err,
		)
		return nil, err
	}

	if err := s.lifecycle.MarkSent(ctx, rec.ID, receipt.ExternalReference); err != nil {
		return nil, err
	}
	rec.ExternalReference = receipt.ExternalReference
	rec.Status = document.StatusSent
	return rec, nil
}
