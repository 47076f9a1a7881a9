// Package lifecycle governs the forward-only state machine of fiscal
// document records: pending → sent | cancelled | failed.
//
// sent and failed are terminal and immutable. A failed number is burned
// forever; a retried submission must reserve a fresh number, leaving the
// failed record as a permanent, explainable gap in the audit trail.
package lifecycle

import (
	"context"
	"time"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal/document"
	"hostal/pkg/logger"
)

// Service applies lifecycle transitions onto the ledger.
type Service struct {
	ledger document.Ledger
	audit  document.Auditor
	now    func() time.Time
}

// Option tweaks lifecycle behavior.
type Option func(*Service)

// WithAuditor attaches the audit trail recorder.
func WithAuditor(a document.Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a lifecycle controller.
func NewService(ledger document.Ledger, opts ...Option) *Service {
	s := &Service{ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkSent records the tax authority's acknowledgment. Idempotent: calling
// it again with the same external reference is a no-op; with a different
// reference it is an invalid transition.
func (s *Service) MarkSent(ctx context.Context, recordID id.ID, externalReference string) error {
	if externalReference == "" {
		return apperror.NewValidation("external reference is required")
	}

	rec, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		return err
	}

	if rec.Status == document.StatusSent {
		if rec.ExternalReference == externalReference {
			return nil
		}
		return apperror.NewInvalidTransition(string(rec.Status), string(document.StatusSent)).
			WithDetail("record_id", recordID.String()).
			WithDetail("external_reference", rec.ExternalReference)
	}

	sentAt := s.now().UTC()
	if err := s.transition(ctx, rec, document.StatusSent, document.StatusPatch{
		ExternalReference: externalReference,
		SentAt:            &sentAt,
	}); err != nil {
		return err
	}

	logger.Info(ctx, "fiscal document sent",
		"series", rec.Series,
		"number", rec.SequentialNumber,
		"external_reference", externalReference,
	)
	s.recordAudit(ctx, document.AuditSent, rec, map[string]any{"external_reference": externalReference})
	return nil
}

// MarkFailed records a gateway rejection. The number stays occupied
// forever so the external numbering shows an explainable gap instead of a
// silent reuse.
func (s *Service) MarkFailed(ctx context.Context, recordID id.ID, reason string) error {
	if reason == "" {
		return apperror.NewValidation("failure reason is required")
	}

	rec, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, rec, document.StatusFailed, document.StatusPatch{
		FailureReason: reason,
	}); err != nil {
		return err
	}

	logger.Warn(ctx, "fiscal document failed, number burned",
		"series", rec.Series,
		"number", rec.SequentialNumber,
		"reason", reason,
	)
	s.recordAudit(ctx, document.AuditFailed, rec, map[string]any{"reason": reason})
	return nil
}

// CancelPending aborts a reservation before delivery was attempted.
// Cancelling an already-cancelled record is a no-op.
func (s *Service) CancelPending(ctx context.Context, recordID id.ID) error {
	rec, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		return err
	}

	if rec.Status == document.StatusCancelled {
		return nil
	}

	if err := s.transition(ctx, rec, document.StatusCancelled, document.StatusPatch{}); err != nil {
		return err
	}

	logger.Info(ctx, "fiscal document cancelled",
		"series", rec.Series,
		"number", rec.SequentialNumber,
	)
	s.recordAudit(ctx, document.AuditCancel, rec, nil)
	return nil
}

// transition applies a compare-and-swap status change and maps conflicts
// to the transition-table errors.
func (s *Service) transition(ctx context.Context, rec *document.Record, to document.Status, patch document.StatusPatch) error {
	if !rec.Status.CanTransition(to) {
		return apperror.NewInvalidTransition(string(rec.Status), string(to)).
			WithDetail("record_id", rec.ID.String())
	}

	matched, err := s.ledger.UpdateStatus(ctx, rec.ID, rec.Status, to, patch)
	if err != nil {
		return err
	}
	if !matched {
		// Someone else moved the record between read and update. Re-read
		// and report the real conflict.
		current, ferr := s.ledger.FindByID(ctx, rec.ID)
		if ferr != nil {
			return ferr
		}
		if current.Status == to {
			return nil
		}
		return apperror.NewInvalidTransition(string(current.Status), string(to)).
			WithDetail("record_id", rec.ID.String())
	}

	rec.Status = to
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action document.AuditAction, rec *document.Record, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, rec, details); err != nil {
		logger.Warn(ctx, "fiscal audit write failed",
			"action", action,
			"record_id", rec.ID,
			"error", err,
		)
	}
}
