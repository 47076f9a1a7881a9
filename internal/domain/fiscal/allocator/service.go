// Package allocator reserves the next legal sequential number for a
// fiscal document series.
//
// There is no native counter: the next number is derived from the ledger
// itself (max over occupied statuses + 1), so allocation is an optimistic
// loop. The storage-level uniqueness constraint on (series, number) is the
// actual safety net; the transaction around read-max + insert only shrinks
// the race window. A lost race surfaces as document.ErrNumberTaken and is
// retried against a fresh max, bounded by an attempt and time budget.
package allocator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/core/tx"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
	"hostal/pkg/logger"
)

const (
	// defaultMaxAttempts bounds the optimistic retry loop.
	defaultMaxAttempts = 5

	// defaultRetryBudget bounds total time spent fighting for a number.
	defaultRetryBudget = 2 * time.Second
)

// Input is what the billing collaborator hands over when it needs a
// number. Amounts are trusted; this core does not validate business
// payability.
type Input struct {
	BillingReference string
	BuyerID          string
	SellerID         string
	NetAmount        decimal.Decimal
	TaxAmount        decimal.Decimal
	TotalAmount      decimal.Decimal
}

// Service computes and atomically reserves sequential numbers.
type Service struct {
	registry  *resolution.Registry
	ledger    document.Ledger
	txManager tx.Manager
	audit     document.Auditor

	maxAttempts int
	retryBudget time.Duration
	now         func() time.Time
}

// Option tweaks allocator behavior.
type Option func(*Service)

// WithRetryPolicy overrides the attempt and time budget.
func WithRetryPolicy(attempts int, budget time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if budget > 0 {
			s.retryBudget = budget
		}
	}
}

// WithAuditor attaches the audit trail recorder.
func WithAuditor(a document.Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a sequence allocator.
func NewService(registry *resolution.Registry, ledger document.Ledger, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		registry:    registry,
		ledger:      ledger,
		txManager:   txManager,
		maxAttempts: defaultMaxAttempts,
		retryBudget: defaultRetryBudget,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveNext allocates the next number for the series and creates the
// pending record in the same step. Number and row are born together so a
// crash mid-allocation leaves a visible pending row, never a lost number.
func (s *Service) ReserveNext(ctx context.Context, series fiscal.Series, input Input) (*document.Record, error) {
	now := s.now().UTC()

	res, err := s.registry.ActiveResolution(ctx, series, now)
	if err != nil {
		return nil, err
	}

	deadline := now.Add(s.retryBudget)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if s.now().After(deadline) {
			break
		}

		rec, err := s.tryReserve(ctx, series, res, input, now)
		if err == nil {
			logger.Info(ctx, "fiscal number reserved",
				"series", series,
				"number", rec.SequentialNumber,
				"prefix", rec.Prefix,
				"attempt", attempt,
			)
			s.recordAudit(ctx, document.AuditAllocate, rec, map[string]any{"attempt": attempt})
			return rec, nil
		}
		if !errors.Is(err, document.ErrNumberTaken) {
			return nil, err
		}
		// A concurrent allocator won this candidate; re-read the max.
	}

	return nil, apperror.NewAllocationContention(string(series), s.maxAttempts)
}

// tryReserve performs one read-max + insert round inside a transaction.
func (s *Service) tryReserve(ctx context.Context, series fiscal.Series, res *resolution.Resolution, input Input, now time.Time) (*document.Record, error) {
	var rec *document.Record

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		candidate, err := s.nextCandidate(ctx, series, res)
		if err != nil {
			return err
		}

		rec = &document.Record{
			ID:               id.New(),
			Series:           series,
			SequentialNumber: candidate,
			Prefix:           res.Prefix,
			Status:           document.StatusPending,
			BillingReference: input.BillingReference,
			BuyerID:          input.BuyerID,
			SellerID:         input.SellerID,
			NetAmount:        input.NetAmount,
			TaxAmount:        input.TaxAmount,
			TotalAmount:      input.TotalAmount,
			CreatedAt:        now,
		}
		return s.ledger.InsertPending(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// nextCandidate derives the candidate number from the ledger watermark.
func (s *Service) nextCandidate(ctx context.Context, series fiscal.Series, res *resolution.Resolution) (int64, error) {
	max, found, err := s.ledger.FindMaxAllocated(ctx, series, document.OccupiedStatuses)
	if err != nil {
		return 0, err
	}

	candidate := res.RangeStart
	if found && max+1 > candidate {
		candidate = max + 1
	}

	if candidate > res.RangeEnd {
		// Hard stop. Never wrap around, never reuse a lower number.
		return 0, apperror.NewRangeExhausted(string(series), res.RangeEnd)
	}
	return candidate, nil
}

// Release cancels a pending reservation before delivery was attempted.
// Records in any other status cannot be released.
func (s *Service) Release(ctx context.Context, recordID id.ID) error {
	rec, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		return err
	}

	if rec.Status == document.StatusCancelled {
		// Releasing twice is a no-op.
		return nil
	}
	if rec.Status != document.StatusPending {
		return apperror.NewReleaseNotPending(string(rec.Status)).
			WithDetail("record_id", recordID.String())
	}

	matched, err := s.ledger.UpdateStatus(ctx, recordID, document.StatusPending, document.StatusCancelled, document.StatusPatch{})
	if err != nil {
		return err
	}
	if !matched {
		// Lost a race with another transition; report against fresh state.
		current, ferr := s.ledger.FindByID(ctx, recordID)
		if ferr != nil {
			return ferr
		}
		if current.Status == document.StatusCancelled {
			return nil
		}
		return apperror.NewReleaseNotPending(string(current.Status)).
			WithDetail("record_id", recordID.String())
	}

	logger.Info(ctx, "fiscal number released",
		"series", rec.Series,
		"number", rec.SequentialNumber,
	)
	s.recordAudit(ctx, document.AuditCancel, rec, nil)
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
