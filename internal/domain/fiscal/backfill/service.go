// Package backfill registers historically or manually issued numbers so
// the allocator never reissues them.
//
// Backfill is a privileged writer: it inserts manual records directly,
// bypassing the allocator's watermark check, because the numbers it
// registers already exist on paper.
package backfill

import (
	"context"
	"errors"
	"time"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
	"hostal/pkg/logger"
)

// maxBlockSize caps one RegisterRange call. Larger imports are split by
// the operator; an unbounded block would let a single request allocate
// arbitrarily much memory.
const maxBlockSize = 10000

// Request describes one historical number to register.
type Request struct {
	Series           fiscal.Series
	SequentialNumber int64
	Prefix           string
	BillingReference string

	// Force skips the resolution-range check. Operator use only, for
	// numbers issued under authorizations the registry never saw.
	Force bool
}

// Service is the backfill reconciler.
type Service struct {
	ledger   document.Ledger
	registry *resolution.Registry
	audit    document.Auditor
	now      func() time.Time
}

// Option tweaks backfill behavior.
type Option func(*Service)

// WithAuditor attaches the audit trail recorder.
func WithAuditor(a document.Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a backfill reconciler.
func NewService(ledger document.Ledger, registry *resolution.Registry, opts ...Option) *Service {
	s := &Service{ledger: ledger, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register inserts one manual record. Fails with DUPLICATE_BACKFILL when
// the number is already occupied, and rejects numbers outside every known
// resolution unless forced.
func (s *Service) Register(ctx context.Context, req Request) (*document.Record, error) {
	if !req.Series.Valid() {
		return nil, apperror.NewValidation("unknown series").
			WithDetail("series", string(req.Series))
	}
	if req.SequentialNumber <= 0 {
		return nil, apperror.NewValidation("sequential number must be positive").
			WithDetail("number", req.SequentialNumber)
	}

	if !req.Force {
		covered, err := s.registry.CoveringAny(ctx, req.Series, req.SequentialNumber)
		if err != nil {
			return nil, err
		}
		if !covered {
			return nil, apperror.NewNumberOutsideResolution(string(req.Series), req.SequentialNumber)
		}
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = s.historicPrefix(ctx, req.Series, req.SequentialNumber)
	}

	rec := &document.Record{
		ID:               id.New(),
		Series:           req.Series,
		SequentialNumber: req.SequentialNumber,
		Prefix:           prefix,
		Status:           document.StatusManual,
		BillingReference: req.BillingReference,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.ledger.InsertManual(ctx, rec); err != nil {
		if errors.Is(err, document.ErrNumberTaken) {
			return nil, apperror.NewDuplicateBackfill(string(req.Series), req.SequentialNumber)
		}
		return nil, err
	}

	logger.Info(ctx, "historical number registered",
		"series", req.Series,
		"number", req.SequentialNumber,
		"forced", req.Force,
	)
	s.recordAudit(ctx, rec, req.Force)
	return rec, nil
}

// RegisterRange imports a contiguous block of historical numbers. It stops
// at the first error; numbers registered before the error stay registered,
// matching how paper imports are resumed.
func (s *Service) RegisterRange(ctx context.Context, series fiscal.Series, from, to int64, prefix string, force bool) ([]*document.Record, error) {
	if from <= 0 || to < from {
		return nil, apperror.NewValidation("invalid backfill range").
			WithDetail("from", from).
			WithDetail("to", to)
	}
	if to-from+1 > maxBlockSize {
		return nil, apperror.NewValidation("backfill range too large").
			WithDetail("from", from).
			WithDetail("to", to).
			WithDetail("max_block_size", maxBlockSize)
	}

	out := make([]*document.Record, 0, to-from+1)
	for n := from; n <= to; n++ {
		rec, err := s.Register(ctx, Request{
			Series:           series,
			SequentialNumber: n,
			Prefix:           prefix,
			Force:            force,
		})
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// historicPrefix finds the prefix of the resolution covering the number,
// falling back to the newest known prefix for the series.
func (s *Service) historicPrefix(ctx context.Context, series fiscal.Series, n int64) string {
	all, err := s.registry.List(ctx, series)
	if err != nil || len(all) == 0 {
		return ""
	}
	for _, res := range all {
		if res.Contains(n) {
			return res.Prefix
		}
	}
	latest := all[0]
	for _, res := range all[1:] {
		if res.ValidFrom.After(latest.ValidFrom) {
			latest = res
		}
	}
	return latest.Prefix
}

func (s *Service) recordAudit(ctx context.Context, rec *document.Record, forced bool) {
	if s.audit == nil {
		return
	}
	details := map[string]any{"forced": forced}
	if err := s.audit.Record(ctx, document.AuditBackfill, rec, details); err != nil {
		logger.Warn(ctx, "fiscal audit write failed",
			"action", document.AuditBackfill,
			"record_id", rec.ID,
			"error", err,
		)
	}
}
