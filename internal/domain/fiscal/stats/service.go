// Package stats derives read-only usage and gap metrics from the ledger.
// Counts are computed from the same status set the allocator uses, so
// statistics can never disagree with allocation behavior.
package stats

import (
	"context"
	"time"

	"hostal/internal/core/apperror"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
)

// Usage summarizes how much of the authorized range a series has consumed.
type Usage struct {
	Series fiscal.Series `json:"series"`
	Prefix string        `json:"prefix"`

	RangeStart int64 `json:"rangeStart"`
	RangeEnd   int64 `json:"rangeEnd"`

	Issued    int64 `json:"issued"`
	Pending   int64 `json:"pending"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
	Manual    int64 `json:"manual"`

	// NextAvailable is the number the allocator would hand out now.
	// Zero when the range is exhausted.
	NextAvailable int64 `json:"nextAvailable"`

	RemainingInRange int64 `json:"remainingInRange"`
	RangeExhausted   bool  `json:"rangeExhausted"`
}

// Service is the statistics reporter.
type Service struct {
	ledger   document.Ledger
	registry *resolution.Registry
	now      func() time.Time
}

// NewService creates a statistics reporter.
func NewService(ledger document.Ledger, registry *resolution.Registry) *Service {
	return &Service{ledger: ledger, registry: registry, now: time.Now}
}

// Usage computes range consumption for a series under its active resolution.
func (s *Service) Usage(ctx context.Context, series fiscal.Series) (*Usage, error) {
	res, err := s.registry.ActiveResolution(ctx, series, s.now().UTC())
	if err != nil {
		return nil, err
	}

	counts, err := s.ledger.CountByStatus(ctx, series)
	if err != nil {
		return nil, err
	}

	max, found, err := s.ledger.FindMaxAllocated(ctx, series, document.OccupiedStatuses)
	if err != nil {
		return nil, err
	}

	next := res.RangeStart
	if found && max+1 > next {
		next = max + 1
	}

	usage := &Usage{
		Series:     series,
		Prefix:     res.Prefix,
		RangeStart: res.RangeStart,
		RangeEnd:   res.RangeEnd,
		Issued:     counts[document.StatusSent],
		Pending:    counts[document.StatusPending],
		Cancelled:  counts[document.StatusCancelled],
		Failed:     counts[document.StatusFailed],
		Manual:     counts[document.StatusManual],
	}

	if next > res.RangeEnd {
		usage.RangeExhausted = true
		usage.NextAvailable = 0
		usage.RemainingInRange = 0
	} else {
		usage.NextAvailable = next
		usage.RemainingInRange = res.RangeEnd - next + 1
	}
	return usage, nil
}

// Gaps returns, in order, every number below the current watermark that
// never reached sent or manual status. Informational only; gap output is
// never fed back into allocation decisions.
func (s *Service) Gaps(ctx context.Context, series fiscal.Series) ([]int64, error) {
	if !series.Valid() {
		return nil, apperror.NewValidation("unknown series").
			WithDetail("series", string(series))
	}

	max, found, err := s.ledger.FindMaxAllocated(ctx, series, document.OccupiedStatuses)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	res, err := s.registry.ActiveResolution(ctx, series, s.now().UTC())
	if err != nil {
		return nil, err
	}

	start := res.RangeStart
	if max < start {
		// Watermark sits entirely below the active range (pure backfill);
		// nothing in-range to report yet.
		return nil, nil
	}

	reported, err := s.ledger.ListNumbers(ctx, series, document.ReportedStatuses, max)
	if err != nil {
		return nil, err
	}
	// Pending numbers may still become sent; they are not gaps yet.
	pending, err := s.ledger.ListNumbers(ctx, series, []document.Status{document.StatusPending}, max)
	if err != nil {
		return nil, err
	}

	occupied := make(map[int64]struct{}, len(reported)+len(pending))
	for _, n := range reported {
		occupied[n] = struct{}{}
	}
	for _, n := range pending {
		occupied[n] = struct{}{}
	}

	var gaps []int64
	for n := start; n <= max; n++ {
		if _, ok := occupied[n]; !ok {
			gaps = append(gaps, n)
		}
	}
	return gaps, nil
}
