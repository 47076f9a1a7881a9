// Package resolution holds the government-authorized numbering resolutions
// and the registry that resolves the active one per series.
package resolution

import (
	"context"
	"time"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
)

// Resolution is the authorization under which a series may issue numbers:
// a prefix, an inclusive numeric range, and a validity window.
type Resolution struct {
	ID id.ID `db:"id" json:"id"`

	Series fiscal.Series `db:"series" json:"series"`
	Prefix string        `db:"prefix" json:"prefix"`

	RangeStart int64 `db:"range_start" json:"rangeStart"`
	RangeEnd   int64 `db:"range_end" json:"rangeEnd"`

	ValidFrom time.Time `db:"valid_from" json:"validFrom"`
	ValidTo   time.Time `db:"valid_to" json:"validTo"`

	// AuthorityNumber is the identifier printed on the resolution document
	// issued by the tax authority.
	AuthorityNumber string `db:"authority_number" json:"authorityNumber,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Contains reports whether n lies inside the authorized range.
func (r *Resolution) Contains(n int64) bool {
	return n >= r.RangeStart && n <= r.RangeEnd
}

// ActiveAt reports whether the validity window covers t.
func (r *Resolution) ActiveAt(t time.Time) bool {
	return !t.Before(r.ValidFrom) && !t.After(r.ValidTo)
}

// Validate checks resolution invariants.
func (r *Resolution) Validate(ctx context.Context) error {
	if !r.Series.Valid() {
		return apperror.NewValidation("unknown series").
			WithDetail("series", string(r.Series))
	}
	if r.Prefix == "" {
		return apperror.NewValidation("prefix is required")
	}
	if r.RangeStart <= 0 {
		return apperror.NewValidation("range start must be positive").
			WithDetail("range_start", r.RangeStart)
	}
	if r.RangeStart > r.RangeEnd {
		return apperror.NewValidation("range start must not exceed range end").
			WithDetail("range_start", r.RangeStart).
			WithDetail("range_end", r.RangeEnd)
	}
	if r.ValidFrom.IsZero() || r.ValidTo.IsZero() {
		return apperror.NewValidation("validity window is required")
	}
	if r.ValidTo.Before(r.ValidFrom) {
		return apperror.NewValidation("validity window is inverted")
	}
	return nil
}
