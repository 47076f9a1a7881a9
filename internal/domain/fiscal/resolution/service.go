package resolution

import (
	"context"
	"time"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
	"hostal/pkg/logger"
)

// Registry resolves the active numbering resolution per series and offers
// the administrative surface for configuring replacements.
type Registry struct {
	repo Repository
}

// NewRegistry creates a resolution registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// ActiveResolution returns the resolution authorized for the series at the
// given time. When several windows overlap, the latest-starting one wins.
func (g *Registry) ActiveResolution(ctx context.Context, series fiscal.Series, at time.Time) (*Resolution, error) {
	if !series.Valid() {
		return nil, apperror.NewValidation("unknown series").
			WithDetail("series", string(series))
	}

	all, err := g.repo.List(ctx, series)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, apperror.NewResolutionNotConfigured(string(series))
	}

	var active *Resolution
	for _, res := range all {
		if !res.ActiveAt(at) {
			continue
		}
		if active == nil || res.ValidFrom.After(active.ValidFrom) {
			active = res
		}
	}
	if active == nil {
		return nil, apperror.NewResolutionExpired(string(series))
	}
	return active, nil
}

// Configure validates and stores a new resolution for a series.
// Existing resolutions are never mutated; replacements are new rows so the
// authorization history stays auditable.
func (g *Registry) Configure(ctx context.Context, res *Resolution) error {
	if err := res.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(res.ID) {
		res.ID = id.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	if err := g.repo.Insert(ctx, res); err != nil {
		return err
	}

	logger.Info(ctx, "numbering resolution configured",
		"series", res.Series,
		"prefix", res.Prefix,
		"range_start", res.RangeStart,
		"range_end", res.RangeEnd,
	)
	return nil
}

// List returns every resolution configured for a series.
func (g *Registry) List(ctx context.Context, series fiscal.Series) ([]*Resolution, error) {
	if !series.Valid() {
		return nil, apperror.NewValidation("unknown series").
			WithDetail("series", string(series))
	}
	return g.repo.List(ctx, series)
}

// CoveringAny reports whether any known resolution range (active or not)
// contains n. Backfill uses it to reject orphan numbers unless forced.
func (g *Registry) CoveringAny(ctx context.Context, series fiscal.Series, n int64) (bool, error) {
	all, err := g.repo.List(ctx, series)
	if err != nil {
		return false, err
	}
	for _, res := range all {
		if res.Contains(n) {
			return true, nil
		}
	}
	return false, nil
}
