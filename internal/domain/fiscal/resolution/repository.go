package resolution

import (
	"context"

	"hostal/internal/domain/fiscal"
)

// Repository persists numbering resolutions.
type Repository interface {
	// Insert stores a new resolution.
	Insert(ctx context.Context, res *Resolution) error

	// List returns every resolution for a series, newest validity first.
	List(ctx context.Context, series fiscal.Series) ([]*Resolution, error)
}
