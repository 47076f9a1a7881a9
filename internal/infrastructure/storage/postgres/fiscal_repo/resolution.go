package fiscal_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"hostal/internal/core/apperror"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/resolution"
	"hostal/internal/infrastructure/storage/postgres"
)

const resolutionsTable = "fiscal_resolutions"

// ResolutionRepo implements resolution.Repository.
type ResolutionRepo struct {
	txManager *postgres.TxManager
	columns   []string
}

// Ensure compile-time interface compliance.
var _ resolution.Repository = (*ResolutionRepo)(nil)

// NewResolutionRepo creates the Postgres-backed resolution store.
func NewResolutionRepo(txManager *postgres.TxManager) *ResolutionRepo {
	return &ResolutionRepo{
		txManager: txManager,
		columns:   postgres.ExtractDBColumns[resolution.Resolution](),
	}
}

// Insert implements resolution.Repository.
func (r *ResolutionRepo) Insert(ctx context.Context, res *resolution.Resolution) error {
	q := psql.Insert(resolutionsTable).SetMap(postgres.StructToMap(res))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.NewConflict("resolution already registered").
				WithDetail("series", string(res.Series)).
				WithDetail("authority_number", res.AuthorityNumber)
		}
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// List implements resolution.Repository, newest validity first.
func (r *ResolutionRepo) List(ctx context.Context, series fiscal.Series) ([]*resolution.Resolution, error) {
	q := psql.Select(r.columns...).
		From(resolutionsTable).
		Where(squirrel.Eq{"series": string(series)}).
		OrderBy("valid_from DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []*resolution.Resolution
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	return out, nil
}
