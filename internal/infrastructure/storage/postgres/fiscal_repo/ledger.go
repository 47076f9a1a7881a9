// Package fiscal_repo implements the fiscal domain repositories on
// PostgreSQL using squirrel for query building and scany for scanning.
package fiscal_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/infrastructure/storage/postgres"
)

const documentsTable = "fiscal_documents"

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// psql builds queries with $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// LedgerRepo implements document.Ledger.
type LedgerRepo struct {
	txManager *postgres.TxManager
	columns   []string
}

// Ensure compile-time interface compliance.
var _ document.Ledger = (*LedgerRepo)(nil)

// NewLedgerRepo creates the Postgres-backed fiscal document ledger.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		columns:   postgres.ExtractDBColumns[document.Record](),
	}
}

func (r *LedgerRepo) baseSelect() squirrel.SelectBuilder {
	return psql.Select(r.columns...).From(documentsTable)
}

func statusStrings(statuses []document.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// insert writes a record row, mapping the partial unique index violation
// on (series, sequential_number) to document.ErrNumberTaken.
func (r *LedgerRepo) insert(ctx context.Context, rec *document.Record) error {
	q := psql.Insert(documentsTable).SetMap(postgres.StructToMap(rec))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return document.ErrNumberTaken
		}
		return fmt.Errorf("insert fiscal document: %w", err)
	}
	return nil
}

// InsertPending implements document.Ledger.
func (r *LedgerRepo) InsertPending(ctx context.Context, rec *document.Record) error {
	if rec.Status != document.StatusPending {
		return apperror.NewValidation("record must be pending").
			WithDetail("status", string(rec.Status))
	}
	return r.insert(ctx, rec)
}

// InsertManual implements document.Ledger.
func (r *LedgerRepo) InsertManual(ctx context.Context, rec *document.Record) error {
	if rec.Status != document.StatusManual {
		return apperror.NewValidation("record must be manual").
			WithDetail("status", string(rec.Status))
	}
	return r.insert(ctx, rec)
}

// UpdateStatus implements document.Ledger. The WHERE clause on the current
// status makes the update a compare-and-swap: zero rows affected means the
// record moved underneath the caller. Pairs outside the transition table
// are rejected here as well, so a misbehaving caller cannot rewrite
// terminal records.
func (r *LedgerRepo) UpdateStatus(ctx context.Context, recordID id.ID, from, to document.Status, patch document.StatusPatch) (bool, error) {
	if !from.CanTransition(to) {
		return false, apperror.NewInvalidTransition(string(from), string(to))
	}

	q := psql.Update(documentsTable).
		Set("status", string(to)).
		Where(squirrel.Eq{"id": recordID, "status": string(from)})

	if patch.ExternalReference != "" {
		q = q.Set("external_reference", patch.ExternalReference)
	}
	if patch.FailureReason != "" {
		q = q.Set("failure_reason", patch.FailureReason)
	}
	if patch.SentAt != nil {
		q = q.Set("sent_at", *patch.SentAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByID implements document.Ledger.
func (r *LedgerRepo) FindByID(ctx context.Context, recordID id.ID) (*document.Record, error) {
	q := r.baseSelect().Where(squirrel.Eq{"id": recordID}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec document.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("fiscal document", recordID.String())
		}
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return &rec, nil
}

// FindByNumber implements document.Ledger.
func (r *LedgerRepo) FindByNumber(ctx context.Context, series fiscal.Series, number int64) (*document.Record, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"series": string(series), "sequential_number": number}).
		Where(squirrel.Eq{"status": statusStrings(document.OccupiedStatuses)}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec document.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("fiscal document", number)
		}
		return nil, fmt.Errorf("find by number: %w", err)
	}
	return &rec, nil
}

// FindMaxAllocated implements document.Ledger.
func (r *LedgerRepo) FindMaxAllocated(ctx context.Context, series fiscal.Series, statuses []document.Status) (int64, bool, error) {
	q := psql.Select("MAX(sequential_number)").
		From(documentsTable).
		Where(squirrel.Eq{"series": string(series)}).
		Where(squirrel.Eq{"status": statusStrings(statuses)})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var max *int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("find max allocated: %w", err)
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

// ListBySeries implements document.Ledger.
func (r *LedgerRepo) ListBySeries(ctx context.Context, series fiscal.Series, filter document.ListFilter) ([]*document.Record, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"series": string(series)}).
		OrderBy("sequential_number ASC")

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var recs []*document.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list by series: %w", err)
	}
	return recs, nil
}

// CountByStatus implements document.Ledger.
func (r *LedgerRepo) CountByStatus(ctx context.Context, series fiscal.Series) (map[document.Status]int64, error) {
	q := psql.Select("status", "COUNT(*)").
		From(documentsTable).
		Where(squirrel.Eq{"series": string(series)}).
		GroupBy("status")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[document.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[document.Status(status)] = count
	}
	return counts, rows.Err()
}

// ListNumbers implements document.Ledger.
func (r *LedgerRepo) ListNumbers(ctx context.Context, series fiscal.Series, statuses []document.Status, upTo int64) ([]int64, error) {
	q := psql.Select("sequential_number").
		From(documentsTable).
		Where(squirrel.Eq{"series": string(series)}).
		Where(squirrel.Eq{"status": statusStrings(statuses)}).
		Where(squirrel.LtOrEq{"sequential_number": upTo}).
		OrderBy("sequential_number ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var nums []int64
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &nums, sql, args...); err != nil {
		return nil, fmt.Errorf("list numbers: %w", err)
	}
	return nums, nil
}
