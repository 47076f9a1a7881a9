package document

import (
	"context"
	"errors"
	"time"

	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
)

// ErrNumberTaken is returned by InsertPending and InsertManual when the
// (series, sequential_number) pair is already occupied. The Postgres
// implementation maps the unique-violation to this sentinel; the allocator
// treats it as a lost race and retries.
var ErrNumberTaken = errors.New("sequential number already allocated")

// StatusPatch carries the fields written together with a status change.
type StatusPatch struct {
	ExternalReference string
	FailureReason     string
	SentAt            *time.Time
}

// ListFilter narrows ListBySeries results.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Ledger is the durable store of every allocated number. It is the sole
// source of truth: any cached "next number" must be re-validated against
// it before commit.
//
// Uniqueness of (series, sequential_number) among occupied statuses is
// enforced by the storage layer, not by the callers.
type Ledger interface {
	// InsertPending atomically creates a pending record with its number.
	// Returns ErrNumberTaken if a concurrent allocator won the candidate.
	InsertPending(ctx context.Context, rec *Record) error

	// InsertManual creates a manual (backfilled) record, bypassing the
	// allocator. Returns ErrNumberTaken on an occupied number.
	InsertManual(ctx context.Context, rec *Record) error

	// UpdateStatus moves a record from one status to another, applying
	// patch fields, and reports whether the row matched (compare-and-swap
	// on the current status). Implementations reject from/to pairs
	// outside the transition table; terminal records cannot be rewritten
	// even by a caller that skips the lifecycle service.
	UpdateStatus(ctx context.Context, recordID id.ID, from, to Status, patch StatusPatch) (bool, error)

	// FindByID returns a record or a not-found error.
	FindByID(ctx context.Context, recordID id.ID) (*Record, error)

	// FindByNumber returns the record occupying a number, or a not-found
	// error. Cancelled records are not considered occupants.
	FindByNumber(ctx context.Context, series fiscal.Series, number int64) (*Record, error)

	// FindMaxAllocated returns the highest sequential number among records
	// in the given statuses. ok is false when no such record exists.
	FindMaxAllocated(ctx context.Context, series fiscal.Series, statuses []Status) (max int64, ok bool, err error)

	// ListBySeries returns records ordered by sequential number.
	ListBySeries(ctx context.Context, series fiscal.Series, filter ListFilter) ([]*Record, error)

	// CountByStatus returns per-status record counts for a series.
	CountByStatus(ctx context.Context, series fiscal.Series) (map[Status]int64, error)

	// ListNumbers returns the ordered sequential numbers of records in the
	// given statuses, up to and including upTo.
	ListNumbers(ctx context.Context, series fiscal.Series, statuses []Status, upTo int64) ([]int64, error)
}

// Auditor records fiscal events onto the append-only audit trail.
// Implementations must never fail the business operation: errors are
// logged by the caller, not propagated.
type Auditor interface {
	Record(ctx context.Context, action AuditAction, rec *Record, details map[string]any) error
}

// AuditAction identifies the audited fiscal operation.
type AuditAction string

const (
	AuditAllocate AuditAction = "allocate"
	AuditSent     AuditAction = "mark_sent"
	AuditFailed   AuditAction = "mark_failed"
	AuditCancel   AuditAction = "cancel"
	AuditBackfill AuditAction = "backfill"
)
