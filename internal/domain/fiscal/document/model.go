// Package document defines the fiscal document record, its lifecycle state
// machine, and the ledger contract that is the sole source of truth for
// allocated sequential numbers.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
)

// Status is the lifecycle state of a fiscal document record.
type Status string

const (
	// StatusPending is the state at allocation time: the number is reserved
	// but the document has not been delivered to the tax authority yet.
	StatusPending Status = "pending"

	// StatusSent means the tax authority acknowledged the document. Terminal.
	StatusSent Status = "sent"

	// StatusCancelled means the caller aborted before attempting delivery.
	// Terminal. The number may be reused only if it sits at the watermark top.
	StatusCancelled Status = "cancelled"

	// StatusFailed means the tax authority rejected the document. Terminal.
	// The number is burned forever and shows up as an explainable gap.
	StatusFailed Status = "failed"

	// StatusManual marks a historically/manually issued number registered
	// through backfill. Treated as already-terminal for allocation.
	StatusManual Status = "manual"
)

// transitions is the only legal forward movement of a record.
// Everything not listed here is an invalid transition.
var transitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusCancelled, StatusFailed},
}

// CanTransition reports whether s may move to target.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusCancelled, StatusFailed, StatusManual:
		return true
	}
	return false
}

// OccupiedStatuses are the statuses whose numbers are never issued again.
// This set drives both the uniqueness constraint and the allocator's
// watermark, so allocation and statistics can never disagree.
//
// failed is included: a rejected document burns its number permanently,
// otherwise the next allocation would collide with it forever.
// cancelled is excluded: a cancelled number at the watermark top is
// compacted (reused); below the top it is a permanent gap.
var OccupiedStatuses = []Status{StatusPending, StatusSent, StatusManual, StatusFailed}

// ReportedStatuses are the statuses that count as definitively used in
// gap detection: the number reached the authority or existed on paper.
var ReportedStatuses = []Status{StatusSent, StatusManual}

// Record is a single allocated sequential number and its lifecycle state.
// Records are never hard-deleted; the ledger is a legal audit trail.
type Record struct {
	ID id.ID `db:"id" json:"id"`

	Series           fiscal.Series `db:"series" json:"series"`
	SequentialNumber int64         `db:"sequential_number" json:"sequentialNumber"`
	Prefix           string        `db:"prefix" json:"prefix"`
	Status           Status        `db:"status" json:"status"`

	// BillingReference points at the source billing record (folio, booking).
	BillingReference string `db:"billing_reference" json:"billingReference"`

	BuyerID  string `db:"buyer_id" json:"buyerId,omitempty"`
	SellerID string `db:"seller_id" json:"sellerId,omitempty"`

	NetAmount   decimal.Decimal `db:"net_amount" json:"netAmount"`
	TaxAmount   decimal.Decimal `db:"tax_amount" json:"taxAmount"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`

	// ExternalReference is the acknowledgment id returned by the tax
	// authority gateway (CUFE/CUDE style). Set on mark-sent.
	ExternalReference string `db:"external_reference" json:"externalReference,omitempty"`

	// FailureReason records why the gateway rejected the document.
	FailureReason string `db:"failure_reason" json:"failureReason,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	SentAt    *time.Time `db:"sent_at" json:"sentAt,omitempty"`
}

// FullNumber renders the legal document number (prefix + consecutive).
func (r *Record) FullNumber() string {
	return fmt.Sprintf("%s%d", r.Prefix, r.SequentialNumber)
}

// Validate checks record invariants (no database access).
func (r *Record) Validate(ctx context.Context) error {
	if !r.Series.Valid() {
		return apperror.NewValidation("unknown series").
			WithDetail("series", string(r.Series))
	}
	if r.SequentialNumber <= 0 {
		return apperror.NewValidation("sequential number must be positive").
			WithDetail("number", r.SequentialNumber)
	}
	if r.Prefix == "" {
		return apperror.NewValidation("prefix is required")
	}
	if !r.Status.Valid() {
		return apperror.NewValidation("unknown status").
			WithDetail("status", string(r.Status))
	}
	return nil
}
