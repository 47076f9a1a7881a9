package issuing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostal/internal/core/tx"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/allocator"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/lifecycle"
	"hostal/internal/domain/fiscal/resolution"
)

// mockGateway returns a scripted answer and records what it was given.
type mockGateway struct {
	receipt *Receipt
	err     error
	last    Submission
	calls   int
}

func (g *mockGateway) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	g.calls++
	g.last = sub
	if g.err != nil {
		return nil, g.err
	}
	return g.receipt, nil
}

func newTestService(t *testing.T, gw Gateway) (*Service, *document.MemoryLedger) {
	t.Helper()

	ledger := document.NewMemoryLedger()
	registry := resolution.NewRegistry(resolution.NewMemoryRepository())
	now := time.Now().UTC()
	require.NoError(t, registry.Configure(context.Background(), &resolution.Resolution{
		Series:     fiscal.SeriesInvoice,
		Prefix:     "FVK",
		RangeStart: 57,
		RangeEnd:   500,
		ValidFrom:  now.Add(-time.Hour),
		ValidTo:    now.Add(24 * time.Hour),
	}))

	alloc := allocator.NewService(registry, ledger, tx.Nop{})
	lc := lifecycle.NewService(ledger)
	return NewService(alloc, lc, gw), ledger
}

func TestIssue_Acknowledged(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{receipt: &Receipt{ExternalReference: "cufe-abc"}}
	svc, ledger := newTestService(t, gw)

	rec, err := svc.Issue(ctx, fiscal.SeriesInvoice, allocator.Input{BillingReference: "folio-1"}, json.RawMessage(`{"total":119}`))
	require.NoError(t, err)

	assert.Equal(t, int64(57), rec.SequentialNumber)
	assert.Equal(t, document.StatusSent, rec.Status)
	assert.Equal(t, "cufe-abc", rec.ExternalReference)

	assert.Equal(t, "FVK", gw.last.Prefix)
	assert.Equal(t, int64(57), gw.last.SequentialNumber)

	stored, err := ledger.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusSent, stored.Status)
}

func TestIssue_RejectionBurnsNumber(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{err: &RejectionError{Reason: "invalid tax id"}}
	svc, ledger := newTestService(t, gw)

	_, err := svc.Issue(ctx, fiscal.SeriesInvoice, allocator.Input{BillingReference: "folio-1"}, nil)
	require.Error(t, err)
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))

	// The reserved number is burned, not returned to the pool.
	stored, err := ledger.FindByNumber(ctx, fiscal.SeriesInvoice, 57)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, stored.Status)
	assert.Equal(t, "invalid tax id", stored.FailureReason)

	// The next issue skips the burned number.
	gw.err = nil
	gw.receipt = &Receipt{ExternalReference: "cufe-next"}
	rec, err := svc.Issue(ctx, fiscal.SeriesInvoice, allocator.Input{BillingReference: "folio-2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(58), rec.SequentialNumber)
}

func TestIssue_TransportFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{err: errors.New("connection refused")}
	svc, ledger := newTestService(t, gw)

	_, err := svc.Issue(ctx, fiscal.SeriesInvoice, allocator.Input{BillingReference: "folio-1"}, nil)
	require.Error(t, err)

	stored, err := ledger.FindByNumber(ctx, fiscal.SeriesInvoice, 57)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, stored.Status)
}
