package backfill

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostal/internal/core/apperror"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
)

func testRegistry(t *testing.T) *resolution.Registry {
	t.Helper()

	registry := resolution.NewRegistry(resolution.NewMemoryRepository())
	now := time.Now().UTC()

	// Historical authorization covering 1..56, already expired.
	require.NoError(t, registry.Configure(context.Background(), &resolution.Resolution{
		Series:     fiscal.SeriesInvoice,
		Prefix:     "FV",
		RangeStart: 1,
		RangeEnd:   56,
		ValidFrom:  now.Add(-2 * 365 * 24 * time.Hour),
		ValidTo:    now.Add(-365 * 24 * time.Hour),
	}))
	// Current authorization 57..500.
	require.NoError(t, registry.Configure(context.Background(), &resolution.Resolution{
		Series:     fiscal.SeriesInvoice,
		Prefix:     "FVK",
		RangeStart: 57,
		RangeEnd:   500,
		ValidFrom:  now.Add(-time.Hour),
		ValidTo:    now.Add(365 * 24 * time.Hour),
	}))
	return registry
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	rec, err := svc.Register(ctx, Request{
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 12,
		BillingReference: "paper-12",
	})
	require.NoError(t, err)

	assert.Equal(t, document.StatusManual, rec.Status)
	assert.Equal(t, int64(12), rec.SequentialNumber)
	// Prefix inherited from the resolution covering the number.
	assert.Equal(t, "FV", rec.Prefix)
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	req := Request{Series: fiscal.SeriesInvoice, SequentialNumber: 12}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateBackfill))
}

func TestRegister_OutsideAnyResolution(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	_, err := svc.Register(ctx, Request{
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 9000,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNumberOutsideResolution))

	// Force lets the operator register it anyway, with an explicit prefix.
	rec, err := svc.Register(ctx, Request{
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 9000,
		Prefix:           "OLD",
		Force:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, "OLD", rec.Prefix)
}

func TestRegister_Validation(t *testing.T) {
	svc := NewService(document.NewMemoryLedger(), testRegistry(t))

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown series", Request{Series: "ticket", SequentialNumber: 1}},
		{"zero number", Request{Series: fiscal.SeriesInvoice, SequentialNumber: 0}},
		{"negative number", Request{Series: fiscal.SeriesInvoice, SequentialNumber: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestRegisterRange(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	recs, err := svc.RegisterRange(ctx, fiscal.SeriesInvoice, 1, 56, "FV", false)
	require.NoError(t, err)
	require.Len(t, recs, 56)

	counts, err := ledger.CountByStatus(ctx, fiscal.SeriesInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(56), counts[document.StatusManual])
}

func TestRegisterRange_StopsAtFirstError(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	// Number 3 is already registered; the range import must stop there
	// and keep 1 and 2.
	_, err := svc.Register(ctx, Request{Series: fiscal.SeriesInvoice, SequentialNumber: 3})
	require.NoError(t, err)

	recs, err := svc.RegisterRange(ctx, fiscal.SeriesInvoice, 1, 5, "FV", false)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateBackfill))
	assert.Len(t, recs, 2)
}

func TestRegisterRange_InvalidBounds(t *testing.T) {
	svc := NewService(document.NewMemoryLedger(), testRegistry(t))

	_, err := svc.RegisterRange(context.Background(), fiscal.SeriesInvoice, 10, 5, "FV", false)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestRegisterRange_BlockSizeCapped(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	svc := NewService(ledger, testRegistry(t))

	tests := []struct {
		name string
		from int64
		to   int64
	}{
		{"just over cap", 1, maxBlockSize + 1},
		{"max int64", 1, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recs []*document.Record
			var err error
			require.NotPanics(t, func() {
				recs, err = svc.RegisterRange(ctx, fiscal.SeriesInvoice, tt.from, tt.to, "FVK", true)
			})
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
			assert.Empty(t, recs)
		})
	}
}
