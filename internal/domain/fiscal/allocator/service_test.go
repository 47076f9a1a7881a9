package allocator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/core/tx"
	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/document"
	"hostal/internal/domain/fiscal/resolution"
)

func testRegistry(t *testing.T, series fiscal.Series, prefix string, start, end int64) *resolution.Registry {
	t.Helper()

	repo := resolution.NewMemoryRepository()
	registry := resolution.NewRegistry(repo)

	now := time.Now().UTC()
	err := registry.Configure(context.Background(), &resolution.Resolution{
		Series:     series,
		Prefix:     prefix,
		RangeStart: start,
		RangeEnd:   end,
		ValidFrom:  now.Add(-time.Hour),
		ValidTo:    now.Add(365 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return registry
}

func testInput(ref string) Input {
	return Input{
		BillingReference: ref,
		NetAmount:        decimal.NewFromInt(100),
		TaxAmount:        decimal.NewFromInt(19),
		TotalAmount:      decimal.NewFromInt(119),
	}
}

func TestReserveNext_StartsAtRangeStart(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(57), rec.SequentialNumber)
	assert.Equal(t, "FVK", rec.Prefix)
	assert.Equal(t, "FVK57", rec.FullNumber())
	assert.Equal(t, document.StatusPending, rec.Status)
	assert.False(t, id.IsNil(rec.ID))
}

func TestReserveNext_Sequential(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	for want := int64(57); want <= 60; want++ {
		rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio"))
		require.NoError(t, err)
		assert.Equal(t, want, rec.SequentialNumber)
	}
}

func TestReserveNext_BackfillBelowRangeDoesNotShiftStart(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	// Historical numbers 1..56 registered as manual records.
	for n := int64(1); n <= 56; n++ {
		err := ledger.InsertManual(ctx, &document.Record{
			ID:               id.New(),
			Series:           fiscal.SeriesInvoice,
			SequentialNumber: n,
			Prefix:           "FVK",
			Status:           document.StatusManual,
			CreatedAt:        time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(57), rec.SequentialNumber)
}

func TestReserveNext_FailedNumberIsBurned(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)

	matched, err := ledger.UpdateStatus(ctx, rec.ID, document.StatusPending, document.StatusFailed, document.StatusPatch{FailureReason: "rejected"})
	require.NoError(t, err)
	require.True(t, matched)

	next, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-2"))
	require.NoError(t, err)
	assert.Equal(t, rec.SequentialNumber+1, next.SequentialNumber)
}

func TestReserveNext_CancelledAtTopIsReused(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, rec.ID))

	again, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-2"))
	require.NoError(t, err)
	assert.Equal(t, rec.SequentialNumber, again.SequentialNumber)
}

func TestReserveNext_CancelledBelowTopStaysGap(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	first, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)
	second, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-2"))
	require.NoError(t, err)
	require.Equal(t, first.SequentialNumber+1, second.SequentialNumber)

	// Cancelling below the watermark top must not pull allocation back.
	require.NoError(t, svc.Release(ctx, first.ID))

	third, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-3"))
	require.NoError(t, err)
	assert.Equal(t, second.SequentialNumber+1, third.SequentialNumber)
}

func TestReserveNext_RangeExhausted(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 499, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	for want := int64(499); want <= 500; want++ {
		rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio"))
		require.NoError(t, err)
		require.Equal(t, want, rec.SequentialNumber)
	}

	_, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeRangeExhausted))
}

func TestReserveNext_NoResolutionConfigured(t *testing.T) {
	ledger := document.NewMemoryLedger()
	registry := resolution.NewRegistry(resolution.NewMemoryRepository())
	svc := NewService(registry, ledger, tx.Nop{})

	_, err := svc.ReserveNext(context.Background(), fiscal.SeriesInvoice, testInput("folio"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeResolutionNotConfigured))
}

func TestReserveNext_ResolutionExpired(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()

	repo := resolution.NewMemoryRepository()
	registry := resolution.NewRegistry(repo)
	now := time.Now().UTC()
	require.NoError(t, registry.Configure(ctx, &resolution.Resolution{
		Series:     fiscal.SeriesInvoice,
		Prefix:     "FVK",
		RangeStart: 1,
		RangeEnd:   100,
		ValidFrom:  now.Add(-48 * time.Hour),
		ValidTo:    now.Add(-24 * time.Hour),
	}))

	svc := NewService(registry, ledger, tx.Nop{})
	_, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeResolutionExpired))
}

func TestReserveNext_SeriesAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()

	repo := resolution.NewMemoryRepository()
	registry := resolution.NewRegistry(repo)
	now := time.Now().UTC()
	for _, res := range []*resolution.Resolution{
		{Series: fiscal.SeriesInvoice, Prefix: "FVK", RangeStart: 57, RangeEnd: 500},
		{Series: fiscal.SeriesCreditNote, Prefix: "NCK", RangeStart: 1, RangeEnd: 200},
	} {
		res.ValidFrom = now.Add(-time.Hour)
		res.ValidTo = now.Add(24 * time.Hour)
		require.NoError(t, registry.Configure(ctx, res))
	}

	svc := NewService(registry, ledger, tx.Nop{})

	inv, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)
	note, err := svc.ReserveNext(ctx, fiscal.SeriesCreditNote, testInput("folio-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(57), inv.SequentialNumber)
	assert.Equal(t, int64(1), note.SequentialNumber)
	assert.Equal(t, "FVK57", inv.FullNumber())
	assert.Equal(t, "NCK1", note.FullNumber())
}

func TestReserveNext_ConcurrentAllocatorsGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{}, WithRetryPolicy(50, 5*time.Second))

	const workers = 8
	var wg sync.WaitGroup
	numbers := make(chan int64, workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio"))
			if err != nil {
				errs <- err
				return
			}
			numbers <- rec.SequentialNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent allocation failed: %v", err)
	}

	seen := make(map[int64]bool, workers)
	for n := range numbers {
		if seen[n] {
			t.Fatalf("number %d allocated twice", n)
		}
		seen[n] = true
		if n < 57 || n > 57+workers-1 {
			t.Fatalf("number %d outside expected window", n)
		}
	}
	assert.Len(t, seen, workers)
}

// alwaysTakenLedger simulates an allocator that loses every race.
type alwaysTakenLedger struct {
	*document.MemoryLedger
	attempts int
}

func (l *alwaysTakenLedger) InsertPending(ctx context.Context, rec *document.Record) error {
	l.attempts++
	return document.ErrNumberTaken
}

func TestReserveNext_ContentionBudgetExhausted(t *testing.T) {
	ledger := &alwaysTakenLedger{MemoryLedger: document.NewMemoryLedger()}
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 1, 100)
	svc := NewService(registry, ledger, tx.Nop{}, WithRetryPolicy(3, time.Minute))

	_, err := svc.ReserveNext(context.Background(), fiscal.SeriesInvoice, testInput("folio"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAllocationContention))
	assert.Equal(t, 3, ledger.attempts)
}

func TestReserveNext_RetryBudgetExpires(t *testing.T) {
	ledger := &alwaysTakenLedger{MemoryLedger: document.NewMemoryLedger()}
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 1, 100)

	// Clock jumps past the deadline after the first attempt.
	base := time.Now().UTC()
	calls := 0
	clock := func() time.Time {
		calls++
		if calls > 2 {
			return base.Add(time.Hour)
		}
		return base
	}

	svc := NewService(registry, ledger, tx.Nop{},
		WithRetryPolicy(10, 100*time.Millisecond),
		WithClock(clock),
	)

	_, err := svc.ReserveNext(context.Background(), fiscal.SeriesInvoice, testInput("folio"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAllocationContention))
	assert.Less(t, ledger.attempts, 10)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, rec.ID))

	got, err := ledger.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCancelled, got.Status)

	// Releasing twice is a no-op.
	require.NoError(t, svc.Release(ctx, rec.ID))
}

func TestRelease_NotPending(t *testing.T) {
	ctx := context.Background()
	ledger := document.NewMemoryLedger()
	registry := testRegistry(t, fiscal.SeriesInvoice, "FVK", 57, 500)
	svc := NewService(registry, ledger, tx.Nop{})

	rec, err := svc.ReserveNext(ctx, fiscal.SeriesInvoice, testInput("folio-1"))
	require.NoError(t, err)

	matched, err := ledger.UpdateStatus(ctx, rec.ID, document.StatusPending, document.StatusSent, document.StatusPatch{ExternalReference: "cufe-1"})
	require.NoError(t, err)
	require.True(t, matched)

	err = svc.Release(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeReleaseNotPending))
}
