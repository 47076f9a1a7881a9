package document

import (
	"context"
	"testing"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusManual, false},
		{StatusSent, StatusCancelled, false},
		{StatusSent, StatusPending, false},
		{StatusFailed, StatusSent, false},
		{StatusCancelled, StatusPending, false},
		{StatusManual, StatusSent, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusSent:      true,
		StatusCancelled: true,
		StatusFailed:    true,
		StatusManual:    true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestRecordFullNumber(t *testing.T) {
	rec := &Record{Prefix: "FVK", SequentialNumber: 57}
	if got := rec.FullNumber(); got != "FVK57" {
		t.Errorf("FullNumber() = %q, want %q", got, "FVK57")
	}
}

func TestRecordValidate(t *testing.T) {
	valid := Record{
		ID:               id.New(),
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 57,
		Prefix:           "FVK",
		Status:           StatusPending,
	}

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(r *Record) {}, false},
		{"unknown series", func(r *Record) { r.Series = "ticket" }, true},
		{"zero number", func(r *Record) { r.SequentialNumber = 0 }, true},
		{"missing prefix", func(r *Record) { r.Prefix = "" }, true},
		{"unknown status", func(r *Record) { r.Status = "archived" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := rec.Validate(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryLedger_OccupancyRule(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	rec := &Record{
		ID:               id.New(),
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 57,
		Prefix:           "FVK",
		Status:           StatusPending,
	}
	if err := ledger.InsertPending(ctx, rec); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	dup := *rec
	dup.ID = id.New()
	if err := ledger.InsertPending(ctx, &dup); err != ErrNumberTaken {
		t.Fatalf("duplicate insert: want ErrNumberTaken, got %v", err)
	}

	// Cancelled does not occupy; the number becomes insertable again.
	matched, err := ledger.UpdateStatus(ctx, rec.ID, StatusPending, StatusCancelled, StatusPatch{})
	if err != nil || !matched {
		t.Fatalf("cancel failed: matched=%v err=%v", matched, err)
	}
	if err := ledger.InsertPending(ctx, &dup); err != nil {
		t.Fatalf("insert after cancel failed: %v", err)
	}
}

func TestMemoryLedger_UpdateStatusRejectsIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	rec := &Record{
		ID:               id.New(),
		Series:           fiscal.SeriesInvoice,
		SequentialNumber: 57,
		Prefix:           "FVK",
		Status:           StatusPending,
	}
	if err := ledger.InsertPending(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	matched, err := ledger.UpdateStatus(ctx, rec.ID, StatusPending, StatusSent, StatusPatch{ExternalReference: "cufe-1"})
	if err != nil || !matched {
		t.Fatalf("mark sent failed: matched=%v err=%v", matched, err)
	}

	// Bypassing the lifecycle service must not rewrite a terminal record.
	for _, to := range []Status{StatusPending, StatusCancelled, StatusFailed} {
		matched, err := ledger.UpdateStatus(ctx, rec.ID, StatusSent, to, StatusPatch{})
		if matched || !apperror.HasCode(err, apperror.CodeInvalidTransition) {
			t.Errorf("UpdateStatus(sent -> %s): matched=%v err=%v, want INVALID_TRANSITION", to, matched, err)
		}
	}

	got, err := ledger.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.Status != StatusSent {
		t.Errorf("record status = %s, want %s", got.Status, StatusSent)
	}
}
