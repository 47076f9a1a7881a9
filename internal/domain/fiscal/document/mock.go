package document

import (
	"context"
	"sort"
	"sync"

	"hostal/internal/core/apperror"
	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal"
)

// MemoryLedger is an in-memory Ledger for unit tests and tooling.
// It enforces the same occupancy rule as the Postgres partial unique
// index: one record per (series, number) among occupied statuses.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[id.ID]*Record

	// InsertHook, when set, runs inside the lock just before an insert
	// commits. Tests use it to interleave concurrent allocators.
	InsertHook func(rec *Record)
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[id.ID]*Record)}
}

// Ensure compile-time interface compliance.
var _ Ledger = (*MemoryLedger)(nil)

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) occupiedLocked(series fiscal.Series, number int64) bool {
	for _, rec := range m.records {
		if rec.Series == series && rec.SequentialNumber == number && statusIn(rec.Status, OccupiedStatuses) {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) insert(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.occupiedLocked(rec.Series, rec.SequentialNumber) {
		return ErrNumberTaken
	}
	if m.InsertHook != nil {
		m.InsertHook(rec)
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

// InsertPending implements Ledger.
func (m *MemoryLedger) InsertPending(ctx context.Context, rec *Record) error {
	return m.insert(rec)
}

// InsertManual implements Ledger.
func (m *MemoryLedger) InsertManual(ctx context.Context, rec *Record) error {
	return m.insert(rec)
}

// UpdateStatus implements Ledger.
func (m *MemoryLedger) UpdateStatus(ctx context.Context, recordID id.ID, from, to Status, patch StatusPatch) (bool, error) {
	if !from.CanTransition(to) {
		return false, apperror.NewInvalidTransition(string(from), string(to))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok || rec.Status != from {
		return false, nil
	}

	rec.Status = to
	if patch.ExternalReference != "" {
		rec.ExternalReference = patch.ExternalReference
	}
	if patch.FailureReason != "" {
		rec.FailureReason = patch.FailureReason
	}
	if patch.SentAt != nil {
		rec.SentAt = patch.SentAt
	}
	return true, nil
}

// FindByID implements Ledger.
func (m *MemoryLedger) FindByID(ctx context.Context, recordID id.ID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, apperror.NewNotFound("fiscal document", recordID.String())
	}
	clone := *rec
	return &clone, nil
}

// FindByNumber implements Ledger.
func (m *MemoryLedger) FindByNumber(ctx context.Context, series fiscal.Series, number int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.Series == series && rec.SequentialNumber == number && statusIn(rec.Status, OccupiedStatuses) {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("fiscal document", number)
}

// FindMaxAllocated implements Ledger.
func (m *MemoryLedger) FindMaxAllocated(ctx context.Context, series fiscal.Series, statuses []Status) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	found := false
	for _, rec := range m.records {
		if rec.Series == series && statusIn(rec.Status, statuses) {
			found = true
			if rec.SequentialNumber > max {
				max = rec.SequentialNumber
			}
		}
	}
	return max, found, nil
}

// ListBySeries implements Ledger.
func (m *MemoryLedger) ListBySeries(ctx context.Context, series fiscal.Series, filter ListFilter) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for _, rec := range m.records {
		if rec.Series != series {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequentialNumber < out[j].SequentialNumber
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountByStatus implements Ledger.
func (m *MemoryLedger) CountByStatus(ctx context.Context, series fiscal.Series) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Status]int64)
	for _, rec := range m.records {
		if rec.Series == series {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

// ListNumbers implements Ledger.
func (m *MemoryLedger) ListNumbers(ctx context.Context, series fiscal.Series, statuses []Status, upTo int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var nums []int64
	for _, rec := range m.records {
		if rec.Series == series && rec.SequentialNumber <= upTo && statusIn(rec.Status, statuses) {
			nums = append(nums, rec.SequentialNumber)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}
