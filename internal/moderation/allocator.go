package moderation

import (
	"context"
	"fmt"
	"sync"

	"github.com/robalyx/modcase/internal/database/types"
)

// CounterStore persists named sequences.
type CounterStore interface {
	IncrementAndGet(ctx context.Context, name string) (int64, error)
}

// CaseAllocator hands out case numbers from the persisted moderation counter.
// Numbers are strictly increasing and never reused, even across restarts or
// when issuance later fails.
type CaseAllocator struct {
	mu       sync.Mutex
	counters CounterStore
}

// NewCaseAllocator creates an allocator backed by the given counter store.
func NewCaseAllocator(counters CounterStore) *CaseAllocator {
	return &CaseAllocator{counters: counters}
}

// NextCase returns the next case number. Safe for concurrent use; the mutex
// serializes allocations within the process so numbers observed here are in
// allocation order.
func (a *CaseAllocator) NextCase(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	value, err := a.counters.IncrementAndGet(ctx, types.ModerationCounterName)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate case number: %w", err)
	}

	return value, nil
}
