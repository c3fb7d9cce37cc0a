// Package scheduler provides a single-timer wake-up list for time-limited
// moderation cases. One scheduler instance serves one case kind; entries are
// held in memory and rebuilt from the database on startup.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxWake clamps far-future wake times so the timer duration never overflows.
const maxWake = 100 * 365 * 24 * time.Hour

// Handler is invoked for each entry whose wake time has passed. Handlers run
// sequentially outside the scheduler lock and may insert or remove entries.
type Handler[T any] func(ctx context.Context, item T) error

type entry[T any] struct {
	wakeAt time.Time
	seq    uint64
	item   T
}

// Scheduler fires a handler when entries come due. A single timer is kept
// armed for the earliest entry; due entries fire in ascending wake order with
// insertion order breaking ties.
type Scheduler[T any, K comparable] struct {
	mu      sync.Mutex
	entries []entry[T]
	timer   *time.Timer
	stopped bool
	seq     uint64

	ctx     context.Context
	handler Handler[T]
	keyOf   func(T) K
	logger  *zap.Logger
}

// New creates a scheduler that dispatches due items to handler. keyOf derives
// the removal key of an item.
func New[T any, K comparable](
	ctx context.Context, handler Handler[T], keyOf func(T) K, logger *zap.Logger,
) *Scheduler[T, K] {
	return &Scheduler[T, K]{
		ctx:     ctx,
		handler: handler,
		keyOf:   keyOf,
		logger:  logger.Named("scheduler"),
	}
}

// Insert adds an item waking at the given time. A wake time in the past fires
// on the next timer tick.
func (s *Scheduler[T, K]) Insert(wakeAt time.Time, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.insertLocked(wakeAt, item)
	s.rearmLocked()
}

// BulkInsert adds many items at once, e.g. during startup recovery. Cheaper
// than repeated Insert since the timer is re-armed once.
func (s *Scheduler[T, K]) BulkInsert(items []Item[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	for _, it := range items {
		s.seq++
		s.entries = append(s.entries, entry[T]{wakeAt: it.WakeAt, seq: s.seq, item: it.Value})
	}

	sort.SliceStable(s.entries, func(i, j int) bool {
		if s.entries[i].wakeAt.Equal(s.entries[j].wakeAt) {
			return s.entries[i].seq < s.entries[j].seq
		}

		return s.entries[i].wakeAt.Before(s.entries[j].wakeAt)
	})

	s.rearmLocked()
}

// Item pairs a value with its wake time for BulkInsert.
type Item[T any] struct {
	WakeAt time.Time
	Value  T
}

// Remove drops all entries whose key matches. Removing an absent key is a
// no-op.
func (s *Scheduler[T, K]) Remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	kept := s.entries[:0]

	for _, e := range s.entries {
		if s.keyOf(e.item) != key {
			kept = append(kept, e)
		}
	}

	if len(kept) != len(s.entries) {
		s.entries = kept
		s.rearmLocked()
	}
}

// Len returns the number of pending entries.
func (s *Scheduler[T, K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Stop cancels the timer and discards all entries. No handler runs after Stop
// returns, except one already in flight.
func (s *Scheduler[T, K]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.entries = nil

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler[T, K]) insertLocked(wakeAt time.Time, item T) {
	s.seq++
	e := entry[T]{wakeAt: wakeAt, seq: s.seq, item: item}

	// Insert after all entries with wakeAt <= e.wakeAt to keep FIFO ties
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].wakeAt.After(wakeAt)
	})

	s.entries = append(s.entries, entry[T]{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = e
}

// rearmLocked points the timer at the earliest entry, or stops it when the
// list is empty. Callers must hold s.mu.
func (s *Scheduler[T, K]) rearmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if s.stopped || len(s.entries) == 0 {
		return
	}

	wait := time.Until(s.entries[0].wakeAt)
	if wait < 0 {
		wait = 0
	}

	if wait > maxWake {
		wait = maxWake
	}

	s.timer = time.AfterFunc(wait, s.fire)
}

func (s *Scheduler[T, K]) fire() {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return
	}

	now := time.Now()

	var due []entry[T]

	for len(s.entries) > 0 && !s.entries[0].wakeAt.After(now) {
		due = append(due, s.entries[0])
		s.entries = s.entries[1:]
	}

	s.mu.Unlock()

	for _, e := range due {
		s.dispatch(e.item)
	}

	s.mu.Lock()
	s.rearmLocked()
	s.mu.Unlock()
}

// dispatch runs the handler for one item, isolating panics so a bad entry
// cannot take down the rest of the batch or the timer goroutine.
func (s *Scheduler[T, K]) dispatch(item T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Handler panicked", zap.Any("panic", r))
		}
	}()

	if err := s.handler(s.ctx, item); err != nil {
		s.logger.Error("Handler failed", zap.Error(err))
	}
}
