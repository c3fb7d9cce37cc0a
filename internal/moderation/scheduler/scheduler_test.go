package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/modcase/internal/moderation/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder collects fired item IDs in dispatch order.
type recorder struct {
	mu    sync.Mutex
	fired []int64
}

func (r *recorder) handle(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fired = append(r.fired, id)

	return nil
}

func (r *recorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int64(nil), r.fired...)
}

func newScheduler(
	t *testing.T, handler scheduler.Handler[int64],
) *scheduler.Scheduler[int64, int64] {
	t.Helper()

	s := scheduler.New(t.Context(), handler, func(id int64) int64 { return id }, zap.NewNop())
	t.Cleanup(s.Stop)

	return s
}

func TestFiresInWakeOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	now := time.Now()
	s.Insert(now.Add(30*time.Millisecond), 3)
	s.Insert(now.Add(10*time.Millisecond), 1)
	s.Insert(now.Add(20*time.Millisecond), 2)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1, 2, 3}, rec.snapshot())
	assert.Equal(t, 0, s.Len())
}

func TestTiesFireInInsertionOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	wake := time.Now().Add(20 * time.Millisecond)
	s.Insert(wake, 5)
	s.Insert(wake, 6)
	s.Insert(wake, 7)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{5, 6, 7}, rec.snapshot())
}

func TestRemoveDropsPendingEntry(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	now := time.Now()
	s.Insert(now.Add(30*time.Millisecond), 1)
	s.Insert(now.Add(30*time.Millisecond), 2)
	s.Remove(1)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{2}, rec.snapshot())
}

func TestRemoveAbsentKeyIsNoop(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	s.Remove(42)
	s.Insert(time.Now().Add(10*time.Millisecond), 1)
	s.Remove(42)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEarlierInsertRearmsTimer(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	s.Insert(time.Now().Add(10*time.Second), 99)
	s.Insert(time.Now().Add(15*time.Millisecond), 1)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1}, rec.snapshot())
	assert.Equal(t, 1, s.Len())
}

func TestHandlerErrorDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, func(ctx context.Context, id int64) error {
		if id == 1 {
			return errors.New("boom")
		}

		return rec.handle(ctx, id)
	})

	now := time.Now()
	s.Insert(now.Add(10*time.Millisecond), 1)
	s.Insert(now.Add(11*time.Millisecond), 2)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{2}, rec.snapshot())
}

func TestHandlerPanicDoesNotKillTimer(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, func(ctx context.Context, id int64) error {
		if id == 1 {
			panic("bad entry")
		}

		return rec.handle(ctx, id)
	})

	now := time.Now()
	s.Insert(now.Add(10*time.Millisecond), 1)
	s.Insert(now.Add(40*time.Millisecond), 2)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{2}, rec.snapshot())
}

func TestReentrantInsertFromHandler(t *testing.T) {
	t.Parallel()

	rec := &recorder{}

	var s *scheduler.Scheduler[int64, int64]

	s = newScheduler(t, func(ctx context.Context, id int64) error {
		if id == 1 {
			s.Insert(time.Now().Add(10*time.Millisecond), 2)
		}

		return rec.handle(ctx, id)
	})

	s.Insert(time.Now().Add(10*time.Millisecond), 1)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1, 2}, rec.snapshot())
}

func TestBulkInsertCatchUp(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	// Past wake times fire immediately, in ascending order
	now := time.Now()
	s.BulkInsert([]scheduler.Item[int64]{
		{WakeAt: now.Add(-2 * time.Hour), Value: 1},
		{WakeAt: now.Add(-1 * time.Hour), Value: 2},
		{WakeAt: now.Add(-30 * time.Minute), Value: 3},
	})

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1, 2, 3}, rec.snapshot())
}

func TestStopDiscardsEntries(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s := newScheduler(t, rec.handle)

	s.Insert(time.Now().Add(20*time.Millisecond), 1)
	s.Stop()

	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 0, s.Len())
}
