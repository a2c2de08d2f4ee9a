package atomicstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfrise/internal/storage"
)

// flakyBackend fails the first failSets writes.
type flakyBackend struct {
	*storage.MemoryBackend
	failSets atomic.Int32
	setDelay time.Duration
}

var errUnavailable = errors.New("backend unavailable")

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.setDelay > 0 {
		time.Sleep(f.setDelay)
	}
	if f.failSets.Add(-1) >= 0 {
		return errUnavailable
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

func newStore(t *testing.T) (*Store, *flakyBackend) {
	t.Helper()
	b := &flakyBackend{MemoryBackend: storage.NewMemoryBackend()}
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond
	return New(b, opts), b
}

func TestIncrementConcurrentNoLostUpdates(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	prevs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Increment(ctx, "total-xp", 3)
			assert.NoError(t, err)
			assert.Equal(t, res.PreviousValue+3, res.NewValue)
			prevs <- res.PreviousValue
		}()
	}
	wg.Wait()
	close(prevs)

	seen := map[int64]bool{}
	for p := range prevs {
		assert.False(t, seen[p], "previous value %d observed twice", p)
		seen[p] = true
	}

	total, err := s.ReadCounter(ctx, "total-xp")
	require.NoError(t, err)
	assert.Equal(t, int64(3*n), total)
	assert.Equal(t, 0, s.Stats().LiveLocks)
}

func TestIncrementAtLeastClampsAtFloor(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.Increment(ctx, "total-xp", 30)
	require.NoError(t, err)

	res, err := s.IncrementAtLeast(ctx, "total-xp", -100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.PreviousValue)
	assert.Equal(t, int64(0), res.NewValue)

	res, err = s.IncrementAtLeast(ctx, "total-xp", -5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.NewValue)
}

func TestIncrementRetriesTransientFailures(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	b.failSets.Store(2)

	before := testutil.ToFloat64(retriesTotal.WithLabelValues("increment"))
	res, err := s.Increment(ctx, "total-xp", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.NewValue)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int64(2), s.Stats().Retries)
	assert.Equal(t, before+2, testutil.ToFloat64(retriesTotal.WithLabelValues("increment")))
}

func TestIncrementReportsFailureAfterRetries(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	_, err := s.Increment(ctx, "total-xp", 10)
	require.NoError(t, err)

	b.failSets.Store(10)
	_, err = s.Increment(ctx, "total-xp", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errUnavailable)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, DefaultMaxRetries, opErr.Attempts)

	b.failSets.Store(0)
	total, err := s.ReadCounter(ctx, "total-xp")
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, int64(1), s.Stats().Failures)
}

func TestIncrementThenRunsInCounterOrder(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementAtLeastThen(ctx, "total-xp", 1, 0, func(res IncrementResult) {
				// A mirror written out of order would end below the counter.
				assert.NoError(t, Write(ctx, s, "mirror", res.NewValue))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mirror, err := Read(ctx, s, "mirror", int64(0))
	require.NoError(t, err)
	assert.Equal(t, int64(n), mirror)

	b.failSets.Store(10)
	called := false
	_, err = s.IncrementAtLeastThen(ctx, "total-xp", 1, 0, func(IncrementResult) { called = true })
	require.ErrorIs(t, err, ErrStorage)
	assert.False(t, called, "then ran for a failed increment")
	assert.Equal(t, 0, s.Stats().LiveLocks)
}

func TestQueuedFlagAndQueueBound(t *testing.T) {
	b := &flakyBackend{MemoryBackend: storage.NewMemoryBackend(), setDelay: 50 * time.Millisecond}
	s := New(b, Options{MaxRetries: 1, MaxQueue: 1})
	ctx := context.Background()

	results := make(chan error, 3)
	queued := make(chan bool, 3)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			res, err := s.Increment(ctx, "k", 1)
			results <- err
			queued <- res.Queued
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)
	close(queued)

	var full, ok int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrQueueFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, full)

	var waited int
	for q := range queued {
		if q {
			waited++
		}
	}
	assert.Equal(t, 2, waited, "second and third callers arrive while the lock is held")
}

func TestAcquireHonoursContext(t *testing.T) {
	b := &flakyBackend{MemoryBackend: storage.NewMemoryBackend(), setDelay: 100 * time.Millisecond}
	s := New(b, Options{MaxRetries: 1})

	go func() { _, _ = s.Increment(context.Background(), "k", 1) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Increment(ctx, "k", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAppendBoundedEvictsOldest(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		require.NoError(t, AppendBounded(ctx, s, "log", i, 5))
	}
	got, err := Read[[]int](ctx, s, "log", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6, 7}, got)
}

func TestMergeObject(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	def := map[string]int64{"a": 0, "b": 0, "c": 0}

	got, err := MergeObject(ctx, s, "by-source", map[string]int64{"a": 5}, MergeAdd, def)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 5, "b": 0, "c": 0}, got)

	got, err = MergeObject(ctx, s, "by-source", map[string]int64{"a": 2, "b": 1}, MergeAdd, def)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 7, "b": 1, "c": 0}, got)

	got, err = MergeObject(ctx, s, "by-source", map[string]int64{"a": 1}, MergeReplace, def)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["a"])
	assert.Equal(t, int64(1), got["b"])
}

type record struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func TestReadModifyWrite(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ReadModifyWrite(ctx, s, "daily", record{Date: "2026-10-18"}, func(r record) (record, error) {
				r.Count++
				return r, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := Read(ctx, s, "daily", record{})
	require.NoError(t, err)
	assert.Equal(t, record{Date: "2026-10-18", Count: 20}, got)

	errStop := errors.New("stop")
	_, err = ReadModifyWrite(ctx, s, "daily", record{}, func(r record) (record, error) {
		r.Count = 999
		return r, errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.NotErrorIs(t, err, ErrStorage)

	got, err = Read(ctx, s, "daily", record{})
	require.NoError(t, err)
	assert.Equal(t, 20, got.Count)
}

func TestWriteRemoveAndRead(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	got, err := Read(ctx, s, "last-activity-date", "never")
	require.NoError(t, err)
	assert.Equal(t, "never", got)

	require.NoError(t, Write(ctx, s, "last-activity-date", "2026-10-18"))
	got, err = Read(ctx, s, "last-activity-date", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", got)

	require.NoError(t, s.Remove(ctx, "last-activity-date"))
	got, err = Read(ctx, s, "last-activity-date", "gone")
	require.NoError(t, err)
	assert.Equal(t, "gone", got)
}

func TestReadRejectsCorruptValue(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	require.NoError(t, b.MemoryBackend.Set(ctx, "daily", []byte("{not json")))

	_, err := Read(ctx, s, "daily", record{})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestNextOperationIsMonotonic(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.NextOperation(ctx)
	require.NoError(t, err)
	b, err := s.NextOperation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
}

func TestDecodeCounterAcceptsDecimals(t *testing.T) {
	v, err := decodeCounter([]byte("12.75"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
}
