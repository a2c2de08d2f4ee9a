// Package atomicstore layers serialized, all-or-nothing operations on top of a
// storage.Backend.
//
// Every mutation of a key runs under that key's lock, so concurrent callers
// observe a total order with no lost updates. Mutations on different keys
// never block each other. Reads skip the lock and may trail one in-flight
// write.
package atomicstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"selfrise/internal/storage"
)

// OperationCounterKey holds the diagnostics counter bumped by NextOperation.
const OperationCounterKey = "operation-counter"

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 10 * time.Millisecond
	DefaultMaxQueue   = 64
)

// Options tunes retries and queueing.
type Options struct {
	// MaxRetries is the number of attempts per mutation, including the first.
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	// MaxQueue caps the callers waiting on a single key. 0 means unbounded.
	MaxQueue int
	Logger   *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		MaxQueue:   DefaultMaxQueue,
	}
}

// Stats are in-process diagnostics counters.
type Stats struct {
	Operations int64
	Queued     int64
	Retries    int64
	Failures   int64
	LiveLocks  int
}

type Store struct {
	backend storage.Backend
	locks   *lockTable
	opts    Options
	logger  *slog.Logger

	operations atomic.Int64
	queued     atomic.Int64
	retries    atomic.Int64
	failures   atomic.Int64
}

func New(backend storage.Backend, opts Options) *Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		backend: backend,
		locks:   newLockTable(opts.MaxQueue),
		opts:    opts,
		logger:  logger,
	}
}

// Backend returns the wrapped backend.
func (s *Store) Backend() storage.Backend { return s.backend }

func (s *Store) Stats() Stats {
	return Stats{
		Operations: s.operations.Load(),
		Queued:     s.queued.Load(),
		Retries:    s.retries.Load(),
		Failures:   s.failures.Load(),
		LiveLocks:  s.locks.size(),
	}
}

// abortError marks a mutator failure; those are returned without retrying.
type abortError struct{ err error }

func (e abortError) Error() string { return e.err.Error() }
func (e abortError) Unwrap() error { return e.err }

// mutateInfo describes how a mutation ran.
type mutateInfo struct {
	queued   bool
	attempts int
}

// mutate runs fn under key's lock. fn receives the current raw value and
// returns the bytes to store, or nil to delete the key.
func (s *Store) mutate(ctx context.Context, op, key string, fn func(raw []byte, found bool) ([]byte, error)) (mutateInfo, error) {
	return s.mutateThen(ctx, op, key, fn, nil)
}

// mutateThen is mutate with a hook that runs once, after the successful write
// and before key's lock is released.
func (s *Store) mutateThen(ctx context.Context, op, key string, fn func(raw []byte, found bool) ([]byte, error), then func()) (mutateInfo, error) {
	start := time.Now()
	release, queued, err := s.locks.acquire(ctx, key)
	lockWait.WithLabelValues(op).Observe(time.Since(start).Seconds())
	info := mutateInfo{queued: queued}
	if queued {
		s.queued.Add(1)
		queuedTotal.WithLabelValues(op).Inc()
	}
	if err != nil {
		s.failures.Add(1)
		operationsTotal.WithLabelValues(op, "rejected").Inc()
		return info, &OpError{Op: op, Key: key, Attempts: 0, Err: err}
	}
	defer release()
	s.operations.Add(1)

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		info.attempts = attempt
		if attempt > 1 {
			s.retries.Add(1)
			retriesTotal.WithLabelValues(op).Inc()
			if err := sleepCtx(ctx, s.opts.RetryDelay*time.Duration(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		lastErr = s.attempt(ctx, key, fn)
		if lastErr == nil {
			operationsTotal.WithLabelValues(op, "ok").Inc()
			if then != nil {
				then()
			}
			return info, nil
		}
		var abort abortError
		if errors.As(lastErr, &abort) {
			operationsTotal.WithLabelValues(op, "aborted").Inc()
			return info, abort.err
		}
		s.logger.Warn("atomic store attempt failed",
			"op", op,
			"key", key,
			"attempt", attempt,
			"error", lastErr,
		)
	}

	s.failures.Add(1)
	operationsTotal.WithLabelValues(op, "failed").Inc()
	return info, &OpError{Op: op, Key: key, Attempts: info.attempts, Err: lastErr}
}

func (s *Store) attempt(ctx context.Context, key string, fn func(raw []byte, found bool) ([]byte, error)) error {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(raw, found)
	if err != nil {
		return err
	}
	if next == nil {
		if !found {
			return nil
		}
		return s.backend.Remove(ctx, key)
	}
	return s.backend.Set(ctx, key, next)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IncrementResult reports the value before and after an increment.
type IncrementResult struct {
	NewValue      int64
	PreviousValue int64
	// Queued is true when the increment waited behind another writer.
	Queued   bool
	Attempts int
}

// Increment adds delta to the integer stored at key (missing keys read as 0).
func (s *Store) Increment(ctx context.Context, key string, delta int64) (IncrementResult, error) {
	return s.IncrementAtLeast(ctx, key, delta, math.MinInt64)
}

// IncrementAtLeast adds delta and clamps the result to floor.
func (s *Store) IncrementAtLeast(ctx context.Context, key string, delta, floor int64) (IncrementResult, error) {
	return s.IncrementAtLeastThen(ctx, key, delta, floor, nil)
}

// IncrementAtLeastThen is IncrementAtLeast that calls then with the committed
// result while key is still locked. Keys derived from the counter and written
// only inside then follow the counter's order exactly. then must not mutate
// key itself, and locks it takes must never be held while waiting on key.
func (s *Store) IncrementAtLeastThen(ctx context.Context, key string, delta, floor int64, then func(IncrementResult)) (IncrementResult, error) {
	var res IncrementResult
	var hook func()
	if then != nil {
		hook = func() { then(res) }
	}
	info, err := s.mutateThen(ctx, "increment", key, func(raw []byte, found bool) ([]byte, error) {
		prev := int64(0)
		if found && len(raw) > 0 {
			v, err := decodeCounter(raw)
			if err != nil {
				return nil, err
			}
			prev = v
		}
		next := prev + delta
		if delta > 0 && next < prev {
			next = math.MaxInt64
		}
		if next < floor {
			next = floor
		}
		res.PreviousValue = prev
		res.NewValue = next
		return []byte(strconv.FormatInt(next, 10)), nil
	}, hook)
	res.Queued = info.queued
	res.Attempts = info.attempts
	if err != nil {
		return res, err
	}
	return res, nil
}

// decodeCounter accepts integers and JSON numbers (including decimals, which are
// truncated).
func decodeCounter(raw []byte) (int64, error) {
	if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return v, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil
	}
	return int64(f), nil
}

// ReadCounter reads an integer key without taking its lock.
func (s *Store) ReadCounter(ctx context.Context, key string) (int64, error) {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return 0, &OpError{Op: "read", Key: key, Attempts: 1, Err: err}
	}
	if !found || len(raw) == 0 {
		return 0, nil
	}
	v, err := decodeCounter(raw)
	if err != nil {
		return 0, &OpError{Op: "read", Key: key, Attempts: 1, Err: err}
	}
	return v, nil
}

// NextOperation bumps the diagnostics operation counter and returns its new value.
func (s *Store) NextOperation(ctx context.Context) (int64, error) {
	res, err := s.Increment(ctx, OperationCounterKey, 1)
	if err != nil {
		return 0, err
	}
	return res.NewValue, nil
}

// Remove deletes key under its lock.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.mutate(ctx, "remove", key, func([]byte, bool) ([]byte, error) {
		return nil, nil
	})
	return err
}
