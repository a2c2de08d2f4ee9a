package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"selfrise/internal/atomicstore"
	"selfrise/internal/events"
	"selfrise/internal/level"
)

// operationID numbers ledger calls for diagnostics. A failure only costs the id.
func (s *Service) operationID(ctx context.Context) int64 {
	id, err := s.store.NextOperation(ctx)
	if err != nil {
		s.logger.Warn("operation counter unavailable", "event", "operation_counter_failed", "error", err)
		return 0
	}
	return id
}

type reservation struct {
	base    int64 // after limits, before the multiplier
	final   int64
	clipped bool
	booked  bool
}

// reserve checks the day's limits and books the grant under the daily
// tracking key lock, so two concurrent grants cannot both use the last room
// under a cap.
func (s *Service) reserve(ctx context.Context, req GrantRequest, today string, now time.Time, factor float64) (reservation, error) {
	var rsv reservation
	_, err := atomicstore.ReadModifyWrite(ctx, s.store, KeyDailyTracking, newDailyTracking(today),
		func(d DailyXPTracking) (DailyXPTracking, error) {
			d = d.rollover(today)
			amount, clipped := req.Amount, false
			if !req.SkipLimits {
				var err error
				amount, clipped, err = s.limits.check(d, req.Source, req.SourceID, req.Amount, now)
				if err != nil {
					return d, err
				}
			}
			rsv = reservation{base: amount, final: applyMultiplier(amount, factor), clipped: clipped, booked: true}
			d.record(req.Source, req.SourceID, rsv.final, now)
			return d, nil
		})
	if err == nil {
		return rsv, nil
	}
	var limit LimitError
	if errors.As(err, &limit) || !req.SkipLimits {
		return reservation{}, err
	}
	// Nothing to enforce, so a broken tracking record does not block the grant.
	s.logger.Warn("daily tracking unavailable", "event", "daily_tracking_failed", "source", req.Source, "error", err)
	return reservation{base: req.Amount, final: applyMultiplier(req.Amount, factor)}, nil
}

// releaseReservation hands back room booked by a grant that never committed.
func (s *Service) releaseReservation(ctx context.Context, source Source, amount int64, today string) {
	_, err := atomicstore.ReadModifyWrite(ctx, s.store, KeyDailyTracking, newDailyTracking(today),
		func(d DailyXPTracking) (DailyXPTracking, error) {
			if d.Date != today {
				return d, nil
			}
			d = d.rollover(today)
			d.release(source, amount)
			return d, nil
		})
	if err != nil {
		s.logger.Warn("daily reservation not released", "event", "daily_release_failed", "source", source, "amount", amount, "error", err)
	}
}

// applyMultiplier scales amount by factor, rounding to the nearest whole XP.
// A positive amount never rounds down to zero.
func applyMultiplier(amount int64, factor float64) int64 {
	if factor == 1 || factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return amount
	}
	v := math.Round(float64(amount) * factor)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v < 1 {
		return 1
	}
	return int64(v)
}

// incrementTotal moves total XP by delta, retrying per the policy. The total
// never drops below zero. then runs once, under the total's lock, after the
// new total is stored. attempts counts every backend write attempt across the
// store's own retries.
func (s *Service) incrementTotal(ctx context.Context, delta int64, then func(atomicstore.IncrementResult)) (res atomicstore.IncrementResult, attempts int, err error) {
	for try := 1; try <= s.retry.Attempts; try++ {
		if try > 1 {
			if serr := sleepCtx(ctx, s.retry.Delay*time.Duration(try-1)); serr != nil {
				return res, attempts, err
			}
		}
		res, err = s.store.IncrementAtLeastThen(ctx, KeyTotalXP, delta, 0, then)
		attempts += res.Attempts
		if err == nil {
			return res, attempts, nil
		}
		if ctx.Err() != nil {
			return res, attempts, err
		}
		s.logger.Warn("total xp increment failed",
			"event", "increment_retry",
			"attempt", try,
			"delta", delta,
			"error", err,
		)
	}
	return res, attempts, err
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

func (s *Service) applyLevels(res *TransactionResult, prev, next int64) {
	res.PreviousLevel = s.curve.LevelForTotalXP(prev)
	res.NewLevel = s.curve.LevelForTotalXP(next)
	res.LeveledUp = res.NewLevel > res.PreviousLevel
	res.LeveledDown = res.NewLevel < res.PreviousLevel
	res.MilestoneReached = res.LeveledUp && level.IsMilestone(res.NewLevel)
	if res.LeveledUp {
		info := level.LevelUpInfo(res.NewLevel)
		res.LevelUp = &info
	}
}

type sideEffect struct {
	name string
	run  func(context.Context) error
}

// runSideEffects runs the effects concurrently. They touch different keys, so
// each is atomic on its own; failures are recorded on res and logged.
func (s *Service) runSideEffects(ctx context.Context, res *TransactionResult, effects ...sideEffect) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, e := range effects {
		e := e
		g.Go(func() error {
			if err := e.run(ctx); err != nil {
				mu.Lock()
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", e.name, err))
				mu.Unlock()
				return fmt.Errorf("%s: %w", e.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("xp side effects incomplete",
			"event", "side_effect_failed",
			"operation_id", res.OperationID,
			"error", err,
		)
	}
}

func (s *Service) appendTransaction(tx XPTransaction) sideEffect {
	return sideEffect{name: "transaction log", run: func(ctx context.Context) error {
		return atomicstore.AppendBounded(ctx, s.store, KeyTransactions, tx, s.transactionCap)
	}}
}

func (s *Service) recordLevelUp(ctx context.Context, res *TransactionResult, source Source, now time.Time, today string) {
	ev := LevelUpEvent{
		ID:            s.newID(),
		Timestamp:     now,
		Date:          today,
		PreviousLevel: res.PreviousLevel,
		NewLevel:      res.NewLevel,
		TotalXP:       res.TotalXP,
		Source:        source,
		IsMilestone:   res.MilestoneReached,
	}
	if err := atomicstore.AppendBounded(ctx, s.store, KeyLevelUpHistory, ev, s.levelUpCap); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("level-up history: %v", err))
		s.logger.Warn("level-up not recorded", "event", "level_up_history_failed", "level", res.NewLevel, "error", err)
	}
	s.logger.Info("level up",
		"event", "level_up",
		"from", res.PreviousLevel,
		"to", res.NewLevel,
		"milestone", res.MilestoneReached,
	)
}

// debitSources takes amount out of the per-source totals.
func (s *Service) debitSources(ctx context.Context, source Source, amount int64) error {
	_, err := atomicstore.ReadModifyWrite(ctx, s.store, KeyBySource, zeroBySource(),
		func(m map[string]int64) (map[string]int64, error) {
			if m == nil {
				m = zeroBySource()
			}
			drainSources(m, source, amount)
			return m, nil
		})
	return err
}

// drainSources removes amount from source first and takes any shortfall from
// the other sources in display order, so the totals keep summing to total XP.
func drainSources(m map[string]int64, source Source, amount int64) {
	take := func(key string) {
		have := m[key]
		if amount <= 0 || have <= 0 {
			return
		}
		d := min(have, amount)
		m[key] = have - d
		amount -= d
	}
	take(string(source))
	for _, src := range Sources {
		take(string(src))
	}
}

func (s *Service) notify(kind events.Kind, res *TransactionResult, source Source, sourceID string, now time.Time) {
	e := events.Event{
		Kind:          kind,
		Amount:        res.XPGained,
		Source:        string(source),
		SourceID:      sourceID,
		LeveledUp:     res.LeveledUp,
		Milestone:     res.MilestoneReached,
		PreviousLevel: res.PreviousLevel,
		NewLevel:      res.NewLevel,
		TotalXP:       res.TotalXP,
		Timestamp:     now,
	}
	s.emit(e)
	if res.LeveledUp {
		e.Kind = events.KindLevelUp
		s.emit(e)
	}
}
