package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selfrise/internal/atomicstore"
	"selfrise/internal/events"
)

// Grant adds XP from a user action. The returned result is never nil; when
// err is non-nil the result carries Success=false and the reason.
//
// Only a failure to move the total XP fails a grant. The transaction log,
// per-source totals, level-up history and observers are updated after the
// total is committed; their failures end up in Warnings.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*TransactionResult, error) {
	start := time.Now()
	res := &TransactionResult{RequestedXP: req.Amount, Multiplier: 1}
	if req.Amount <= 0 {
		return s.fail("grant", req.Source, res, start, fmt.Errorf("%w: got %d", ErrInvalidAmount, req.Amount))
	}
	if !req.Source.IsValid() {
		return s.fail("grant", req.Source, res, start, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source))
	}

	res.OperationID = s.operationID(ctx)
	now := s.clock.Now()
	today := s.dateKey(now)

	factor := s.multiplierFactor(ctx, now)
	res.Multiplier = factor

	rsv, err := s.reserve(ctx, req, today, now, factor)
	if err != nil {
		var limit LimitError
		if errors.As(err, &limit) {
			s.logger.Info("xp grant refused",
				"event", "grant_refused",
				"source", req.Source,
				"limit", limit.Kind,
				"amount", req.Amount,
			)
			return s.fail("grant", req.Source, res, start, err)
		}
		return s.fail("grant", req.Source, res, start, fmt.Errorf("%w: %w", ErrStorage, err))
	}
	res.Clipped = rsv.clipped

	partial := map[string]int64{string(req.Source): rsv.final}
	if bonus := rsv.final - rsv.base; bonus > 0 {
		partial[string(req.Source)] = rsv.base
		partial[string(SourceMultiplierBonus)] += bonus
	}
	var bySourceErr error
	inc, attempts, err := s.incrementTotal(ctx, rsv.final, func(atomicstore.IncrementResult) {
		_, bySourceErr = atomicstore.MergeObject(ctx, s.store, KeyBySource, partial, atomicstore.MergeAdd, zeroBySource())
	})
	res.Attempts, res.Retried, res.Queued = attempts, attempts > 1, inc.Queued
	if err != nil {
		if rsv.booked {
			s.releaseReservation(ctx, req.Source, rsv.final, today)
		}
		return s.fail("grant", req.Source, res, start, fmt.Errorf("%w: %w", ErrStorage, err))
	}

	res.XPGained = rsv.final
	res.TotalXP = inc.NewValue
	s.applyLevels(res, inc.PreviousValue, inc.NewValue)

	tx := XPTransaction{
		ID:          s.newID(),
		Amount:      rsv.final,
		Source:      req.Source,
		SourceID:    req.SourceID,
		Description: describe(req.Description, req.Source, rsv.final),
		Date:        today,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if factor != 1 {
		tx.Multiplier = factor
	}
	res.Transaction = &tx

	s.sourceWarning(res, bySourceErr)
	s.runSideEffects(ctx, res,
		s.appendTransaction(tx),
		sideEffect{name: "last activity", run: func(ctx context.Context) error {
			return atomicstore.Write(ctx, s.store, KeyLastActivity, today)
		}},
	)
	if res.LeveledUp {
		s.recordLevelUp(ctx, res, req.Source, now, today)
	}

	res.Success = true
	res.Contention = s.store.Stats().Queued
	res.Elapsed = time.Since(start)
	observe("grant", req.Source, res)
	s.logger.Info("xp granted",
		"event", "xp_granted",
		"operation_id", res.OperationID,
		"source", req.Source,
		"amount", res.XPGained,
		"clipped", res.Clipped,
		"total", res.TotalXP,
		"level", res.NewLevel,
	)

	if !req.SkipNotification {
		s.notify(events.KindGrant, res, req.Source, req.SourceID, now)
	}
	return res, nil
}

// Revoke removes XP, clamping the total at zero. Limits are not checked and
// the day's tracking is left alone.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (*TransactionResult, error) {
	start := time.Now()
	res := &TransactionResult{RequestedXP: -req.Amount, Multiplier: 1}
	if req.Amount <= 0 {
		return s.fail("revoke", req.Source, res, start, fmt.Errorf("%w: got %d", ErrInvalidAmount, req.Amount))
	}
	if !req.Source.IsValid() {
		return s.fail("revoke", req.Source, res, start, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source))
	}

	res.OperationID = s.operationID(ctx)
	now := s.clock.Now()
	today := s.dateKey(now)

	// The debit runs under the total's lock, so it sees every grant already
	// counted in the total.
	var bySourceErr error
	inc, attempts, err := s.incrementTotal(ctx, -req.Amount, func(r atomicstore.IncrementResult) {
		if debit := r.PreviousValue - r.NewValue; debit > 0 {
			bySourceErr = s.debitSources(ctx, req.Source, debit)
		}
	})
	res.Attempts, res.Retried, res.Queued = attempts, attempts > 1, inc.Queued
	if err != nil {
		return s.fail("revoke", req.Source, res, start, fmt.Errorf("%w: %w", ErrStorage, err))
	}

	applied := inc.NewValue - inc.PreviousValue
	res.XPGained = applied
	res.Clipped = applied != -req.Amount
	res.TotalXP = inc.NewValue
	s.applyLevels(res, inc.PreviousValue, inc.NewValue)
	s.sourceWarning(res, bySourceErr)

	// A revoke that finds the total at zero is still logged, with amount 0.
	tx := XPTransaction{
		ID:          s.newID(),
		Amount:      applied,
		Source:      req.Source,
		SourceID:    req.SourceID,
		Description: describe(req.Description, req.Source, applied),
		Date:        today,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res.Transaction = &tx
	s.runSideEffects(ctx, res, s.appendTransaction(tx))

	res.Success = true
	res.Contention = s.store.Stats().Queued
	res.Elapsed = time.Since(start)
	observe("revoke", req.Source, res)
	s.logger.Info("xp revoked",
		"event", "xp_revoked",
		"operation_id", res.OperationID,
		"source", req.Source,
		"amount", applied,
		"total", res.TotalXP,
		"level", res.NewLevel,
	)

	if !req.SkipNotification {
		s.notify(events.KindRevoke, res, req.Source, req.SourceID, now)
	}
	return res, nil
}

func (s *Service) fail(kind string, source Source, res *TransactionResult, start time.Time, err error) (*TransactionResult, error) {
	res.Success = false
	res.Reason = err.Error()
	res.Elapsed = time.Since(start)
	observe(kind, source, res)
	if errors.Is(err, ErrStorage) {
		s.logger.Error("xp ledger call failed",
			"event", kind+"_failed",
			"operation_id", res.OperationID,
			"source", source,
			"attempts", res.Attempts,
			"error", err,
		)
	}
	return res, err
}

// sourceWarning records a failed per-source update. The total stands.
func (s *Service) sourceWarning(res *TransactionResult, err error) {
	if err == nil {
		return
	}
	res.Warnings = append(res.Warnings, fmt.Sprintf("xp by source: %v", err))
	s.logger.Warn("xp by source not updated",
		"event", "by_source_failed",
		"operation_id", res.OperationID,
		"error", err,
	)
}

func describe(desc string, source Source, amount int64) string {
	if desc != "" {
		return desc
	}
	if amount <= 0 {
		return fmt.Sprintf("%s %d XP", source.Label(), amount)
	}
	return fmt.Sprintf("%s +%d XP", source.Label(), amount)
}
