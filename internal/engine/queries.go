package engine

import (
	"context"
	"errors"

	"selfrise/internal/atomicstore"
	"selfrise/internal/level"
)

func (s *Service) TotalXP(ctx context.Context) (int64, error) {
	return s.store.ReadCounter(ctx, KeyTotalXP)
}

// XPBySource returns lifetime XP per source, with every source present.
func (s *Service) XPBySource(ctx context.Context) (XPBySource, error) {
	raw, err := atomicstore.Read(ctx, s.store, KeyBySource, zeroBySource())
	if err != nil {
		return nil, err
	}
	return toBySource(raw), nil
}

// Transactions returns the retained transaction log, oldest first.
func (s *Service) Transactions(ctx context.Context) ([]XPTransaction, error) {
	return atomicstore.Read[[]XPTransaction](ctx, s.store, KeyTransactions, nil)
}

// TransactionsForDate filters the log to one day, formatted 2006-01-02.
func (s *Service) TransactionsForDate(ctx context.Context, date string) ([]XPTransaction, error) {
	all, err := s.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	var out []XPTransaction
	for _, tx := range all {
		if tx.Date == date {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Service) LevelUpHistory(ctx context.Context) ([]LevelUpEvent, error) {
	return atomicstore.Read[[]LevelUpEvent](ctx, s.store, KeyLevelUpHistory, nil)
}

// DailyTracking returns today's tracking. A record left over from an earlier
// day reads as empty.
func (s *Service) DailyTracking(ctx context.Context) (DailyXPTracking, error) {
	today := s.Today()
	d, err := atomicstore.Read(ctx, s.store, KeyDailyTracking, newDailyTracking(today))
	if err != nil {
		return newDailyTracking(today), err
	}
	return d.rollover(today), nil
}

// LastActivityDate returns the day of the latest grant, or "" if none.
func (s *Service) LastActivityDate(ctx context.Context) (string, error) {
	return atomicstore.Read(ctx, s.store, KeyLastActivity, "")
}

func (s *Service) Progress(ctx context.Context) (level.Progress, error) {
	total, err := s.TotalXP(ctx)
	if err != nil {
		return level.Progress{}, err
	}
	return s.curve.Progress(total), nil
}

// Reset deletes all ledger state, including the operation counter.
func (s *Service) Reset(ctx context.Context) error {
	keys := []string{
		KeyTotalXP,
		KeyTransactions,
		KeyBySource,
		KeyDailyTracking,
		KeyLastActivity,
		KeyMultiplier,
		KeyLevelUpHistory,
		atomicstore.OperationCounterKey,
	}
	var errs []error
	for _, k := range keys {
		if err := s.store.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("xp ledger reset", "event", "ledger_reset")
	return nil
}
