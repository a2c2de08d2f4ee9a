package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"selfrise/internal/atomicstore"
)

// ActivateMultiplier scales every grant by factor until duration has passed.
// It replaces any multiplier already active.
func (s *Service) ActivateMultiplier(ctx context.Context, factor float64, duration time.Duration, reason string) (ActiveMultiplier, error) {
	if math.IsNaN(factor) || factor <= 0 || factor > MaxMultiplierFactor {
		return ActiveMultiplier{}, fmt.Errorf("%w: factor %v must be in (0, %v]", ErrInvalidMultiplier, factor, MaxMultiplierFactor)
	}
	if duration <= 0 {
		return ActiveMultiplier{}, fmt.Errorf("%w: duration must be positive", ErrInvalidMultiplier)
	}
	now := s.clock.Now()
	m := ActiveMultiplier{
		Factor:      factor,
		ActivatedAt: now,
		ExpiresAt:   now.Add(duration),
		Reason:      reason,
	}
	if err := atomicstore.Write(ctx, s.store, KeyMultiplier, &m); err != nil {
		return ActiveMultiplier{}, err
	}
	s.logger.Info("xp multiplier activated",
		"event", "multiplier_activated",
		"factor", factor,
		"expires_at", m.ExpiresAt,
		"reason", reason,
	)
	return m, nil
}

func (s *Service) ClearMultiplier(ctx context.Context) error {
	return s.store.Remove(ctx, KeyMultiplier)
}

// ActiveMultiplier returns the multiplier in force, or nil. An expired record
// is cleared on read.
func (s *Service) ActiveMultiplier(ctx context.Context) (*ActiveMultiplier, error) {
	now := s.clock.Now()
	m, err := atomicstore.Read[*ActiveMultiplier](ctx, s.store, KeyMultiplier, nil)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	if !m.expired(now) {
		return m, nil
	}
	_, err = atomicstore.ReadModifyWrite(ctx, s.store, KeyMultiplier, nil,
		func(cur *ActiveMultiplier) (*ActiveMultiplier, error) {
			// Keep a multiplier activated since we read.
			if cur != nil && !cur.expired(now) {
				return cur, nil
			}
			return nil, nil
		})
	if err != nil {
		s.logger.Warn("expired multiplier not cleared", "event", "multiplier_clear_failed", "error", err)
	}
	return nil, nil
}

// multiplierFactor is 1 unless a multiplier is active. Read failures count
// as no multiplier.
func (s *Service) multiplierFactor(ctx context.Context, now time.Time) float64 {
	m, err := s.ActiveMultiplier(ctx)
	if err != nil {
		s.logger.Warn("multiplier unavailable", "event", "multiplier_read_failed", "error", err)
		return 1
	}
	if m == nil || m.expired(now) {
		return 1
	}
	return m.Factor
}
