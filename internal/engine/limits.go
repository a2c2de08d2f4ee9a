package engine

import (
	"time"
)

// SourceLimit bounds how much one source may earn per day.
type SourceLimit struct {
	// DailyCap is the most XP the source may earn per day; 0 means uncapped.
	DailyCap int64 `yaml:"daily_cap"`
	// MinInterval is the minimum gap between two grants of the same stream.
	MinInterval time.Duration `yaml:"min_interval"`
}

// Limits are the anti-abuse rules applied to grants.
type Limits struct {
	// MaxSingleTransaction clips any single grant; 0 means unbounded.
	MaxSingleTransaction int64 `yaml:"max_single_transaction"`
	// GlobalDailyCap bounds the XP earned per day across sources; 0 means uncapped.
	GlobalDailyCap int64                  `yaml:"global_daily_cap"`
	Sources        map[Source]SourceLimit `yaml:"sources"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSingleTransaction: 1000,
		GlobalDailyCap:       1500,
		Sources: map[Source]SourceLimit{
			SourceHabitCompletion:   {DailyCap: 500},
			SourceHabitBonus:        {DailyCap: 200},
			SourceHabitStreak:       {DailyCap: 300},
			SourceJournalEntry:      {DailyCap: 300, MinInterval: 10 * time.Second},
			SourceJournalBonus:      {DailyCap: 200},
			SourceGoalProgress:      {DailyCap: 300, MinInterval: 5 * time.Second},
			SourceGoalMilestone:     {DailyCap: 400},
			SourceGoalCompletion:    {DailyCap: 600},
			SourceAchievementUnlock: {},
			SourceMonthlyChallenge:  {},
			SourceEngagement:        {DailyCap: 50, MinInterval: 30 * time.Second},
			SourceMultiplierBonus:   {},
		},
	}
}

// For returns the limit for source; unknown sources are uncapped.
func (l Limits) For(source Source) SourceLimit {
	return l.Sources[source]
}

// streamKey identifies the grants the minimum interval is measured across.
func streamKey(source Source, sourceID string) string {
	if sourceID == "" {
		return string(source)
	}
	return string(source) + ":" + sourceID
}

// check returns how much of amount may be granted today. A grant that would
// exceed a cap is clipped to the remaining room; it is refused only when no
// room is left.
func (l Limits) check(d DailyXPTracking, source Source, sourceID string, amount int64, now time.Time) (int64, bool, error) {
	clipped := false
	if l.MaxSingleTransaction > 0 && amount > l.MaxSingleTransaction {
		amount = l.MaxSingleTransaction
		clipped = true
	}

	sl := l.For(source)
	if sl.MinInterval > 0 {
		if last, ok := d.LastByStream[streamKey(source, sourceID)]; ok {
			if wait := sl.MinInterval - now.Sub(last); wait > 0 {
				return 0, false, LimitError{
					Kind:       LimitTooSoon,
					Source:     source,
					RetryAfter: wait.Round(time.Second).String(),
				}
			}
		}
	}

	if sl.DailyCap > 0 {
		used := d.XPBySource[source]
		room := sl.DailyCap - used
		if room <= 0 {
			return 0, false, LimitError{Kind: LimitSourceDaily, Source: source, Limit: sl.DailyCap, Used: used}
		}
		if amount > room {
			amount = room
			clipped = true
		}
	}

	if l.GlobalDailyCap > 0 {
		room := l.GlobalDailyCap - d.TotalXP
		if room <= 0 {
			return 0, false, LimitError{Kind: LimitGlobalDaily, Source: source, Limit: l.GlobalDailyCap, Used: d.TotalXP}
		}
		if amount > room {
			amount = room
			clipped = true
		}
	}
	return amount, clipped, nil
}

// record books a grant into the day's tracking.
func (d *DailyXPTracking) record(source Source, sourceID string, amount int64, now time.Time) {
	d.TotalXP += amount
	d.XPBySource[source] += amount
	d.TransactionCount++
	d.LastTransactionAt = now
	d.LastByStream[streamKey(source, sourceID)] = now
}

// release undoes the amounts booked by record. Interval stamps are kept.
func (d *DailyXPTracking) release(source Source, amount int64) {
	d.TotalXP -= amount
	if d.TotalXP < 0 {
		d.TotalXP = 0
	}
	d.XPBySource[source] -= amount
	if d.XPBySource[source] <= 0 {
		delete(d.XPBySource, source)
	}
	if d.TransactionCount > 0 {
		d.TransactionCount--
	}
}
