package engine

import (
	"fmt"
	"strings"
	"time"

	"selfrise/internal/level"
)

// Source is the kind of action that earned or removed XP.
type Source string

const (
	SourceHabitCompletion   Source = "habit-completion"
	SourceHabitBonus        Source = "habit-bonus"
	SourceHabitStreak       Source = "habit-streak"
	SourceJournalEntry      Source = "journal-entry"
	SourceJournalBonus      Source = "journal-bonus"
	SourceGoalProgress      Source = "goal-progress"
	SourceGoalMilestone     Source = "goal-milestone"
	SourceGoalCompletion    Source = "goal-completion"
	SourceAchievementUnlock Source = "achievement-unlock"
	SourceMonthlyChallenge  Source = "monthly-challenge"
	SourceEngagement        Source = "engagement"
	SourceMultiplierBonus   Source = "multiplier-bonus"
)

// Sources lists every source in display order.
var Sources = []Source{
	SourceHabitCompletion,
	SourceHabitBonus,
	SourceHabitStreak,
	SourceJournalEntry,
	SourceJournalBonus,
	SourceGoalProgress,
	SourceGoalMilestone,
	SourceGoalCompletion,
	SourceAchievementUnlock,
	SourceMonthlyChallenge,
	SourceEngagement,
	SourceMultiplierBonus,
}

func (s Source) IsValid() bool {
	for _, v := range Sources {
		if v == s {
			return true
		}
	}
	return false
}

// Label is the human form, e.g. "Habit completion".
func (s Source) Label() string {
	words := strings.Split(string(s), "-")
	if len(words) == 0 || words[0] == "" {
		return string(s)
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

// ParseSource accepts the canonical name, case-insensitively, with '_' or '-'.
func ParseSource(s string) (Source, error) {
	v := Source(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return v, nil
}

// XPTransaction is one immutable ledger entry. Amount is negative for revocations.
type XPTransaction struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Source      Source    `json:"source"`
	SourceID    string    `json:"sourceId,omitempty"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Multiplier  float64   `json:"multiplier,omitempty"`
}

// XPBySource holds the lifetime XP per source. Every source is present.
type XPBySource map[Source]int64

func (m XPBySource) Total() int64 {
	var sum int64
	for _, v := range m {
		sum += v
	}
	return sum
}

func zeroBySource() map[string]int64 {
	out := make(map[string]int64, len(Sources))
	for _, s := range Sources {
		out[string(s)] = 0
	}
	return out
}

func toBySource(raw map[string]int64) XPBySource {
	out := make(XPBySource, len(Sources))
	for _, s := range Sources {
		out[s] = raw[string(s)]
	}
	return out
}

// DailyXPTracking is the per-day bookkeeping used for limit checks.
type DailyXPTracking struct {
	Date              string               `json:"date"`
	TotalXP           int64                `json:"totalXP"`
	XPBySource        map[Source]int64     `json:"xpBySource"`
	TransactionCount  int                  `json:"transactionCount"`
	LastTransactionAt time.Time            `json:"lastTransactionTime"`
	LastByStream      map[string]time.Time `json:"lastByStream,omitempty"`
}

func newDailyTracking(date string) DailyXPTracking {
	return DailyXPTracking{
		Date:         date,
		XPBySource:   map[Source]int64{},
		LastByStream: map[string]time.Time{},
	}
}

// rollover returns an empty record when d belongs to another day.
func (d DailyXPTracking) rollover(today string) DailyXPTracking {
	if d.Date != today {
		return newDailyTracking(today)
	}
	if d.XPBySource == nil {
		d.XPBySource = map[Source]int64{}
	}
	if d.LastByStream == nil {
		d.LastByStream = map[string]time.Time{}
	}
	return d
}

// LevelUpEvent records a level increase. History only; never replayed.
type LevelUpEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Date          string    `json:"date"`
	PreviousLevel int       `json:"previousLevel"`
	NewLevel      int       `json:"newLevel"`
	TotalXP       int64     `json:"totalXPAtLevelUp"`
	Source        Source    `json:"triggerSource"`
	IsMilestone   bool      `json:"isMilestone"`
}

// ActiveMultiplier scales grants until ExpiresAt.
type ActiveMultiplier struct {
	Factor      float64   `json:"multiplier"`
	ActivatedAt time.Time `json:"activatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Reason      string    `json:"reason"`
}

func (m *ActiveMultiplier) expired(now time.Time) bool {
	return m == nil || !now.Before(m.ExpiresAt)
}

// GrantRequest asks the ledger to add XP.
type GrantRequest struct {
	Amount      int64
	Source      Source
	SourceID    string
	Description string
	// SkipLimits bypasses caps and the minimum interval.
	SkipLimits       bool
	SkipNotification bool
}

// RevokeRequest asks the ledger to remove XP. Amount is the positive magnitude.
type RevokeRequest struct {
	Amount           int64
	Source           Source
	SourceID         string
	Description      string
	SkipNotification bool
}

// TransactionResult is the outcome of Grant or Revoke. It is returned even when
// the call fails; Success and Reason describe the failure.
type TransactionResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`

	// XPGained is the amount actually applied; negative for revocations.
	XPGained    int64   `json:"xpGained"`
	RequestedXP int64   `json:"requestedXP"`
	Clipped     bool    `json:"clipped"`
	Multiplier  float64 `json:"multiplier,omitempty"`
	TotalXP     int64   `json:"totalXP"`

	PreviousLevel    int            `json:"previousLevel"`
	NewLevel         int            `json:"newLevel"`
	LeveledUp        bool           `json:"leveledUp"`
	LeveledDown      bool           `json:"leveledDown"`
	MilestoneReached bool           `json:"milestoneReached"`
	LevelUp          *level.LevelUp `json:"levelUp,omitempty"`
	Transaction      *XPTransaction `json:"transaction,omitempty"`

	OperationID int64         `json:"operationId"`
	Elapsed     time.Duration `json:"elapsed"`
	Retried     bool          `json:"retried"`
	Attempts    int           `json:"attempts"`
	Queued      bool          `json:"queued"`
	Contention  int64         `json:"contention"`
	// Warnings lists side effects that failed after TotalXP was committed.
	Warnings []string `json:"warnings,omitempty"`
}
