package engine

import (
	"errors"
	"testing"
	"time"
)

func TestLimitsCheck(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limits := Limits{
		MaxSingleTransaction: 200,
		GlobalDailyCap:       300,
		Sources: map[Source]SourceLimit{
			SourceHabitCompletion: {DailyCap: 100},
			SourceEngagement:      {MinInterval: time.Minute},
		},
	}
	day := newDailyTracking("2026-03-14")
	day.record(SourceHabitCompletion, "", 80, now.Add(-time.Hour))
	day.record(SourceEngagement, "", 150, now.Add(-10*time.Second))

	cases := []struct {
		name        string
		source      Source
		sourceID    string
		amount      int64
		want        int64
		wantClipped bool
		wantKind    LimitKind
	}{
		{name: "under caps", source: SourceJournalEntry, amount: 40, want: 40},
		{name: "source cap clips", source: SourceHabitCompletion, amount: 50, want: 20, wantClipped: true},
		{name: "global cap clips", source: SourceGoalProgress, amount: 100, want: 70, wantClipped: true},
		{name: "too soon", source: SourceEngagement, amount: 1, wantKind: LimitTooSoon},
		{name: "other stream", source: SourceEngagement, sourceID: "x", amount: 10, want: 10},
	}
	for _, tc := range cases {
		got, clipped, err := limits.check(day, tc.source, tc.sourceID, tc.amount, now)
		if tc.wantKind != "" {
			var limit LimitError
			if !errors.As(err, &limit) || limit.Kind != tc.wantKind {
				t.Fatalf("%s: err=%v, want %s", tc.name, err, tc.wantKind)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want || clipped != tc.wantClipped {
			t.Fatalf("%s: got %d clipped=%v, want %d clipped=%v", tc.name, got, clipped, tc.want, tc.wantClipped)
		}
	}
}

func TestDrainSourcesTakesShortfallFromOthers(t *testing.T) {
	m := zeroBySource()
	m[string(SourceHabitCompletion)] = 40
	m[string(SourceJournalEntry)] = 10
	m[string(SourceEngagement)] = 5

	drainSources(m, SourceJournalEntry, 30)

	if m[string(SourceJournalEntry)] != 0 || m[string(SourceHabitCompletion)] != 20 || m[string(SourceEngagement)] != 5 {
		t.Fatalf("after drain: %v", m)
	}
}

func TestApplyMultiplier(t *testing.T) {
	cases := []struct {
		amount int64
		factor float64
		want   int64
	}{
		{50, 1, 50},
		{50, 1.5, 75},
		{33, 1.5, 50},
		{1, 0.1, 1},
		{10, 0, 10},
	}
	for _, tc := range cases {
		if got := applyMultiplier(tc.amount, tc.factor); got != tc.want {
			t.Fatalf("applyMultiplier(%d, %v)=%d, want %d", tc.amount, tc.factor, got, tc.want)
		}
	}
}

func TestParseSource(t *testing.T) {
	got, err := ParseSource(" Habit_Completion ")
	if err != nil || got != SourceHabitCompletion {
		t.Fatalf("ParseSource=%q,%v", got, err)
	}
	if _, err := ParseSource("nap"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err=%v, want ErrUnknownSource", err)
	}
	if SourceGoalMilestone.Label() != "Goal milestone" {
		t.Fatalf("Label=%q", SourceGoalMilestone.Label())
	}
}
