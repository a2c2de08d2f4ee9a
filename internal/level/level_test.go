package level

import (
	"math"
	"testing"
	"time"
)

func TestXPBoundaries(t *testing.T) {
	if got := XPRequiredForLevel(0); got != 0 {
		t.Fatalf("XPRequiredForLevel(0)=%d, want 0", got)
	}
	if got := XPRequiredForLevel(-3); got != 0 {
		t.Fatalf("XPRequiredForLevel(-3)=%d, want 0", got)
	}
	if got := XPRequiredForLevel(1); got != LevelOneXP {
		t.Fatalf("XPRequiredForLevel(1)=%d, want %d", got, LevelOneXP)
	}
	if got := XPRequiredForLevel(2); got != LevelOneXP+LevelTwoXP {
		t.Fatalf("XPRequiredForLevel(2)=%d, want %d", got, LevelOneXP+LevelTwoXP)
	}
	if got, want := XPRequiredForLevel(3), int64(LevelOneXP+LevelTwoXP+BeginnerBaseXP); got != want {
		t.Fatalf("XPRequiredForLevel(3)=%d, want %d", got, want)
	}
	// 250 + 200 + 240
	if got := XPRequiredForLevel(4); got != 690 {
		t.Fatalf("XPRequiredForLevel(4)=%d, want 690", got)
	}
}

func TestMonotonic(t *testing.T) {
	prev := XPRequiredForLevel(0)
	for l := 1; l <= MaxLevel; l++ {
		cur := XPRequiredForLevel(l)
		if cur <= prev {
			t.Fatalf("XPRequiredForLevel(%d)=%d not above level %d (%d)", l, cur, l-1, prev)
		}
		prev = cur
	}
}

func TestLevelRoundTrip(t *testing.T) {
	for l := 1; l <= 250; l++ {
		req := XPRequiredForLevel(l)
		if got := LevelForTotalXP(req - 1); got != l-1 {
			t.Fatalf("LevelForTotalXP(req(%d)-1)=%d, want %d", l, got, l-1)
		}
		if got := LevelForTotalXP(req); got != l {
			t.Fatalf("LevelForTotalXP(req(%d))=%d, want %d", l, got, l)
		}
	}
}

func TestLevelForTotalXPEdges(t *testing.T) {
	cases := []struct {
		xp   int64
		want int
	}{
		{-50, 0},
		{0, 0},
		{LevelOneXP - 1, 0},
		{LevelOneXP, 1},
		{LevelOneXP + LevelTwoXP - 1, 1},
		{math.MaxInt64, MaxLevel},
	}
	for _, tc := range cases {
		if got := LevelForTotalXP(tc.xp); got != tc.want {
			t.Fatalf("LevelForTotalXP(%d)=%d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestLevelForXPNormalisesBadInput(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1} {
		if got := LevelForXP(v); got != 0 {
			t.Fatalf("LevelForXP(%v)=%d, want 0", v, got)
		}
	}
	if got := LevelForXP(float64(XPRequiredForLevel(7)) + 0.5); got != 7 {
		t.Fatalf("LevelForXP=%d, want 7", got)
	}
}

func TestPhaseSeedsChain(t *testing.T) {
	c := NewCurve()
	// The first level of each later phase costs the same as the last level of the
	// previous one.
	for i := 1; i < len(Phases); i++ {
		prevEnd := Phases[i-1].End
		start := Phases[i].Start
		if a, b := c.LevelDelta(prevEnd), c.LevelDelta(start); math.Abs(a-b) > 1e-6 {
			t.Fatalf("delta(%d)=%f, delta(%d)=%f; want equal", prevEnd, a, start, b)
		}
	}
	if got := PhaseFor(30).Name; got != "Advanced" {
		t.Fatalf("PhaseFor(30)=%q, want Advanced", got)
	}
	if got := PhaseFor(400).Name; got != "Master" {
		t.Fatalf("PhaseFor(400)=%q, want Master", got)
	}
}

func TestProgress(t *testing.T) {
	l5 := XPRequiredForLevel(5)
	l6 := XPRequiredForLevel(6)
	mid := l5 + (l6-l5)/2

	p := ProgressFor(mid)
	if p.Level != 5 {
		t.Fatalf("Level=%d, want 5", p.Level)
	}
	if p.XPRequiredForCurrentLevel != l5 || p.XPRequiredForNextLevel != l6 {
		t.Fatalf("thresholds=%d/%d, want %d/%d", p.XPRequiredForCurrentLevel, p.XPRequiredForNextLevel, l5, l6)
	}
	if p.XPInCurrentLevel+p.XPToNextLevel != l6-l5 {
		t.Fatalf("in+to=%d, want %d", p.XPInCurrentLevel+p.XPToNextLevel, l6-l5)
	}
	if p.ProgressPercent < 49 || p.ProgressPercent > 51 {
		t.Fatalf("ProgressPercent=%f, want ~50", p.ProgressPercent)
	}

	if got := ProgressFor(-10); got.Level != 0 || got.ProgressPercent != 0 {
		t.Fatalf("ProgressFor(-10)=%+v, want level 0 at 0%%", got)
	}

	top := ProgressFor(math.MaxInt64)
	if top.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent at max=%f, want 100", top.ProgressPercent)
	}
}

func TestMilestones(t *testing.T) {
	for _, l := range []int{5, 10, 15, 20, 25, 30, 40, 50, 75, 100} {
		for i := 0; i < 3; i++ {
			if !IsMilestone(l) {
				t.Fatalf("IsMilestone(%d)=false, want true", l)
			}
		}
	}
	for _, l := range []int{0, 1, 4, 6, 35, 99, 101} {
		if IsMilestone(l) {
			t.Fatalf("IsMilestone(%d)=true, want false", l)
		}
	}
	if next, ok := NextMilestone(10); !ok || next != 15 {
		t.Fatalf("NextMilestone(10)=%d,%v, want 15,true", next, ok)
	}
	if _, ok := NextMilestone(100); ok {
		t.Fatalf("NextMilestone(100) should not exist")
	}
}

func TestLevelUpInfo(t *testing.T) {
	info := LevelUpInfo(10)
	if !info.IsMilestone {
		t.Fatalf("level 10 should be a milestone")
	}
	if info.Title != "Pathfinder" {
		t.Fatalf("Title=%q, want Pathfinder", info.Title)
	}
	if len(info.Rewards) < 3 {
		t.Fatalf("milestone rewards=%v, want at least 3", info.Rewards)
	}

	plain := LevelUpInfo(7)
	if plain.IsMilestone {
		t.Fatalf("level 7 should not be a milestone")
	}
	if TitleFor(150) != "Legend" {
		t.Fatalf("TitleFor(150)=%q, want Legend", TitleFor(150))
	}
}

func TestCurveCacheResetsWholesale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCurve(WithNow(func() time.Time { return now }), WithCacheSize(10))

	for l := 3; l < 13; l++ {
		c.XPRequiredForLevel(l)
	}
	if got := c.CacheLen(); got != 10 {
		t.Fatalf("CacheLen=%d, want 10", got)
	}
	// The 11th entry overflows the bound and drops everything.
	c.XPRequiredForLevel(20)
	if got := c.CacheLen(); got != 1 {
		t.Fatalf("CacheLen after overflow=%d, want 1", got)
	}

	c.XPRequiredForLevel(21)
	now = now.Add(DefaultCacheTTL + time.Second)
	want := XPRequiredForLevel(22)
	if got := c.XPRequiredForLevel(22); got != want {
		t.Fatalf("XPRequiredForLevel(22)=%d, want %d", got, want)
	}
	if got := c.CacheLen(); got != 1 {
		t.Fatalf("CacheLen after expiry=%d, want 1", got)
	}
}
