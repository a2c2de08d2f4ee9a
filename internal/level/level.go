// Package level maps XP totals to levels.
//
// The curve is cumulative: XPRequiredForLevel(L) is the total XP a user needs
// to be at level L. Every function here is total; bad input is normalised to
// level 0 instead of returning an error.
package level

import (
	"fmt"
	"math"
	"sort"
)

var defaultCurve = NewCurve()

// Default returns the process-wide curve used by the package-level helpers.
func Default() *Curve { return defaultCurve }

// XPRequiredForLevel returns the total XP threshold required to be at the given level.
// Level 0 requires 0 XP.
func XPRequiredForLevel(level int) int64 {
	return defaultCurve.XPRequiredForLevel(level)
}

// LevelForTotalXP returns the highest level L such that totalXP >= XPRequiredForLevel(L).
func LevelForTotalXP(totalXP int64) int {
	return defaultCurve.LevelForTotalXP(totalXP)
}

// LevelForXP accepts a possibly fractional total. NaN, infinities and
// negative values map to level 0.
func LevelForXP(xp float64) int {
	if math.IsNaN(xp) || math.IsInf(xp, 0) || xp <= 0 {
		return 0
	}
	if xp >= math.MaxInt64 {
		return MaxLevel
	}
	return defaultCurve.LevelForTotalXP(int64(math.Floor(xp)))
}

func ProgressFor(totalXP int64) Progress {
	return defaultCurve.Progress(totalXP)
}

// Milestones are the levels that unlock enhanced rewards. Ascending.
var Milestones = []int{5, 10, 15, 20, 25, 30, 40, 50, 75, 100}

func IsMilestone(level int) bool {
	i := sort.SearchInts(Milestones, level)
	return i < len(Milestones) && Milestones[i] == level
}

// NextMilestone returns the first milestone strictly above level.
func NextMilestone(level int) (int, bool) {
	i := sort.SearchInts(Milestones, level+1)
	if i >= len(Milestones) {
		return 0, false
	}
	return Milestones[i], true
}

// LevelUp is the presentation metadata attached to a level-up.
type LevelUp struct {
	Level       int      `json:"level"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Rewards     []string `json:"rewards"`
	IsMilestone bool     `json:"isMilestone"`
}

var titles = []struct {
	upTo  int
	title string
}{
	{4, "Newcomer"},
	{9, "Explorer"},
	{14, "Pathfinder"},
	{19, "Achiever"},
	{24, "Trailblazer"},
	{29, "Veteran"},
	{39, "Expert"},
	{49, "Elite"},
	{74, "Master"},
	{99, "Grandmaster"},
}

// TitleFor returns the rank title shown for a level.
func TitleFor(level int) string {
	for _, t := range titles {
		if level <= t.upTo {
			return t.title
		}
	}
	return "Legend"
}

// LevelUpInfo builds the level-up metadata for the level just reached.
func LevelUpInfo(level int) LevelUp {
	if level < 0 {
		level = 0
	}
	info := LevelUp{
		Level:       level,
		Title:       TitleFor(level),
		IsMilestone: IsMilestone(level),
	}
	phase := PhaseFor(level)
	info.Description = fmt.Sprintf("You reached level %d (%s phase).", level, phase.Name)
	info.Rewards = []string{fmt.Sprintf("Title: %s", info.Title)}
	if info.IsMilestone {
		info.Description = fmt.Sprintf("Milestone! You reached level %d and earned the %s rank.", level, info.Title)
		info.Rewards = append(info.Rewards,
			fmt.Sprintf("Milestone badge: level %d", level),
			"Celebration unlocked",
		)
	}
	if next, ok := NextMilestone(level); ok {
		info.Rewards = append(info.Rewards, fmt.Sprintf("Next milestone at level %d", next))
	}
	return info
}
