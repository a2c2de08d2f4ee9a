package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SelfRise theme (CLI + TUI).

const (
	IconXP         = "⚡"
	IconSparkle    = "✨"
	IconPlus       = "➕"
	IconMinus      = "➖"
	IconTrophy     = "🏆"
	IconMilestone  = "🎉"
	IconInfo       = "ℹ️"
	IconWarn       = "⚠️"
	IconError      = "🧨"
	IconScroll     = "📜"
	IconHabit      = "🔁"
	IconJournal    = "📓"
	IconGoal       = "🎯"
	IconChallenge  = "🗓️"
	IconMultiplier = "✖️"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
	cGold    = lipgloss.Color("220") // gold
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)

	Panel       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
	SelectedRow = lipgloss.NewStyle().Bold(true).Foreground(cGold).Background(cPrimary)

	BadgeLevelUp   = lipgloss.NewStyle().Bold(true).Foreground(cGold).Render("LEVEL UP")
	BadgeMilestone = lipgloss.NewStyle().Bold(true).Foreground(cAccent).Render("MILESTONE")
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// SignedXP renders +N XP in green and -N XP in red.
func SignedXP(amount int64) string {
	switch {
	case amount > 0:
		return Good.Render(fmt.Sprintf("+%d XP", amount))
	case amount < 0:
		return Bad.Render(fmt.Sprintf("%d XP", amount))
	default:
		return Muted.Render("0 XP")
	}
}

// SourceIcon picks an icon from the source family (habit-*, journal-*, ...).
func SourceIcon(source string) string {
	family, _, _ := strings.Cut(source, "-")
	switch family {
	case "habit":
		return IconHabit
	case "journal":
		return IconJournal
	case "goal":
		return IconGoal
	case "achievement":
		return IconTrophy
	case "monthly":
		return IconChallenge
	case "multiplier":
		return IconMultiplier
	default:
		return IconXP
	}
}

// ProgressBar draws value/total as a fixed-width bar.
func ProgressBar(value, total int64, width int) string {
	if total <= 0 {
		total = 1
	}
	if width <= 3 {
		width = 3
	}
	if value < 0 {
		value = 0
	}
	if value > total {
		value = total
	}
	filled := int(float64(value) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
