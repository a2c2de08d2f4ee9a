package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"selfrise/internal/engine"
	"selfrise/internal/level"
	"selfrise/internal/ui"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show level, progress and today's XP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			out := cmd.OutOrStdout()

			total, err := a.svc.TotalXP(ctx)
			if err != nil {
				return err
			}
			p := a.svc.Curve().Progress(total)

			fmt.Fprintln(out, ui.Heading(ui.IconSparkle, "Progress"))
			fmt.Fprintln(out, ui.LabelValue("Level", fmt.Sprintf("%d (%s, %s phase)", p.Level, level.TitleFor(p.Level), level.PhaseFor(p.Level).Name)))
			fmt.Fprintln(out, ui.LabelValue("Total XP", fmt.Sprintf("%d (next level at %d, %d to go)", total, p.XPRequiredForNextLevel, p.XPToNextLevel)))
			fmt.Fprintf(out, "%s %.1f%%\n", ui.ProgressBar(p.XPInCurrentLevel, p.XPRequiredForNextLevel-p.XPRequiredForCurrentLevel, 30), p.ProgressPercent)
			if next, ok := level.NextMilestone(p.Level); ok {
				fmt.Fprintln(out, ui.LabelValue("Next milestone", fmt.Sprintf("level %d at %d XP", next, level.XPRequiredForLevel(next))))
			}
			if last, err := a.svc.LastActivityDate(ctx); err == nil && last != "" {
				fmt.Fprintln(out, ui.LabelValue("Last activity", last))
			}

			m, err := a.svc.ActiveMultiplier(ctx)
			if err != nil {
				return err
			}
			if m != nil {
				fmt.Fprintln(out, ui.LabelValue("Multiplier", ui.Gold.Render(fmt.Sprintf("x%.2g until %s (%s)", m.Factor, m.ExpiresAt.Format("2006-01-02 15:04"), m.Reason))))
			}
			fmt.Fprintln(out, "")

			daily, err := a.svc.DailyTracking(ctx)
			if err != nil {
				return err
			}
			limits := a.svc.Limits()
			fmt.Fprintln(out, ui.H2.Render("📅 Today "+daily.Date))
			today := fmt.Sprintf("%d XP over %d transactions", daily.TotalXP, daily.TransactionCount)
			if limits.GlobalDailyCap > 0 {
				today += ui.Muted.Render(fmt.Sprintf(" (cap %d)", limits.GlobalDailyCap))
			}
			fmt.Fprintln(out, "- "+today)
			for _, s := range engine.Sources {
				got := daily.XPBySource[s]
				if got == 0 {
					continue
				}
				line := fmt.Sprintf("- %s %s: %d", ui.SourceIcon(string(s)), s.Label(), got)
				if c := limits.For(s).DailyCap; c > 0 {
					line += ui.Muted.Render(fmt.Sprintf(" / %d", c))
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, "")

			by, err := a.svc.XPBySource(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.H2.Render("📊 Lifetime by source"))
			for _, s := range engine.Sources {
				if by[s] == 0 {
					continue
				}
				fmt.Fprintf(out, "- %s %s: %d\n", ui.SourceIcon(string(s)), s.Label(), by[s])
			}
			return nil
		},
	}

	return cmd
}
