package root

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"selfrise/internal/level"
	"selfrise/internal/ui"
)

func newLevelsCmd() *cobra.Command {
	var from int
	var to int

	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the XP needed for each level",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from < 1 || to < from || to > level.MaxLevel {
				return fmt.Errorf("need 1 <= from <= to <= %d", level.MaxLevel)
			}
			if to-from > 500 {
				return errors.New("range too large")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconScroll, "Level curve"))
			fmt.Fprintf(out, "%-6s %-13s %12s %10s  %s\n", "level", "phase", "total xp", "step", "title")
			for l := from; l <= to; l++ {
				step := level.XPRequiredForLevel(l) - level.XPRequiredForLevel(l-1)
				line := fmt.Sprintf("%-6d %-13s %12d %10d  %s", l, level.PhaseFor(l).Name, level.XPRequiredForLevel(l), step, level.TitleFor(l))
				if level.IsMilestone(l) {
					line = ui.Gold.Render(line + " ★")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&from, "from", 1, "First level")
	cmd.Flags().IntVar(&to, "to", 20, "Last level")

	return cmd
}
