package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"selfrise/internal/batch"
	"selfrise/internal/engine"
	"selfrise/internal/ui"
)

func parseAmountSource(args []string) (int64, engine.Source, error) {
	if len(args) != 2 {
		return 0, "", errors.New("amount and source are required")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", errors.New("amount must be an integer")
	}
	source, err := engine.ParseSource(args[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w (one of: %s)", err, sourceNames())
	}
	return amount, source, nil
}

func sourceNames() string {
	names := make([]string, 0, len(engine.Sources))
	for _, s := range engine.Sources {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func newGrantCmd() *cobra.Command {
	var sourceID string
	var desc string
	var skipLimits bool
	var quiet bool
	var batched bool

	cmd := &cobra.Command{
		Use:   "grant <amount> <source>",
		Short: "Grant XP",
		Args: func(cmd *cobra.Command, args []string) error {
			_, _, err := parseAmountSource(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, source, _ := parseAmountSource(args)
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			req := engine.GrantRequest{
				Amount:           amount,
				Source:           source,
				SourceID:         sourceID,
				Description:      desc,
				SkipLimits:       skipLimits,
				SkipNotification: quiet,
			}
			out := cmd.OutOrStdout()
			if !batched {
				res, err := a.svc.Grant(ctx, req)
				if err != nil {
					return err
				}
				printResult(out, res)
				return nil
			}

			r, err := a.batcher.Grant(ctx, batch.Request{GrantRequest: req})
			if err != nil {
				return err
			}
			if r.Batched {
				fmt.Fprintf(out, "%s queued in batch %s: level %d if committed\n",
					ui.Muted.Render(ui.IconInfo), r.BatchID, r.Optimistic.Level)
			}
			if _, err := a.batcher.Flush(ctx); err != nil {
				return err
			}
			res, err := r.Wait(ctx)
			if err != nil {
				return err
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "id", "", "Source entity id (habit, goal, entry)")
	cmd.Flags().StringVar(&desc, "desc", "", "Description")
	cmd.Flags().BoolVar(&skipLimits, "skip-limits", false, "Bypass daily caps and the minimum interval")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not notify observers")
	cmd.Flags().BoolVar(&batched, "batch", false, "Route through the batching coalescer")

	return cmd
}

func printResult(w io.Writer, res *engine.TransactionResult) {
	line := fmt.Sprintf("%s %s %s", ui.IconXP, ui.SignedXP(res.XPGained), ui.Muted.Render(fmt.Sprintf("(total %d)", res.TotalXP)))
	if res.Clipped {
		line += " " + ui.Warn.Render("clipped")
	}
	if res.Multiplier != 0 && res.Multiplier != 1 {
		line += " " + ui.Gold.Render(fmt.Sprintf("x%.2g", res.Multiplier))
	}
	fmt.Fprintln(w, line)

	switch {
	case res.LeveledUp && res.LevelUp != nil:
		badge := ui.BadgeLevelUp
		if res.MilestoneReached {
			badge = ui.BadgeMilestone
		}
		fmt.Fprintf(w, "%s %s level %d → %d: %s\n", ui.IconTrophy, badge, res.PreviousLevel, res.NewLevel, res.LevelUp.Title)
		fmt.Fprintln(w, ui.Muted.Render(res.LevelUp.Description))
		for _, r := range res.LevelUp.Rewards {
			fmt.Fprintf(w, "- %s\n", r)
		}
	case res.LeveledDown:
		fmt.Fprintln(w, ui.Warn.Render(fmt.Sprintf("level %d → %d", res.PreviousLevel, res.NewLevel)))
	}
	for _, w2 := range res.Warnings {
		fmt.Fprintln(w, ui.Warn.Render(ui.IconWarn+" "+w2))
	}
}
