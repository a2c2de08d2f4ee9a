package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"selfrise/internal/engine"
	"selfrise/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var date string
	var levelUps bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent XP transactions or level-ups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			out := cmd.OutOrStdout()

			if levelUps {
				events, err := a.svc.LevelUpHistory(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ui.Heading(ui.IconTrophy, "Level-ups"))
				if len(events) == 0 {
					fmt.Fprintln(out, ui.Muted.Render("(none yet)"))
				}
				for _, e := range tail(events, limit) {
					mark := ""
					if e.IsMilestone {
						mark = " " + ui.BadgeMilestone
					}
					fmt.Fprintf(out, "- %s level %d → %d at %d XP (%s)%s\n",
						e.Timestamp.Format("2006-01-02 15:04"), e.PreviousLevel, e.NewLevel, e.TotalXP, e.Source, mark)
				}
				return nil
			}

			var txs []engine.XPTransaction
			if date != "" {
				txs, err = a.svc.TransactionsForDate(ctx, date)
			} else {
				txs, err = a.svc.Transactions(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Heading(ui.IconScroll, "Transactions"))
			if len(txs) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("(none)"))
			}
			for _, tx := range tail(txs, limit) {
				fmt.Fprintf(out, "- %s %s %s %s\n",
					tx.CreatedAt.Format("2006-01-02 15:04:05"), ui.SourceIcon(string(tx.Source)), ui.SignedXP(tx.Amount), tx.Description)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show the last n entries (0 for all)")
	cmd.Flags().StringVar(&date, "date", "", "Only transactions from this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&levelUps, "levels", false, "Show level-up history instead")

	return cmd
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
