package root

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"selfrise/internal/ui"
)

func newMultiplierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multiplier",
		Short: "Manage the active XP multiplier",
	}
	cmd.AddCommand(newMultiplierSetCmd(), newMultiplierClearCmd(), newMultiplierShowCmd())
	return cmd
}

func newMultiplierSetCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "set <factor> <duration>",
		Short: "Activate a multiplier, e.g. set 2 24h",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("factor and duration are required")
			}
			if _, err := strconv.ParseFloat(args[0], 64); err != nil {
				return errors.New("factor must be a number")
			}
			if _, err := time.ParseDuration(args[1]); err != nil {
				return errors.New("duration must look like 30m or 24h")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			factor, _ := strconv.ParseFloat(args[0], 64)
			duration, _ := time.ParseDuration(args[1])
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := a.svc.ActivateMultiplier(ctx, factor, duration, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s until %s\n", ui.IconMultiplier,
				ui.Gold.Render(fmt.Sprintf("x%.2g", m.Factor)), m.ExpiresAt.Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the multiplier is active")

	return cmd
}

func newMultiplierClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the active multiplier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.svc.ClearMultiplier(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Muted.Render("multiplier cleared"))
			return nil
		},
	}
}

func newMultiplierShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active multiplier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := a.svc.ActiveMultiplier(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if m == nil {
				fmt.Fprintln(out, ui.Muted.Render("no active multiplier"))
				return nil
			}
			fmt.Fprintln(out, ui.LabelValue("Factor", fmt.Sprintf("x%.2g", m.Factor)))
			fmt.Fprintln(out, ui.LabelValue("Since", m.ActivatedAt.Format("2006-01-02 15:04")))
			fmt.Fprintln(out, ui.LabelValue("Until", m.ExpiresAt.Format("2006-01-02 15:04")))
			if m.Reason != "" {
				fmt.Fprintln(out, ui.LabelValue("Reason", m.Reason))
			}
			return nil
		},
	}
}
