package root

import (
	"context"

	"github.com/spf13/cobra"

	"selfrise/internal/engine"
)

func newRevokeCmd() *cobra.Command {
	var sourceID string
	var desc string

	cmd := &cobra.Command{
		Use:   "revoke <amount> <source>",
		Short: "Revoke XP (the total never drops below zero)",
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

			res, err := a.svc.Revoke(ctx, engine.RevokeRequest{
				Amount:      amount,
				Source:      source,
				SourceID:    sourceID,
				Description: desc,
			})
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "id", "", "Source entity id")
	cmd.Flags().StringVar(&desc, "desc", "", "Description")

	return cmd
}
