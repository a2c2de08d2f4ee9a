package root

import (
	"context"

	"github.com/spf13/cobra"

	"selfrise/internal/tui"
)

func newBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Interactive XP board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return tui.RunBoard(ctx, a.svc, a.batcher, a.bus, cmd.OutOrStdout())
		},
	}
}
