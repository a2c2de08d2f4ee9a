package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"selfrise/internal/ui"
)

const Version = "0.2.0"

type globalFlags struct {
	configPath string
	dbPath     string
	driver     string
	logLevel   string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:           "xp",
	Short:         "SelfRise XP ledger",
	Long:          "xp grants and revokes experience points, tracks levels and milestones, and shows your progress.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default $SELFRISE_CONFIG or ~/.selfrise.yaml)")
	pf.StringVar(&flags.dbPath, "db", "", "Database path (default $SELFRISE_DB or ~/.selfrise.db)")
	pf.StringVar(&flags.driver, "driver", "", "Storage driver (sqlite|badger|memory)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newGrantCmd(),
		newRevokeCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newLevelsCmd(),
		newMultiplierCmd(),
		newStatsCmd(),
		newResetCmd(),
		newConfigCmd(),
		newBoardCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Bad.Render(ui.IconError+" "+err.Error()))
		os.Exit(1)
	}
}
