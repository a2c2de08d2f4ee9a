package root

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"selfrise/internal/ui"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store diagnostics and ledger metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			out := cmd.OutOrStdout()

			// Touch the store so the counters describe at least one operation.
			counter, err := a.store.ReadCounter(ctx, "total-xp")
			if err != nil {
				return err
			}

			st := a.store.Stats()
			fmt.Fprintln(out, ui.Heading(ui.IconInfo, "Store"))
			fmt.Fprintln(out, ui.LabelValue("Driver", a.cfg.Storage.Driver))
			fmt.Fprintln(out, ui.LabelValue("Total XP", counter))
			fmt.Fprintln(out, ui.LabelValue("Operations", st.Operations))
			fmt.Fprintln(out, ui.LabelValue("Queued", st.Queued))
			fmt.Fprintln(out, ui.LabelValue("Retries", st.Retries))
			fmt.Fprintln(out, ui.LabelValue("Failures", st.Failures))
			fmt.Fprintln(out, ui.LabelValue("Live locks", st.LiveLocks))
			fmt.Fprintln(out, "")

			families, err := prometheus.DefaultGatherer.Gather()
			if err != nil {
				return fmt.Errorf("gather metrics: %w", err)
			}
			fmt.Fprintln(out, ui.H2.Render("📈 Metrics"))
			var lines []string
			for _, mf := range families {
				if !strings.HasPrefix(mf.GetName(), "selfrise_") {
					continue
				}
				for _, m := range mf.GetMetric() {
					var labels []string
					for _, lp := range m.GetLabel() {
						labels = append(labels, lp.GetName()+"="+lp.GetValue())
					}
					var v float64
					switch {
					case m.GetCounter() != nil:
						v = m.GetCounter().GetValue()
					case m.GetGauge() != nil:
						v = m.GetGauge().GetValue()
					case m.GetHistogram() != nil:
						v = float64(m.GetHistogram().GetSampleCount())
					}
					lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
				}
			}
			sort.Strings(lines)
			if len(lines) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("(no samples in this process)"))
			}
			for _, l := range lines {
				fmt.Fprintln(out, "- "+l)
			}
			return nil
		},
	}

	return cmd
}
