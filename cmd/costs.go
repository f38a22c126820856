package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs <run-id>",
	Short: "Show the cost breakdown of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "costs")
		}
		costUSD, cacheHits, err := st.RunCost(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "costs")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
		_, _ = fmt.Fprintf(w, "Region:\t%s\n", run.Region.Name)
		_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
		_, _ = fmt.Fprintf(w, "Recorded cost:\t$%.4f\n", costUSD)
		if run.Result != nil {
			_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", run.Result.CacheHits)
		} else {
			_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", cacheHits)
		}

		if run.Result != nil && len(run.Result.Phases) > 0 {
			_, _ = fmt.Fprintln(w)
			_, _ = fmt.Fprintln(w, "PHASE\tSTATUS\tDURATION\tITEMS\tCOST")
			for _, p := range run.Result.Phases {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\n",
					p.Name, p.Status, formatDuration(p.Duration), p.Items, p.CostUSD)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(costsCmd)
}
