package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/source"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Match an origin and download its strong-motion records",
	Long:  "Matches the origin against the agency catalog, downloads and parses the records of the best match, and records the run in the retrieval log.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if rawDir, _ := cmd.Flags().GetString("raw-dir"); rawDir != "" {
			cfg.GeoNet.RawDir = rawDir
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		origin, tol, err := originFromFlags(cmd)
		if err != nil {
			return err
		}
		agency, _ := cmd.Flags().GetString("agency")
		noSolve, _ := cmd.Flags().GetBool("no-solve")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.New()
		f, err := source.NewDefaultRegistry(cfg, metrics).Open(agency, origin, tol)
		if err != nil {
			return err
		}

		out, err := source.NewRunner(st, metrics).Run(ctx, f, !noSolve)
		if err != nil {
			return err
		}
		formatFetch(os.Stdout, out.Run, out.Collection)
		return nil
	},
}

func init() {
	addOriginFlags(fetchCmd)
	fetchCmd.Flags().String("raw-dir", "", "keep downloaded files in this directory")
	rootCmd.AddCommand(fetchCmd)
}

// formatFetch writes the run summary followed by one row per trace.
func formatFetch(out io.Writer, run *model.Run, coll *waveform.Collection) {
	_, _ = fmt.Fprintf(out, "Run %s: %s (%d events, %d files, %d traces)\n",
		truncateID(run.ID), run.Status, run.EventCount, run.FileCount, run.TraceCount)
	if run.Event != nil {
		_, _ = fmt.Fprintf(out, "Event %s at %s M%.1f\n",
			run.Event.ID, run.Event.Time.Format("2006-01-02 15:04:05"), run.Event.Magnitude)
	}
	if coll == nil || coll.Len() == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TRACE\tSTART\tRATE_HZ\tSAMPLES\tDURATION")
	for _, tr := range coll.Traces() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f\t%d\t%s\n",
			tr.ID(),
			tr.StartTime.Format("2006-01-02 15:04:05"),
			tr.SamplingRate,
			tr.Len(),
			tr.Duration(),
		)
	}
	_ = w.Flush()
}
