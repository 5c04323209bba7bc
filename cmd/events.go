package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/source"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Find catalog events matching an origin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		origin, tol, err := originFromFlags(cmd)
		if err != nil {
			return err
		}
		agency, _ := cmd.Flags().GetString("agency")
		noSolve, _ := cmd.Flags().GetBool("no-solve")

		f, err := source.NewDefaultRegistry(cfg, nil).Open(agency, origin, tol)
		if err != nil {
			return err
		}
		groups, err := f.MatchingEvents(cmd.Context(), !noSolve)
		if err != nil {
			return eris.Wrap(err, "events")
		}

		events := source.Flatten(groups)
		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No matching events found.")
			return nil
		}
		formatEvents(os.Stdout, origin, events)
		return nil
	},
}

func init() {
	addOriginFlags(eventsCmd)
	rootCmd.AddCommand(eventsCmd)
}

// formatEvents writes one row per event with its offsets from origin.
func formatEvents(out io.Writer, origin model.Origin, events []model.CandidateEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIME\tLAT\tLON\tDEPTH\tMAG\tDIST_KM\tDT_S")
	_, _ = fmt.Fprintln(w, "--\t----\t---\t---\t-----\t---\t-------\t----")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			ev.ID,
			ev.Time.Format("2006-01-02 15:04:05.000"),
			ev.Latitude,
			ev.Longitude,
			ev.Depth,
			ev.Magnitude,
			origin.DistanceKM(ev),
			origin.TimeOffset(ev).Seconds(),
		)
	}
	_ = w.Flush()
}
