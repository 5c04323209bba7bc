package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
	"github.com/sells-group/gmprocess-cli/internal/metrics/reduction"
)

var reduceCmd = &cobra.Command{
	Use:   "reduce [file.csv]",
	Short: "Smooth spectra and pick the value at a period",
	Long: `Smooths each channel spectrum and picks its value at 1/period.

Input has a freqs column plus one column per channel. The file defaults to
stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := smoothSelectParams(cmd)
		if err != nil {
			return err
		}
		sel, err := reduction.NewSmoothSelect(params)
		if err != nil {
			return err
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		f, err := openInput(path)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		series, err := readSpectra(cmd.Context(), f)
		if err != nil {
			return err
		}
		picks, err := sel.Reduce(series)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), picks)
		}
		formatPicks(cmd, picks)
		return nil
	},
}

func init() {
	addSmoothSelectFlags(reduceCmd)
	reduceCmd.Flags().Bool("json", false, "print the picks as JSON")
	rootCmd.AddCommand(reduceCmd)
}

func addSmoothSelectFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("period", 0, "period in seconds (required)")
	cmd.Flags().Float64("bandwidth", 0, "smoothing bandwidth (required)")
	cmd.Flags().String("smoothing", "", "smoothing method, e.g. konno_ohmachi (required)")
}

// smoothSelectParams leaves unset flags nil so the reducer reports the
// missing field.
func smoothSelectParams(cmd *cobra.Command) (reduction.SmoothSelectParams, error) {
	var p reduction.SmoothSelectParams
	f := cmd.Flags()
	if f.Changed("period") {
		v, err := f.GetFloat64("period")
		if err != nil {
			return p, err
		}
		p.Period = &v
	}
	if f.Changed("bandwidth") {
		v, err := f.GetFloat64("bandwidth")
		if err != nil {
			return p, err
		}
		p.Bandwidth = &v
	}
	p.Smoothing, _ = f.GetString("smoothing")
	return p, nil
}

func formatPicks(cmd *cobra.Command, picks map[string]float64) {
	keys := make([]string, 0, len(picks))
	for k := range picks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := cmd.OutOrStdout()
	for _, k := range keys {
		name := k
		if k == metrics.CombinedKey {
			name = "value"
		}
		_, _ = fmt.Fprintf(out, "%s\t%g\n", name, picks[k])
	}
}
