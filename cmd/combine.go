package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
	"github.com/sells-group/gmprocess-cli/internal/metrics/combination"
)

var combineCmd = &cobra.Command{
	Use:   "combine [file.csv]",
	Short: "Combine horizontal components",
	Long: `Combines two horizontal components into one series.

Time domain input has h1 and h2 columns. Frequency domain input has a freqs
column plus one column per channel. The file defaults to stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, _ := cmd.Flags().GetString("method")
		domain, _ := cmd.Flags().GetString("domain")
		asJSON, _ := cmd.Flags().GetBool("json")

		c, err := combination.Lookup(method)
		if err != nil {
			return err
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		in, err := readCombineInput(cmd, path, domain)
		if err != nil {
			return err
		}

		res, err := c.Combine(in)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		formatResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	combineCmd.Flags().String("method", "arithmetic_mean", fmt.Sprintf("combination method %v", combination.Names()))
	combineCmd.Flags().String("domain", "time", "input domain (time, frequency)")
	combineCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(combineCmd)
}

func readCombineInput(cmd *cobra.Command, path, domain string) (metrics.Input, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	switch domain {
	case "time":
		return readTimePair(cmd.Context(), f)
	case "frequency":
		return readSpectra(cmd.Context(), f)
	default:
		return nil, eris.Errorf("combine: unknown domain %q (valid: time, frequency)", domain)
	}
}

// formatResult writes the result as CSV, with the frequency axis first when
// present.
func formatResult(out io.Writer, res metrics.Result) {
	keys := make([]string, 0, len(res.Values))
	for k := range res.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(res.Freqs) > 0 {
		_, _ = fmt.Fprint(out, "freqs,")
	}
	for i, k := range keys {
		if i > 0 {
			_, _ = fmt.Fprint(out, ",")
		}
		if k == metrics.CombinedKey {
			k = "combined"
		}
		_, _ = fmt.Fprint(out, k)
	}
	_, _ = fmt.Fprintln(out)

	n := 0
	if len(keys) > 0 {
		n = len(res.Values[keys[0]])
	}
	for row := 0; row < n; row++ {
		if len(res.Freqs) > 0 {
			_, _ = fmt.Fprintf(out, "%g,", res.Freqs[row])
		}
		for i, k := range keys {
			if i > 0 {
				_, _ = fmt.Fprint(out, ",")
			}
			_, _ = fmt.Fprintf(out, "%g", res.Values[k][row])
		}
		_, _ = fmt.Fprintln(out)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
