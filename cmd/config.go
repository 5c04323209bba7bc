package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gmprocess-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and install processing profiles",
}

// -- config show --

var configShowCmd = &cobra.Command{
	Use:   "show [section]",
	Short: "Print the active processing profile, optionally one section",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(cfg.Profile.Environment)
		if err != nil {
			return err
		}
		section := ""
		if len(args) == 1 {
			section = args[0]
		}

		profile, err := config.GetProfile(env, cfg.Profile.DataDir, section)
		if err != nil {
			return err
		}

		overlays, _ := cmd.Flags().GetStringSlice("overlay")
		merged, err := mergeOverlays(profile, overlays)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), merged)
	},
}

// -- config init --

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Install the default processing profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := config.ParseEnvironment(cfg.Profile.Environment)
		if err != nil {
			return err
		}
		path, err := config.ProfilePath(env, cfg.Profile.DataDir)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return eris.Errorf("config init: %s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "config init: stat %s", path)
		}

		written, err := config.WriteProfile(env, cfg.Profile.DataDir, defaultProfile(cfg))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringSlice("overlay", nil, "YAML files merged over the profile, later files win")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing profile")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// mergeOverlays merges each overlay file over base in order.
func mergeOverlays(base map[string]any, paths []string) (map[string]any, error) {
	maps := []map[string]any{base}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "config: read overlay %s", p)
		}
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrapf(err, "config: parse overlay %s", p)
		}
		maps = append(maps, m)
	}
	return config.MergeMaps(maps), nil
}

// defaultProfile builds the installed profile from the configured search
// tolerances.
func defaultProfile(c *config.Config) map[string]any {
	return map[string]any{
		"fetchers": map[string]any{
			"GeoNetFetcher": map[string]any{
				"radius":       c.Search.RadiusKM,
				"dt":           c.Search.TimeWindowSecs,
				"ddepth":       c.Search.DepthWindowKM,
				"dmag":         c.Search.MagnitudeWindow,
				"max_attempts": c.GeoNet.MaxAttempts,
			},
		},
		"metrics": map[string]any{
			"components_and_types": map[string]any{
				"arithmetic_mean": []string{"pga", "pgv"},
				"geometric_mean":  []string{"pga", "pgv", "sa"},
				"quadratic_mean":  []string{"fas"},
			},
			"type_parameters": map[string]any{
				"fas": map[string]any{
					"smoothing_method":    "konno_ohmachi",
					"smoothing_parameter": 20.0,
				},
			},
		},
	}
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}
