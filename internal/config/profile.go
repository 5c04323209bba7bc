package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment selects which processing profile file is read.
type Environment string

const (
	// EnvTest selects the profile used by test runs.
	EnvTest Environment = "test"
	// EnvProduction selects the installed production profile.
	EnvProduction Environment = "production"
)

// Profile file names under the profile data directory.
const (
	ProfileFileTest       = "config_test.yml"
	ProfileFileProduction = "config_production.yml"
)

// ErrSectionNotFound is returned by GetProfile when the requested section is absent.
var ErrSectionNotFound = errors.New("config section not found")

// ParseEnvironment converts a string into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvTest:
		return EnvTest, nil
	case EnvProduction, "":
		return EnvProduction, nil
	default:
		return "", eris.Errorf("unknown environment: %q (valid: test, production)", s)
	}
}

// FileName returns the profile file name for the environment.
func (e Environment) FileName() string {
	if e == EnvTest {
		return ProfileFileTest
	}
	return ProfileFileProduction
}

// ProfilePath returns the profile file path for env under dataDir.
func ProfilePath(env Environment, dataDir string) (string, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return "", eris.Wrapf(err, "config: resolve data dir %s", dataDir)
	}
	return filepath.Join(abs, env.FileName()), nil
}

// GetProfile reads the processing profile for env from dataDir. The file is
// re-read on every call.
//
// A missing file is logged and yields a nil map with no error. When section is
// non-empty only that section is returned, and an absent section is an error
// wrapping ErrSectionNotFound.
func GetProfile(env Environment, dataDir, section string) (map[string]any, error) {
	path, err := ProfilePath(env, dataDir)
	if err != nil {
		return nil, err
	}

	profile, err := readProfile(path)
	if err != nil {
		return nil, err
	}

	if section == "" {
		return profile, nil
	}

	raw, ok := profile[section]
	if !ok {
		return nil, eris.Wrapf(ErrSectionNotFound, "section %s not found in config file", section)
	}
	sub, ok := raw.(map[string]any)
	if !ok {
		return nil, eris.Errorf("config: section %s is not a mapping", section)
	}
	return sub, nil
}

func readProfile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("missing config file, run 'gmprocess config init' to install the default config file",
			zap.String("path", path),
		)
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "config: read profile %s", path)
	}

	var profile map[string]any
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, eris.Wrapf(err, "config: parse profile %s", path)
	}
	return profile, nil
}

// WriteProfile writes profile as YAML to the env profile path under dataDir,
// creating the directory if needed.
func WriteProfile(env Environment, dataDir string, profile map[string]any) (string, error) {
	path, err := ProfilePath(env, dataDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "config: create data dir %s", dataDir)
	}
	data, err := yaml.Marshal(profile)
	if err != nil {
		return "", eris.Wrap(err, "config: marshal profile")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "config: write profile %s", path)
	}
	return path, nil
}
