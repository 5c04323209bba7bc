package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testProfile = `
fetchers:
  GeoNetFetcher:
    radius: 100
    dt: 16
processing:
  - detrend:
      detrending_method: demean
`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestMergeMaps_LaterWinsOnScalars(t *testing.T) {
	a := map[string]any{"x": 1, "y": "keep"}
	b := map[string]any{"x": 2}

	got := MergeMaps([]map[string]any{a, b})
	assert.Equal(t, map[string]any{"x": 2, "y": "keep"}, got)
}

func TestMergeMaps_NestedMerge(t *testing.T) {
	a := map[string]any{
		"fetchers": map[string]any{
			"geonet": map[string]any{"radius": 100, "dt": 16},
		},
	}
	b := map[string]any{
		"fetchers": map[string]any{
			"geonet": map[string]any{"dt": 30},
			"knet":   map[string]any{"radius": 50},
		},
	}

	got := MergeMaps([]map[string]any{a, b})
	want := map[string]any{
		"fetchers": map[string]any{
			"geonet": map[string]any{"radius": 100, "dt": 30},
			"knet":   map[string]any{"radius": 50},
		},
	}
	assert.Equal(t, want, got)
}

func TestMergeMaps_MapReplacesScalarAndViceVersa(t *testing.T) {
	a := map[string]any{"a": 1, "b": map[string]any{"c": 1}}
	b := map[string]any{"a": map[string]any{"z": true}, "b": "flat"}

	got := MergeMaps([]map[string]any{a, b})
	assert.Equal(t, map[string]any{"a": map[string]any{"z": true}, "b": "flat"}, got)
}

func TestMergeMaps_SingleIsCopy(t *testing.T) {
	a := map[string]any{"n": map[string]any{"k": 1}}

	got := MergeMaps([]map[string]any{a})
	assert.Equal(t, a, got)

	got["n"].(map[string]any)["k"] = 99
	assert.Equal(t, 1, a["n"].(map[string]any)["k"])
}

func TestMergeMaps_DoesNotMutateInputs(t *testing.T) {
	a := map[string]any{"n": map[string]any{"k": 1}}
	b := map[string]any{"n": map[string]any{"k": 2, "j": 3}}

	_ = MergeMaps([]map[string]any{a, b})
	assert.Equal(t, map[string]any{"k": 1}, a["n"])
	assert.Equal(t, map[string]any{"k": 2, "j": 3}, b["n"])
}

func TestMergeMaps_Empty(t *testing.T) {
	assert.Empty(t, MergeMaps(nil))
}

func TestMergeMaps_Precedence(t *testing.T) {
	got := MergeMaps([]map[string]any{{"v": 1}, {"v": 2}, {"v": 3}})
	assert.Equal(t, 3, got["v"])
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{in: "test", want: EnvTest},
		{in: "production", want: EnvProduction},
		{in: "", want: EnvProduction},
		{in: "staging", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetProfile_SelectsFileByEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, "source: test\n")
	writeProfile(t, dir, ProfileFileProduction, "source: production\n")

	got, err := GetProfile(EnvTest, dir, "")
	require.NoError(t, err)
	assert.Equal(t, "test", got["source"])

	got, err = GetProfile(EnvProduction, dir, "")
	require.NoError(t, err)
	assert.Equal(t, "production", got["source"])
}

func TestGetProfile_Section(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, testProfile)

	got, err := GetProfile(EnvTest, dir, "fetchers")
	require.NoError(t, err)
	geonet, ok := got["GeoNetFetcher"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 100, geonet["radius"])
}

func TestGetProfile_MissingSection(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, testProfile)

	_, err := GetProfile(EnvTest, dir, "pickers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSectionNotFound))
	assert.Contains(t, err.Error(), "pickers")
}

func TestGetProfile_SectionNotMapping(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, testProfile)

	_, err := GetProfile(EnvTest, dir, "processing")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSectionNotFound))
}

func TestGetProfile_MissingFileIsNotAnError(t *testing.T) {
	got, err := GetProfile(EnvProduction, t.TempDir(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetProfile_MissingFileWithSection(t *testing.T) {
	_, err := GetProfile(EnvProduction, t.TempDir(), "fetchers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSectionNotFound))
}

func TestGetProfile_ReloadsOnEveryCall(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, "v: 1\n")

	got, err := GetProfile(EnvTest, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got["v"])

	writeProfile(t, dir, ProfileFileTest, "v: 2\n")
	got, err = GetProfile(EnvTest, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, got["v"])
}

func TestGetProfile_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, ProfileFileTest, "a: [unterminated\n")

	_, err := GetProfile(EnvTest, dir, "")
	assert.Error(t, err)
}

func TestWriteProfile_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	path, err := WriteProfile(EnvTest, dir, map[string]any{"fetchers": map[string]any{"radius": 80}})
	require.NoError(t, err)
	assert.Equal(t, ProfileFileTest, filepath.Base(path))

	got, err := GetProfile(EnvTest, dir, "fetchers")
	require.NoError(t, err)
	assert.Equal(t, 80, got["radius"])
}
