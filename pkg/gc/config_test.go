package gc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/gclib/pkg/gc"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadConfigReturnsDefaultsWhenNothingElsePresent(t *testing.T) {
	t.Parallel()

	cfg, _, err := gc.LoadConfig(t.TempDir(), "", gc.Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, gc.DefaultConfig(), cfg)
}

func TestLoadConfigProjectFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, gc.ConfigFileName), `{"buckets": 2048}`)

	cfg, sources, err := gc.LoadConfig(dir, "", gc.Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.Buckets)
	assert.Equal(t, gc.DefaultConfig().Generations, cfg.Generations)
	assert.NotEmpty(t, sources.Project)
}

func TestLoadConfigAllowsJSONCComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, gc.ConfigFileName), `{
		// bump the bucket count for a large heap
		"buckets": 4096,
	}`)

	cfg, _, err := gc.LoadConfig(dir, "", gc.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Buckets)
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	t.Parallel()

	_, _, err := gc.LoadConfig(t.TempDir(), "missing.json", gc.Config{}, nil)
	require.Error(t, err)
}

func TestLoadConfigCLIOverridesWinOverFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, gc.ConfigFileName), `{"buckets": 2048}`)

	cfg, _, err := gc.LoadConfig(dir, "", gc.Config{Buckets: 99}, nil)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Buckets)
}

func TestLoadConfigRejectsMismatchedThresholdsLength(t *testing.T) {
	t.Parallel()

	_, _, err := gc.LoadConfig(t.TempDir(), "", gc.Config{Generations: 3, Thresholds: []uint64{1, 2}}, nil)
	require.Error(t, err)
}

func TestFormatConfigIsIndentedJSON(t *testing.T) {
	t.Parallel()

	out, err := gc.FormatConfig(gc.DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, out, "\"generations\": 3")
}
