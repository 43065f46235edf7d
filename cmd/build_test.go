package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "build"}
	addGlobalFlags(cmd)
	addBuildFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func enterProject(t *testing.T, toml string) string {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "vuelib.toml"), []byte(toml), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "components", "button"), 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Join(root, "components", "button")))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})

	return root
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	enterProject(t, "output = \"dist\"\njobs = 3\n")

	cfg, err := loadConfig(newTestCommand(t, "--jobs", "7", "--build-type", "special", "--no-fail-fast"))
	require.NoError(t, err)

	assert.Equal(t, "dist", cfg.Output)
	assert.Equal(t, 7, cfg.Jobs)
	assert.Equal(t, "special", cfg.BuildType)
	assert.False(t, cfg.FailFast)
	assert.False(t, cfg.Precompress)
}

func TestLoadConfigChangesToProjectRoot(t *testing.T) {
	root := enterProject(t, "")

	_, err := loadConfig(newTestCommand(t))
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	expected, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	actual, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	enterProject(t, "")

	_, err := loadConfig(newTestCommand(t, "--build-type", "fancy"))
	assert.Error(t, err)

	_, err = loadConfig(newTestCommand(t, "--output", "components"))
	assert.Error(t, err)

	_, err = loadConfig(newTestCommand(t, "--config", "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvironment(t *testing.T) {
	enterProject(t, "")
	t.Setenv("OUTPUT", "/tmp/somewhere-else")
	t.Setenv("BUILD_TYPE", "special")

	cfg, err := loadConfig(newTestCommand(t))
	require.NoError(t, err)
	assert.Equal(t, "lib", cfg.Output)
	assert.Equal(t, "special", cfg.BuildType)

	cfg, err = loadConfig(newTestCommand(t, "--build-type", "default"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.BuildType)
}
