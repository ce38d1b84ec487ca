package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Headless bool   `json:"headless"`
	DataDir  string `json:"data_dir"`
	Timeout  int    `json:"timeout"`
}

func TestReadConfigMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(
		filepath.Join(dir, "config.json5"),
		[]byte(`{ headless: false, data_dir: "/var/lib/koubs", timeout: 15 }`),
		0600,
	)
	require.NoError(t, err)
	err = os.WriteFile(
		filepath.Join(dir, "config.local.json5"),
		[]byte(`{ headless: true }`),
		0600,
	)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.True(t, cfg.Headless)
	require.Equal(t, "/var/lib/koubs", cfg.DataDir)
	require.Equal(t, 15, cfg.Timeout)
}

func TestReadConfigMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(
		filepath.Join(dir, "config.local.json5"),
		[]byte(`{ timeout: 30 }`),
		0600,
	)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Timeout)
}
