package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vladse1/CHP/internal/config"
)

func TestConfigInit_WritesLoadableTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, configInitCmd.RunE(configInitCmd, []string{path}))

	// The starter file must load and validate as-is.
	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())

	assert.Equal(t, []string{"Inland"}, loaded.CAD.Centers)
	assert.Equal(t, 90*time.Second, loaded.Watch.Interval)
	assert.Equal(t, 24*time.Hour, loaded.Store.Retention)
	assert.Equal(t, "memory", loaded.Store.Driver)
	assert.Equal(t, 700, loaded.Notify.MaxDetailChars)
}

func TestConfigInit_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))

	_, err := os.Stat(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\n"), 0o644))

	err := configInitCmd.RunE(configInitCmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The existing file is untouched.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "driver: sqlite")
}

func TestDisplayConfig_RedactsTokenAndRendersDurations(t *testing.T) {
	c := &config.Config{
		CAD: config.CADConfig{
			PageURL: "https://cad.chp.ca.gov/Traffic.aspx",
			Centers: []string{"Inland"},
			Timeout: 30 * time.Second,
		},
		Telegram: config.TelegramConfig{Token: "123456:secret-token", ChatID: "-1001234"},
		Watch:    config.WatchConfig{Interval: 90 * time.Second, Jitter: 15 * time.Second},
		Store:    config.StoreConfig{Driver: "memory", Retention: 24 * time.Hour},
	}

	d := newDisplayConfig(c)
	assert.Equal(t, "<redacted>", d.Telegram.Token)
	assert.Equal(t, "-1001234", d.Telegram.ChatID)
	assert.Equal(t, "1m30s", d.Watch.Interval)
	assert.Equal(t, "24h0m0s", d.Store.Retention)

	out, err := yaml.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret-token")
}

func TestDisplayConfig_EmptyTokenStaysEmpty(t *testing.T) {
	d := newDisplayConfig(&config.Config{})
	assert.Empty(t, d.Telegram.Token)
}
