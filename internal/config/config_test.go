package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewag/orthanc-graph/internal/orthanc"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "http://localhost:8042", cfg.OrthancURL)
	assert.Equal(t, 15*time.Second, cfg.HttpClientTimeout)
	assert.Equal(t, orthanc.DefaultChangesLimit, cfg.ChangesPageLimit)
	assert.Equal(t, 5*time.Second, cfg.ChangesPollPeriod)
	assert.False(t, cfg.ChangesFailOpen)
	assert.Equal(t, []orthanc.ChangeType{orthanc.StablePatient, orthanc.StableStudy, orthanc.StableSeries}, cfg.WatchChangeTypes)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORTHANC_URL", "http://pacs:8042")
	t.Setenv("ORTHANC_USERNAME", "orthanc")
	t.Setenv("ORTHANC_PASSWORD", "secret")
	t.Setenv("HTTP_CLIENT_TIMEOUT_SECONDS", "30")
	t.Setenv("CHANGES_FAIL_OPEN", "true")
	t.Setenv("WATCH_CHANGE_TYPES", " StableStudy , ,NewInstance")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://pacs:8042", cfg.OrthancURL)
	assert.Equal(t, "orthanc", cfg.OrthancUsername)
	assert.Equal(t, "secret", cfg.OrthancPassword)
	assert.Equal(t, 30*time.Second, cfg.HttpClientTimeout)
	assert.True(t, cfg.ChangesFailOpen)
	assert.Equal(t, []orthanc.ChangeType{orthanc.StableStudy, orthanc.NewInstance}, cfg.WatchChangeTypes)
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orthanc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orthanc_url: http://file:8042\nchanges_page_limit: 50\nauto_route_modality: pacs\n"), 0o600))
	t.Setenv("CHANGES_PAGE_LIMIT", "25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file:8042", cfg.OrthancURL)
	assert.Equal(t, 25, cfg.ChangesPageLimit)
	assert.Equal(t, "pacs", cfg.AutoRouteModality)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CHANGES_PAGE_LIMIT", "0")
	t.Setenv("CHANGES_POLL_INTERVAL", "-1s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHANGES_PAGE_LIMIT")
	assert.Contains(t, err.Error(), "CHANGES_POLL_INTERVAL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
