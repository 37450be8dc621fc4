package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sample = `
server:
  port: 8080
gtfs:
  staticURL: https://feeds.example.com/gtfs.zip
  agency_id: TRI
  cacheDir: /var/cache/transitcore
  refreshInterval: 12h
gtfsrt:
  feedURL: https://feeds.example.com/rt
  readIntervalMS: 20000
timezone: America/Los_Angeles
logging:
  level: debug
  format: json
`

// TestLoad_FromFile checks file values and the defaults filled around them
func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "TRI", cfg.GTFS.AgencyID)
	assert.Equal(t, 12*time.Hour, cfg.GTFS.RefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.GTFS.RetryInterval)
	assert.Equal(t, 24*time.Hour, cfg.GTFS.CacheMaxAge)
	assert.Equal(t, 20*time.Second, cfg.GTFSRT.ReadInterval())
	assert.Equal(t, 60*time.Second, cfg.GTFSRT.Staleness(), "staleness defaults to three poll intervals")
	assert.Equal(t, "json", cfg.Logging.Format)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRANSIT_PORT", "9090")
	t.Setenv("TRANSIT_STATIC_URL", "/data/gtfs.zip")
	t.Setenv("TRANSIT_TRIP_UPDATES_URL", "https://other.example.com/tu.pb")
	t.Setenv("TRANSIT_STALENESS_MS", "30000")
	t.Setenv("TRANSIT_REFRESH_INTERVAL", "6h")
	t.Setenv("TRANSIT_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/data/gtfs.zip", cfg.GTFS.StaticURL)
	assert.Equal(t, "https://other.example.com/tu.pb", cfg.GTFSRT.TripUpdatesURL)
	assert.Equal(t, 30*time.Second, cfg.GTFSRT.Staleness())
	assert.Equal(t, 6*time.Hour, cfg.GTFS.RefreshInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("TRANSIT_STATIC_URL", "https://feeds.example.com/gtfs.zip")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16181, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.GTFSRT.ReadInterval())
	assert.Equal(t, 45*time.Second, cfg.GTFSRT.Staleness())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestLoad_StalenessFollowsEffectivePollInterval(t *testing.T) {
	t.Setenv("TRANSIT_STATIC_URL", "https://feeds.example.com/gtfs.zip")
	t.Setenv("TRANSIT_READ_INTERVAL_MS", "2000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GTFSRT.Staleness())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "invalid yaml", body: "invalid: yaml: content: [[["},
		{name: "missing static url", body: "server:\n  port: 8080\n"},
		{name: "bad port", body: "server:\n  port: 70000\ngtfs:\n  staticURL: x.zip\n"},
		{name: "bad feed url", body: "gtfs:\n  staticURL: x.zip\ngtfsrt:\n  feedURL: not a url\n"},
		{name: "bad log level", body: "gtfs:\n  staticURL: x.zip\nlogging:\n  level: loud\n"},
		{name: "bad timezone", body: "gtfs:\n  staticURL: x.zip\ntimezone: Mars/Olympus\n"},
		{name: "bad env int", body: "gtfs:\n  staticURL: x.zip\n", env: map[string]string{"TRANSIT_PORT": "eighty"}},
		{name: "bad env duration", body: "gtfs:\n  staticURL: x.zip\n", env: map[string]string{"TRANSIT_CACHE_MAX_AGE": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadAppConfig_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRANSIT_AGENCY_ID=FROM_DOTENV\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	// godotenv never overrides variables that are already set; make sure the
	// variable is unset for the duration of the test.
	t.Setenv("TRANSIT_AGENCY_ID", "")
	require.NoError(t, os.Unsetenv("TRANSIT_AGENCY_ID"))

	cfg, err := LoadAppConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "FROM_DOTENV", cfg.GTFS.AgencyID)
}
