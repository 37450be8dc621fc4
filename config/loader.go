package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are searched in order by LoadAppConfig.
var DefaultPaths = []string{"config.yml", "./config/config.yml"}

const envPrefix = "TRANSIT_"

// minReadIntervalMS is the realtime poller's hard floor (ingest.MinPollInterval).
const minReadIntervalMS = 10_000

// LoadAppConfig loads .env, the first config file found in DefaultPaths (a
// missing file is allowed when the environment supplies the required
// values), applies TRANSIT_* overrides and defaults, and validates the result.
func LoadAppConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Load("")
}

// Load reads path (skipped when empty), overlays the environment and
// validates. It does not read .env.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the time zone name.
func Validate(cfg *AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 16181
	}
	if cfg.GTFS.RefreshInterval == 0 {
		cfg.GTFS.RefreshInterval = 24 * time.Hour
	}
	if cfg.GTFS.RetryInterval == 0 {
		cfg.GTFS.RetryInterval = 5 * time.Minute
	}
	if cfg.GTFS.CacheMaxAge == 0 {
		cfg.GTFS.CacheMaxAge = 24 * time.Hour
	}
	if cfg.GTFS.TimeoutMS == 0 {
		cfg.GTFS.TimeoutMS = 120_000
	}
	if cfg.GTFSRT.ReadIntervalMS == 0 {
		cfg.GTFSRT.ReadIntervalMS = 15_000
	}
	if cfg.GTFSRT.TimeoutMS == 0 {
		cfg.GTFSRT.TimeoutMS = 10_000
	}
	if cfg.GTFSRT.StalenessMS == 0 {
		cfg.GTFSRT.StalenessMS = 3 * max(cfg.GTFSRT.ReadIntervalMS, minReadIntervalMS)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnv(cfg *AppConfig) error {
	str := map[string]*string{
		"STATIC_URL":            &cfg.GTFS.StaticURL,
		"AGENCY_ID":             &cfg.GTFS.AgencyID,
		"CACHE_DIR":             &cfg.GTFS.CacheDir,
		"FEED_URL":              &cfg.GTFSRT.FeedURL,
		"TRIP_UPDATES_URL":      &cfg.GTFSRT.TripUpdatesURL,
		"VEHICLE_POSITIONS_URL": &cfg.GTFSRT.VehiclePositionsURL,
		"SERVICE_ALERTS_URL":    &cfg.GTFSRT.ServiceAlertsURL,
		"TIMEZONE":              &cfg.Timezone,
		"LOG_LEVEL":             &cfg.Logging.Level,
		"LOG_FORMAT":            &cfg.Logging.Format,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + k); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":              &cfg.Server.Port,
		"STATIC_TIMEOUT_MS": &cfg.GTFS.TimeoutMS,
		"READ_INTERVAL_MS":  &cfg.GTFSRT.ReadIntervalMS,
		"RT_TIMEOUT_MS":     &cfg.GTFSRT.TimeoutMS,
		"STALENESS_MS":      &cfg.GTFSRT.StalenessMS,
	}
	for k, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + k)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %q", envPrefix, k, v)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"CACHE_MAX_AGE":    &cfg.GTFS.CacheMaxAge,
		"REFRESH_INTERVAL": &cfg.GTFS.RefreshInterval,
		"RETRY_INTERVAL":   &cfg.GTFS.RetryInterval,
	}
	for k, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + k)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %q", envPrefix, k, v)
		}
		*dst = d
	}
	return nil
}
