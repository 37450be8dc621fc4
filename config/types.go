package config

import "time"

// ServerConfig contains HTTP adapter configuration
type ServerConfig struct {
	Port        int      `yaml:"port" validate:"gt=0,lte=65535"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// GTFSConfig contains static schedule configuration
type GTFSConfig struct {
	StaticURL       string        `yaml:"staticURL" validate:"required"` // http(s) URL or local zip path
	AgencyID        string        `yaml:"agency_id" validate:"omitempty"`
	CacheDir        string        `yaml:"cacheDir"`
	CacheMaxAge     time.Duration `yaml:"cacheMaxAge" validate:"gte=0"`
	RefreshInterval time.Duration `yaml:"refreshInterval" validate:"gte=0"`
	RetryInterval   time.Duration `yaml:"retryInterval" validate:"gte=0"`
	TimeoutMS       int           `yaml:"timeoutMS" validate:"gte=0"`
}

// GTFSRTConfig contains GTFS-Realtime feed configuration. FeedURL is a shared
// endpoint selected per feed by the Type query parameter; the per-feed URLs
// take precedence.
type GTFSRTConfig struct {
	FeedURL             string `yaml:"feedURL" validate:"omitempty,url"`
	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	ServiceAlertsURL    string `yaml:"serviceAlertsURL" validate:"omitempty,url"`
	ReadIntervalMS      int    `yaml:"readIntervalMS" validate:"gte=0"`
	TimeoutMS           int    `yaml:"timeoutMS" validate:"gte=0"`
	StalenessMS         int    `yaml:"stalenessMS" validate:"gte=0"`
}

// LoggingConfig selects the slog level and handler
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server   ServerConfig  `yaml:"server" validate:"required"`
	GTFS     GTFSConfig    `yaml:"gtfs" validate:"required"`
	GTFSRT   GTFSRTConfig  `yaml:"gtfsrt"`
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ReadInterval is the realtime poll period.
func (c GTFSRTConfig) ReadInterval() time.Duration {
	return time.Duration(c.ReadIntervalMS) * time.Millisecond
}

func (c GTFSRTConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// Staleness is the maximum age of realtime data used for predictions.
func (c GTFSRTConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessMS) * time.Millisecond
}

func (c GTFSConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// Location resolves Timezone; empty means the agency time zone of the feed,
// reported as nil.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	return time.LoadLocation(c.Timezone)
}
