// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// Config holds application configuration.
type Config struct {
	ListenAddress     string
	OrthancURL        string
	OrthancUsername   string
	OrthancPassword   string
	HttpClientTimeout time.Duration
	Debug             bool

	DatabaseURL string // empty keeps cursors in memory

	ChangesPageLimit  int
	ChangesPollPeriod time.Duration
	ChangesFailOpen   bool
	WatchChangeTypes  []orthanc.ChangeType
	AutoRouteModality string

	OtelEnabled        bool
	OtelEndpoint       string // e.g., OTEL_EXPORTER_OTLP_ENDPOINT
	OtelServiceName    string // e.g., OTEL_SERVICE_NAME
	OtelServiceVersion string // e.g., OTEL_SERVICE_VERSION
}

// Load reads configuration from environment variables and, when configFile is
// set (or CONFIG_FILE names one), from that file. Environment variables win.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		ListenAddress:      v.GetString("LISTEN_ADDRESS"),
		OrthancURL:         v.GetString("ORTHANC_URL"),
		OrthancUsername:    v.GetString("ORTHANC_USERNAME"),
		OrthancPassword:    v.GetString("ORTHANC_PASSWORD"),
		Debug:              v.GetBool("DEBUG"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		ChangesPageLimit:   v.GetInt("CHANGES_PAGE_LIMIT"),
		ChangesPollPeriod:  v.GetDuration("CHANGES_POLL_INTERVAL"),
		ChangesFailOpen:    v.GetBool("CHANGES_FAIL_OPEN"),
		AutoRouteModality:  v.GetString("AUTO_ROUTE_MODALITY"),
		OtelEnabled:        v.GetBool("OTEL_ENABLED"),
		OtelEndpoint:       v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelServiceName:    v.GetString("OTEL_SERVICE_NAME"),
		OtelServiceVersion: v.GetString("OTEL_SERVICE_VERSION"),
	}

	timeoutSec := v.GetInt("HTTP_CLIENT_TIMEOUT_SECONDS")
	if timeoutSec <= 0 {
		timeoutSec = 15 // Default on bad input
	}
	cfg.HttpClientTimeout = time.Duration(timeoutSec) * time.Second

	for _, t := range splitList(v.GetString("WATCH_CHANGE_TYPES")) {
		cfg.WatchChangeTypes = append(cfg.WatchChangeTypes, orthanc.ChangeType(t))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDRESS", ":8080")
	v.SetDefault("ORTHANC_URL", "http://localhost:8042") // Adjust default if needed
	v.SetDefault("HTTP_CLIENT_TIMEOUT_SECONDS", 15)
	v.SetDefault("DEBUG", false)
	v.SetDefault("CHANGES_PAGE_LIMIT", orthanc.DefaultChangesLimit)
	v.SetDefault("CHANGES_POLL_INTERVAL", "5s")
	v.SetDefault("CHANGES_FAIL_OPEN", false)
	v.SetDefault("WATCH_CHANGE_TYPES", "StablePatient,StableStudy,StableSeries")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "signoz-otel-collector.observability.svc.cluster.local:4317") // Default SigNoz collector endpoint
	v.SetDefault("OTEL_SERVICE_NAME", "orthanc-graph")
	v.SetDefault("OTEL_SERVICE_VERSION", "1.0.0")
}

func (c *Config) validate() error {
	var errs error
	if c.OrthancURL == "" {
		errs = errors.Join(errs, errors.New("ORTHANC_URL must be set"))
	}
	if c.ChangesPageLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("CHANGES_PAGE_LIMIT must be positive, got %d", c.ChangesPageLimit))
	}
	if c.ChangesPollPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("CHANGES_POLL_INTERVAL must be positive, got %s", c.ChangesPollPeriod))
	}
	return errs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
