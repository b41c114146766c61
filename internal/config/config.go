package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonguttman/MasterStat/internal/logging"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	API      APIConfig      `mapstructure:"api"`
	Poll     PollConfig     `mapstructure:"poll"`
	History  HistoryConfig  `mapstructure:"history"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Log      logging.Config `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DevicesConfig names the monitored devices.
type DevicesConfig struct {
	ThermostatID string `mapstructure:"thermostat_id"`
	OutletID     string `mapstructure:"outlet_id"`
}

// APIConfig controls the SmartThings API client.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Token           string        `mapstructure:"token"`
	CredentialsFile string        `mapstructure:"credentials_file"`
}

// PollConfig controls the acquisition loop and read cache.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// HistoryConfig controls the durable sample store.
type HistoryConfig struct {
	DataDir   string        `mapstructure:"data_dir"`
	Retention time.Duration `mapstructure:"retention"`
}

// BackfillConfig controls gap detection and reconstruction.
type BackfillConfig struct {
	StartupMinGap time.Duration `mapstructure:"startup_min_gap"`
	RescanMinGap  time.Duration `mapstructure:"rescan_min_gap"`
	Window        time.Duration `mapstructure:"window"`
	MaxGapAge     time.Duration `mapstructure:"max_gap_age"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Devices: DevicesConfig{
			ThermostatID: "e9cbfaea-3060-4835-95d6-8fb0649ca1e4",
			OutletID:     "375723e9-e893-425b-b9e8-04f56027ff6c",
		},
		API: APIConfig{
			BaseURL:         "https://api.smartthings.com/v1",
			Timeout:         15 * time.Second,
			CredentialsFile: defaultCredentialsPath(),
		},
		Poll: PollConfig{
			Interval: 60 * time.Second,
			CacheTTL: 30 * time.Second,
		},
		History: HistoryConfig{
			DataDir:   ".",
			Retention: 7 * 24 * time.Hour,
		},
		Backfill: BackfillConfig{
			StartupMinGap: 120 * time.Second,
			RescanMinGap:  300 * time.Second,
			Window:        time.Hour,
			MaxGapAge:     168 * time.Hour,
		},
		Log: logging.DefaultConfig(),
	}
}

// defaultCredentialsPath returns the SmartThings CLI credentials file at its
// well-known location when it exists, so running without a PAT works out of
// the box on a machine where the CLI is logged in.
func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "@smartthings", "cli", "credentials.json")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Validate checks the configuration is usable; it returns all problems, not
// just the first.
func (c *Config) Validate() []error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Devices.ThermostatID == "" {
		errs = append(errs, fmt.Errorf("devices.thermostat_id is required"))
	}
	if c.API.Token == "" && c.API.CredentialsFile == "" {
		errs = append(errs, fmt.Errorf("one of api.token or api.credentials_file is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive"))
	}
	if c.Poll.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("poll.cache_ttl must be positive"))
	}
	if c.History.Retention <= 0 {
		errs = append(errs, fmt.Errorf("history.retention must be positive"))
	}
	if c.Backfill.Window <= 0 {
		errs = append(errs, fmt.Errorf("backfill.window must be positive"))
	}
	if c.Backfill.StartupMinGap <= 0 || c.Backfill.RescanMinGap <= 0 {
		errs = append(errs, fmt.Errorf("backfill gap thresholds must be positive"))
	}
	return errs
}

// ValidateAll wraps Validate into a single error.
func (c *Config) ValidateAll() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
