package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the optional YAML file at path, layered
// under MASTERSTAT_* environment variables. A missing file is not an error;
// defaults plus environment are a complete configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MASTERSTAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// No file, use defaults + env
			} else if os.IsNotExist(err) {
				// Same
			} else {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables resolve even
// without a config file.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.cors_origins", defaults.Server.CORSOrigins)

	v.SetDefault("devices.thermostat_id", defaults.Devices.ThermostatID)
	v.SetDefault("devices.outlet_id", defaults.Devices.OutletID)

	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("api.token", defaults.API.Token)
	v.SetDefault("api.credentials_file", defaults.API.CredentialsFile)

	v.SetDefault("poll.interval", defaults.Poll.Interval)
	v.SetDefault("poll.cache_ttl", defaults.Poll.CacheTTL)

	v.SetDefault("history.data_dir", defaults.History.DataDir)
	v.SetDefault("history.retention", defaults.History.Retention)

	v.SetDefault("backfill.startup_min_gap", defaults.Backfill.StartupMinGap)
	v.SetDefault("backfill.rescan_min_gap", defaults.Backfill.RescanMinGap)
	v.SetDefault("backfill.window", defaults.Backfill.Window)
	v.SetDefault("backfill.max_gap_age", defaults.Backfill.MaxGapAge)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.maxsize", defaults.Log.MaxSize)
	v.SetDefault("log.maxbackups", defaults.Log.MaxBackups)
	v.SetDefault("log.maxage", defaults.Log.MaxAge)
	v.SetDefault("log.compress", defaults.Log.Compress)
	v.SetDefault("log.console", defaults.Log.Console)
}
