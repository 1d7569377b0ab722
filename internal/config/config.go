package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/studykit/relay/pkg/core"
)

// StatsConfig holds InfluxDB delivery-stats settings.
type StatsConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URL        string `json:"url" mapstructure:"url"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// ArchiveConfig holds the SQLite submission archive settings.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Load reads configuration from a JSON file in configDir and sets
// default values. A missing config file is not an error; the defaults
// stand.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./relaylogs")
	viper.SetDefault("outputDir", "./submissions")

	viper.SetDefault("serverUrl", core.DefaultServerURL)
	viper.SetDefault("experimentName", core.DefaultExperimentName)
	viper.SetDefault("fallbackToLocal", true)

	viper.SetDefault("location.protocol", "https:")
	viper.SetDefault("location.hostname", "")

	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("archive.path", "./submissions/relay.db")

	viper.SetDefault("stats.enabled", false)
	viper.SetDefault("stats.url", "http://localhost:8086")
	viper.SetDefault("stats.token", "")
	viper.SetDefault("stats.org", "studykit")
	viper.SetDefault("stats.bucket", "trial_delivery")
	viper.SetDefault("stats.backupPath", "./relaylogs/stats_backup.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetConfigName("relay.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetStatsConfig returns the delivery-stats settings.
func GetStatsConfig() StatsConfig {
	var cfg StatsConfig
	_ = viper.UnmarshalKey("stats", &cfg)
	return cfg
}

// GetArchiveConfig returns the submission archive settings.
func GetArchiveConfig() ArchiveConfig {
	var cfg ArchiveConfig
	_ = viper.UnmarshalKey("archive", &cfg)
	return cfg
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
