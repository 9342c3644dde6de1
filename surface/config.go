package surface

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all surfcast configuration.
type Config struct {
	Host           string               `yaml:"host"`
	Port           int                  `yaml:"port"`
	ExternalHost   string               `yaml:"external_host"` // host:port advertised in viewer URLs
	DBPath         string               `yaml:"db_path"`
	NoPersistence  bool                 `yaml:"no_persistence"`
	DefaultSize    string               `yaml:"default_size"` // preset name for surfaces created without a size
	PingInterval   time.Duration        `yaml:"ping_interval"`
	LogLevel       string               `yaml:"log_level"`
	EventRetention EventRetentionConfig `yaml:"event_retention"`
}

// EventRetentionConfig controls cleanup of the observability tables.
type EventRetentionConfig struct {
	EventLogsDays  int `yaml:"event_logs_days"`
	HeartbeatsDays int `yaml:"heartbeats_days"`
}

func (c *Config) defaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8747
	}
	if c.DBPath == "" {
		c.DBPath = "surfcast.db"
	}
	if c.DefaultSize == "" {
		c.DefaultSize = string(PresetTV1080p)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.EventRetention.EventLogsDays <= 0 {
		c.EventRetention.EventLogsDays = 30
	}
	if c.EventRetention.HeartbeatsDays <= 0 {
		c.EventRetention.HeartbeatsDays = 7
	}
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
