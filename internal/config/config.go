package config

import (
	"time"

	"github.com/dkoval/polymarket-data/internal/model"
)

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Markets  []MarketConfig `yaml:"markets"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds WebSocket feed settings.
type FeedConfig struct {
	WSURL                string        `yaml:"ws_url"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// MarketConfig binds one feed asset id to a market name used for file naming.
type MarketConfig struct {
	AssetID string `yaml:"asset_id"`
	Market  string `yaml:"market"`
}

// OutputConfig holds CSV output settings.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// DatabaseConfig holds the optional Postgres connection for mirrored levels.
// The store stays disabled unless a host is configured.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether the database sink should run.
func (db DatabaseConfig) Enabled() bool {
	return db.Host != ""
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`     // debug, info, warn, error
	Directory string `yaml:"directory"` // When set, JSON logs are also written here with rotation
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// Instruments converts the configured markets to the model's instrument set.
func (c *RecorderConfig) Instruments() []model.Instrument {
	out := make([]model.Instrument, 0, len(c.Markets))
	for _, m := range c.Markets {
		out = append(out, model.Instrument{
			AssetID: m.AssetID,
			Market:  m.Market,
			Side:    model.SidePrimary,
		})
	}
	return out
}
