package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultPingInterval         = 10 * time.Second
	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultOutputDirectory      = "./data"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultLogLevel             = "info"
	DefaultHealthPort           = 8080
)

func (c *RecorderConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	// Output defaults
	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDirectory
	}

	// Database defaults (only meaningful when a host is set)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
