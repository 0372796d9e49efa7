package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *RecorderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("feed.ws_url must be a ws:// or wss:// URL, got %q", c.Feed.WSURL)
	}
	if c.Feed.PingInterval <= 0 {
		return errors.New("feed.ping_interval must be > 0")
	}
	if c.Feed.ReconnectBaseDelay <= 0 {
		return errors.New("feed.reconnect_base_delay must be > 0")
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		return errors.New("feed.reconnect_max_delay must be >= reconnect_base_delay")
	}
	if c.Feed.MaxReconnectAttempts < 1 {
		return errors.New("feed.max_reconnect_attempts must be >= 1")
	}

	if len(c.Markets) == 0 {
		return errors.New("at least one market is required")
	}
	seen := make(map[string]struct{}, len(c.Markets))
	for i, m := range c.Markets {
		if m.AssetID == "" {
			return fmt.Errorf("markets[%d].asset_id is required", i)
		}
		if m.Market == "" {
			return fmt.Errorf("markets[%d].market is required", i)
		}
		if _, dup := seen[m.AssetID]; dup {
			return fmt.Errorf("markets[%d].asset_id %q is duplicated", i, m.AssetID)
		}
		seen[m.AssetID] = struct{}{}
	}

	if c.Output.Directory == "" {
		return errors.New("output.directory is required")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db DatabaseConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
