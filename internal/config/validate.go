package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the invariants that must hold before the bot can start.
// Missing operator identity or token is fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.AdminUserID == 0 {
		return errors.New("telegram.admin_user_id is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
		// ok
	case "mongo":
		if strings.TrimSpace(c.Storage.URI) == "" {
			return errors.New("storage.uri is required for the mongo driver")
		}
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"scheduler.destination_delay", c.Scheduler.DestinationDelay},
		{"scheduler.post_delay", c.Scheduler.PostDelay},
		{"scheduler.state_ttl", c.Scheduler.StateTTL},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
