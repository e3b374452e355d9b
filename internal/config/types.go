package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserID is the single operator identity. Every command and
	// conversation flow is gated on it.
	AdminUserID int64 `json:"admin_user_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "mongo":  document store (URI + Database)
//   - "memory": in-process store, state lost on restart (dev/testing)
//   - "sqlite": SQLite database file (optional build tag)
type StorageConfig struct {
	Driver   string `json:"driver"`
	URI      string `json:"uri,omitempty"`
	Database string `json:"database,omitempty"`
	Path     string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the execution engine and its triggers.
//
// All durations are Go duration strings (e.g. "500ms", "1s", "24h").
//
// Defaults (when fields are omitted/zero):
//   - timezone: "Asia/Kolkata"
//   - destination_delay: "500ms"
//   - post_delay: "1s"
//   - state_ttl: "24h"
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	// DestinationDelay is the minimum gap between two sends to different
	// destinations within one firing.
	DestinationDelay string `json:"destination_delay,omitempty"`
	// PostDelay is the additional gap between two distinct posts.
	PostDelay string `json:"post_delay,omitempty"`

	// StateTTL is the inactivity window after which stuck conversation
	// states are evicted by housekeeping.
	StateTTL string `json:"state_ttl,omitempty"`

	// TickOnUpdates runs the engine opportunistically on every inbound
	// chat event, as a liveness fallback for environments that suspend
	// idle processes. Duplicate ticks are deduplicated by the engine.
	TickOnUpdates bool `json:"tick_on_updates,omitempty"`
}

// HTTPConfig controls the optional HTTP trigger surface
// (manual cron endpoint, health, metrics).
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8090"
	// CronSecret gates the /api/cron trigger endpoint. Empty means open
	// (only sensible when Addr is loopback).
	CronSecret string `json:"cron_secret,omitempty"`
}
