package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  admin_user_id: 42
logging:
  level: debug
  console: true
storage:
  driver: memory
scheduler:
  enabled: true
  timezone: UTC
  destination_delay: 500ms
  post_delay: 1s
  state_ttl: 24h
`

func TestLoadValidYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.AdminUserID)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Same(t, cfg, m.Get())
}

func TestLoadValidJSON(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json",
		`{"telegram":{"token":"t","admin_user_id":1},"logging":{"level":"info"},"storage":{"driver":"memory"},"scheduler":{"enabled":false}}`))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.Telegram.Token)
}

func TestUnknownFieldRejected(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nbogus_section:\n  x: 1\n"))
	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_section")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", AdminUserID: 1},
			Storage:  StorageConfig{Driver: "memory"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
	t.Run("missing token", func(t *testing.T) {
		c := base()
		c.Telegram.Token = "  "
		assert.ErrorContains(t, c.Validate(), "telegram.token")
	})
	t.Run("missing admin", func(t *testing.T) {
		c := base()
		c.Telegram.AdminUserID = 0
		assert.ErrorContains(t, c.Validate(), "admin_user_id")
	})
	t.Run("mongo needs uri", func(t *testing.T) {
		c := base()
		c.Storage.Driver = "mongo"
		assert.ErrorContains(t, c.Validate(), "storage.uri")
		c.Storage.URI = "mongodb://localhost:27017"
		assert.NoError(t, c.Validate())
	})
	t.Run("sqlite needs path", func(t *testing.T) {
		c := base()
		c.Storage.Driver = "sqlite"
		assert.ErrorContains(t, c.Validate(), "storage.path")
		c.Storage.Path = "bot.db"
		assert.NoError(t, c.Validate())
	})
	t.Run("unknown driver", func(t *testing.T) {
		c := base()
		c.Storage.Driver = "redis"
		assert.ErrorContains(t, c.Validate(), "unknown driver")
	})
	t.Run("bad timezone", func(t *testing.T) {
		c := base()
		c.Scheduler.Timezone = "Mars/Olympus"
		assert.ErrorContains(t, c.Validate(), "scheduler.timezone")
	})
	t.Run("bad duration", func(t *testing.T) {
		c := base()
		c.Scheduler.PostDelay = "fast"
		assert.ErrorContains(t, c.Validate(), "scheduler.post_delay")
	})
	t.Run("negative duration", func(t *testing.T) {
		c := base()
		c.Scheduler.StateTTL = "-1h"
		assert.ErrorContains(t, c.Validate(), "must be >= 0")
	})
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationOrDefault("x", "soon", 5*time.Second)
	assert.Error(t, err)
}

func TestReloadReplacesCommittedConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	updated := validYAML + "http:\n  enabled: true\n  addr: \"127.0.0.1:9000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	m.reload()

	select {
	case cfg := <-ch:
		assert.True(t, cfg.HTTP.Enabled)
		assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	default:
		t.Fatal("expected a published config")
	}
	assert.True(t, m.Get().HTTP.Enabled)
}

func TestReloadKeepsOldConfigOnInvalidFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: \"\"\n"), 0o600))
	m.reload()

	assert.Equal(t, "123:abc", m.Get().Telegram.Token)
}
