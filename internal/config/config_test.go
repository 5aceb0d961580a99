package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Notify.DrainInterval)
	assert.Equal(t, 1, cfg.Notify.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.Notify.RetryBackoff)
	assert.Equal(t, "smtp", cfg.Transport.Driver)
	assert.Equal(t, 587, cfg.Transport.SMTP.Port)
	assert.Empty(t, cfg.Transport.SMTP.Host)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, 100, cfg.Health.HistorySize)
	assert.Equal(t, 120*time.Second, cfg.Health.OnlineWindow)
	assert.Equal(t, "@every 5m", cfg.Health.PruneSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.org")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USERNAME", "scribe")
	t.Setenv("SMTP_SENDER", "scribe@example.org")
	t.Setenv("NOTIFY_DRAIN_INTERVAL", "500ms")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "3")
	t.Setenv("NOTIFY_RETRY_BACKOFF", "2s,10s")
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("LEDGER_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("HEALTH_HISTORY_SIZE", "10")
	t.Setenv("RELAY_URL", "http://relay.local/send")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org", cfg.Transport.SMTP.Host)
	assert.Equal(t, 2525, cfg.Transport.SMTP.Port)
	assert.Equal(t, "scribe", cfg.Transport.SMTP.Username)
	assert.Equal(t, "scribe@example.org", cfg.Transport.Sender)
	assert.Equal(t, 500*time.Millisecond, cfg.Notify.DrainInterval)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second}, cfg.Notify.RetryBackoff)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "/tmp/ledger.db", cfg.Ledger.SQLitePath)
	assert.Equal(t, 10, cfg.Health.HistorySize)
	assert.Equal(t, "http://relay.local/send", cfg.Transport.Relay.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown ledger driver", "LEDGER_DRIVER", "mongo"},
		{"unknown transport driver", "TRANSPORT_DRIVER", "pigeon"},
		{"zero drain interval", "NOTIFY_DRAIN_INTERVAL", "0s"},
		{"zero attempts", "NOTIFY_MAX_ATTEMPTS", "0"},
		{"zero history", "HEALTH_HISTORY_SIZE", "0"},
		{"malformed duration", "HEALTH_ONLINE_WINDOW", "soon"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
