package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Asia/Taipei", cfg.Scheduler.Timezone)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.DeliveredTTL)
	assert.NotEmpty(t, cfg.Storage.SQLitePath)
	assert.NotEmpty(t, cfg.Storage.BadgerPath)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CARELINK_SERVER_PORT", "9090")
	t.Setenv("CARELINK_SCHEDULER_TIMEZONE", "UTC")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestTelegramEnabledByToken(t *testing.T) {
	t.Setenv("CARELINK_CHANNELS_TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Channels.Telegram.Enabled)
}

func TestInvalidTimezoneRejected(t *testing.T) {
	t.Setenv("CARELINK_SCHEDULER_TIMEZONE", "Not/AZone")

	_, err := Load("", t.TempDir())
	assert.Error(t, err)
}
