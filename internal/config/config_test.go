package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "GEMINI_API_KEY", "PRESET_DIR", "POOL_TIMEOUT_MS", "MAX_CONCURRENT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(Require{})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "presets", cfg.PresetDir)
	assert.Equal(t, 5*time.Second, cfg.PoolTimeout)
	assert.Equal(t, 8, cfg.MaxVariableDepth)
	assert.Equal(t, 4, cfg.MaxConcurrent)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("POOL_TIMEOUT_MS", "250")
	t.Setenv("POOL_RATE_PER_SECOND", "0.5")
	t.Setenv("WATCH_PRESETS", "false")
	t.Setenv("MAX_VARIABLE_DEPTH", "not a number")

	cfg, err := Load(Require{})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.PoolTimeout)
	assert.Equal(t, 0.5, cfg.PoolRatePerSecond)
	assert.False(t, cfg.WatchPresets)
	assert.Equal(t, 8, cfg.MaxVariableDepth)
}

func TestLoad_Required(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load(Require{Telegram: true})
	assert.EqualError(t, err, "TELEGRAM_BOT_TOKEN is required")

	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	_, err = Load(Require{Telegram: true, Gemini: true})
	assert.EqualError(t, err, "GEMINI_API_KEY is required")

	t.Setenv("GEMINI_API_KEY", "key")
	cfg, err := Load(Require{Telegram: true, Gemini: true})
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.TelegramToken)
}
