package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "screener.db", cfg.Store.SQLitePath)
	assert.Equal(t, 85, cfg.Screening.ConfidenceFloor)
	assert.Equal(t, 12000, cfg.Screening.Level1MaxChars)
	assert.Equal(t, 60000, cfg.Screening.Level2MaxChars)
	assert.Equal(t, 4, cfg.Batch.Level1Concurrency)
	assert.Equal(t, 1, cfg.Batch.Level2Concurrency)
	assert.Equal(t, 8, cfg.Anthropic.SmallBatchThreshold)
	assert.NotEmpty(t, cfg.Anthropic.HaikuModel)
	assert.NotEmpty(t, cfg.Anthropic.SonnetModel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCREENER_SCREENING_CONFIDENCE_FLOOR", "90")
	t.Setenv("SCREENER_STORE_DRIVER", "postgres")
	t.Setenv("SCREENER_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Screening.ConfidenceFloor)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
}
