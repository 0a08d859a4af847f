package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxhall/tts-api/internal/config"
)

func TestSetupLevels(t *testing.T) {
	cases := []struct {
		configured string
		enabled    slog.Level
		disabled   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tc := range cases {
		t.Run(tc.configured, func(t *testing.T) {
			logger := Setup(config.ServerConfig{Port: 8080, LogLevel: tc.configured})
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(nil, tc.enabled))
			assert.False(t, logger.Enabled(nil, tc.disabled))
		})
	}
}

func TestSetupInvalidLevelDefaultsToInfo(t *testing.T) {
	logger := Setup(config.ServerConfig{Port: 8080, LogLevel: "loud"})
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(nil, slog.LevelInfo))
	assert.False(t, logger.Enabled(nil, slog.LevelDebug))
}
