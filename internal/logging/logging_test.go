package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zap.AtomicLevel
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"warn", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"bogus", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}
	for _, tt := range tests {
		logger, err := New(tt.level, "json")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.want.Level()), tt.level)
		assert.False(t, logger.Core().Enabled(tt.want.Level()-1), tt.level)
	}
}

func TestNewConsole(t *testing.T) {
	logger, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
