package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cyberguard/cyberguard/internal/model"
)

func TestNew(t *testing.T) {
	t.Run("unknown level falls back to info", func(t *testing.T) {
		l, err := New(model.LogConfig{Level: "loud"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("writes to a rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "cyberguard.log")
		l, err := New(model.LogConfig{Level: "debug", File: path, MaxSize: 1})
		require.NoError(t, err)

		l.Info("hello")
		_ = l.Sync()

		assert.FileExists(t, path)
	})
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
