package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (s *syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		cfg := config.LoggerConfig{
			Level:  "debug",
			Format: "console",
			Colors: config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, &buf)
		GetLogger().Info("colorized message")

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "colorized message")
		assert.Contains(t, out, colorGreen)
		assert.Contains(t, out, colorReset)
	})

	t.Run("json format emits valid structured entries", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &buf)
		GetLogger().Warn("structured message", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "droidpilot", entry["logger"])
		assert.Equal(t, "structured message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("file core writes through lumberjack when configured", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer
		logPath := filepath.Join(t.TempDir(), "droidpilot.log")

		cfg := config.LoggerConfig{
			Level:     "debug",
			Format:    "json",
			File:      logPath,
			MaxSizeMB: 1,
		}
		Initialize(cfg, &buf)
		GetLogger().Error("file bound message")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "file bound message")
	})

	t.Run("second initialization is ignored", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &buf)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "console"}, &buf)
		second := GetLogger()

		assert.Same(t, first, second)
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored instance after initialization", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &buf)
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestResetForTest(t *testing.T) {
	var buf syncBuffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &buf)
	require.NotNil(t, globalLogger.Load())

	ResetForTest()
	assert.Nil(t, globalLogger.Load())
}
