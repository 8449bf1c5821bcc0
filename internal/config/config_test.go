package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesFirmwareTiming(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 150*time.Millisecond, cfg.Serial.SettleDelay)
	assert.Equal(t, 1200*time.Millisecond, cfg.Timeouts.FieldWrite)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Rotation)
	assert.Equal(t, 1600*time.Millisecond, cfg.Timeouts.BulkRead)
	assert.Equal(t, 600*time.Millisecond, cfg.Timeouts.Info)
	assert.Equal(t, 2, cfg.Timeouts.Attempts)
	assert.Equal(t, 120*time.Millisecond, cfg.Timeouts.RetryDelay)
	assert.Equal(t, "wheel", cfg.Device.SyncPolicy)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: "9100"
device:
  port: COM7
  sync_policy: profile
timeouts:
  field_write: 300ms
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.GetServerAddr())
	assert.Equal(t, "COM7", cfg.Device.Port)
	assert.Equal(t, "profile", cfg.Device.SyncPolicy)
	assert.Equal(t, 300*time.Millisecond, cfg.Timeouts.FieldWrite)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Rotation)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad sync policy", "device:\n  sync_policy: sometimes\n"},
		{"bad level", "logging:\n  level: chatty\n"},
		{"no attempts", "timeouts:\n  attempts: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissingExplicitPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
