package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakingd.log")
	log, err := NewFileLogger(path, "info")
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Staked", zap.String("participant", "0xa1"))
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Staked", entry["msg"])
	assert.Equal(t, "0xa1", entry["participant"])
	assert.Equal(t, "info", entry["level"])
}
