package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	config := NewLoggerConfig(true, []string{path}, []string{"stderr"})
	assert.True(t, config.Level.Enabled(zapcore.DebugLevel))

	logger, err := config.Build()
	require.NoError(t, err)
	logger.Debug("Exchange rate", zap.String("exchange", "UniswapV2"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"timestamp"`)
	assert.Contains(t, line, `"exchange":"UniswapV2"`)
}

func TestNewLoggerConfigInfoLevel(t *testing.T) {
	config := NewLoggerConfig(false, []string{"stdout"}, []string{"stderr"})
	assert.False(t, config.Level.Enabled(zapcore.DebugLevel))
	assert.True(t, config.Level.Enabled(zapcore.InfoLevel))
}
