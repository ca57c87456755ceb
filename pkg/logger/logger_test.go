package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.log")

	cfg := &Config{
		Level:      "DEBUG",
		Filename:   file,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
		Compress:   false,
	}

	log, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.Same(t, log, Log)

	Log.Info("Test log message")
	Sync()

	_, err = os.Stat(file)
	assert.NoError(t, err)
}

func TestInitLoggerConsoleOnly(t *testing.T) {
	log, err := InitLogger(&Config{Level: "INFO"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	cfg := &Config{
		Level:    "INVALID",
		Filename: filepath.Join(t.TempDir(), "test_invalid.log"),
	}

	_, err := InitLogger(cfg)
	assert.Error(t, err)
}
