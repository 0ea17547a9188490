package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter(t *testing.T) {
	f := &LogFormatter{TimestampFormat: "2006-01-02 15:04:05"}
	entry := &log.Entry{
		Time:    time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "cache miss",
		Data:    log.Fields{"region": "PA", "elapsed": "3ms"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01 09:30:00 [WARNING] cache miss elapsed=3ms region=PA\n", string(out))
}

func TestOpenWritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	require.NoError(t, Open(Config{Level: "debug", Directory: dir}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	Info("hello")
	matches, err := filepath.Glob(filepath.Join(dir, "shelterstat-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestOpenFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})
	require.NoError(t, Open(Config{Level: "chatty", Directory: t.TempDir()}))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
