package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	log "github.com/sirupsen/logrus"
)

// Config controls where and how verbosely the service logs.
type Config struct {
	Level      string
	Directory  string
	MaxAgeDays int
	// Stdout mirrors file output to the console.
	Stdout bool
}

// LogFormatter writes "timestamp [LEVEL] message k=v ..." lines.
type LogFormatter struct {
	TimestampFormat string
}

// Format renders one entry.
func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format(f.TimestampFormat))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString("] ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func init() {
	log.SetFormatter(&LogFormatter{TimestampFormat: "2006-01-02 15:04:05.000"})
	log.SetOutput(os.Stderr)
}

// Open switches logging to hourly-rotated files under cfg.Directory.
func Open(cfg Config) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	dir := cfg.Directory
	if dir == "" {
		dir = "./logs"
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	rl, err := rotatelogs.New(
		filepath.Join(dir, "shelterstat-%Y-%m-%d-%H.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "shelterstat.log")),
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize log rotation: %w", err)
	}

	if cfg.Stdout {
		log.SetOutput(io.MultiWriter(os.Stdout, rl))
	} else {
		log.SetOutput(rl)
	}
	return nil
}

// WithFields starts an entry carrying structured context.
func WithFields(fields map[string]interface{}) *log.Entry {
	return log.WithFields(log.Fields(fields))
}

// WithError starts an entry carrying err.
func WithError(err error) *log.Entry {
	return log.WithError(err)
}

func Info(message string) { log.Info(message) }

func Warn(message string) { log.Warn(message) }

func Error(message string) { log.Error(message) }

func Debug(message string) { log.Debug(message) }

func Infof(format string, args ...interface{}) { log.Infof(format, args...) }

func Warnf(format string, args ...interface{}) { log.Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }

// Fatalf logs and exits with status 1.
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
