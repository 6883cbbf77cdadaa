package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sirrobot01/zipscout/internal/config"
)

var (
	defaultLogger zerolog.Logger
	defaultOnce   sync.Once
	logPath       string
)

// GetLogPath returns the path of the rotated log file.
func GetLogPath() string {
	return logPath
}

func writers() io.Writer {
	cfg := config.Get()
	logPath = filepath.Join(cfg.Path, "logs", "zipscout.log")

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	file := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(console, file)
}

// New returns a logger tagged with a component name, at the configured level.
func New(component string) zerolog.Logger {
	level := parseLevel(config.Get().LogLevel)
	return zerolog.New(writers()).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Default returns the shared application logger.
func Default() zerolog.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New("zipscout")
	})
	return defaultLogger
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
