package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with CLI-specific functionality.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
	file   *os.File
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	default:
		writer = os.Stderr
	}

	if cfg.Format == "console" || cfg.Format == "" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.Kitchen,
		}
	}

	l := &Logger{config: cfg}

	// A file sink always receives JSON, regardless of the console format,
	// so the persisted log referenced by fatal banners stays parseable.
	if cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		l.file = file
		writer = zerolog.MultiLevelWriter(writer, file)
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger()
	zlog = zlog.Level(parseLogLevel(cfg.Level))
	l.zlog = zlog
	return l, nil
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// ForPhase returns a logger scoped to a provisioning phase.
func (l *Logger) ForPhase(phase string) zerolog.Logger {
	return l.zlog.With().Str("phase", phase).Logger()
}

// ForComponent returns a logger scoped to a named component.
func (l *Logger) ForComponent(component string) zerolog.Logger {
	return l.zlog.With().Str("component", component).Logger()
}

// LogFile returns the path of the persisted log file, or "" when logging
// only goes to the console.
func (l *Logger) LogFile() string {
	return l.config.FilePath
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
