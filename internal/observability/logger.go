package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the process logger. Development mode writes
// human-readable console output at debug level; everything else writes JSON.
// A non-empty level overrides the default.
func NewLogger(appEnv, level string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, level)
}

func newLogger(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}
