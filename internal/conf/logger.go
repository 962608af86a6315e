package conf

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger: console output in development,
// JSON otherwise
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if c.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(w).
			With().
			Timestamp().
			Logger()
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
