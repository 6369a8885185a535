package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/config"
)

// NewLogger creates a zerolog.Logger for a single homeproxy run. Diagnostics
// go to stderr so the operator-facing status lines on stdout stay readable.
// Every entry carries the service name and a run_id.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp().
		Str("service", "homeproxy").
		Str("run_id", uuid.NewString())

	if cfg.DNSProvider != "" {
		ctx = ctx.Str("dns_provider", cfg.DNSProvider)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	return logger.Level(level)
}
