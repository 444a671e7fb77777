// Package logging builds the zerolog.Logger shared by both binaries,
// adapted from the reference stack's own structured-logging setup.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatmesh/chatmesh/internal/config"
)

// New builds a zerolog.Logger for the given component ("manager" or
// "worker") per cfg. An unrecognized level falls back to info rather
// than rejecting startup over a typo'd config value.
func New(component string, cfg config.LoggingConfig) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return zerolog.New(output).With().
		Timestamp().
		Str("service", component).
		Logger()
}
