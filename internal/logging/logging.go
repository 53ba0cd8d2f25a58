// Package logging constructs the structured JSON logger used across the
// service. Level comes from LOG_LEVEL; default is info.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(component string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(os.Getenv("LOG_LEVEL"))).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
