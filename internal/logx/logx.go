package logx

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the service-wide logger. LOG_LEVEL and LOG_PRETTY tune it per
// environment; defaults suit containers.
func New(service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if os.Getenv("LOG_PRETTY") == "true" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return out.Level(level).With().Timestamp().Str("service", service).Logger()
}
