// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a new zerolog.Logger for the given component. Call sites
// should use .Stack() on error events to include stacks. The level is taken
// from CORTEX_LOG_LEVEL (default info).
func New(component string) zerolog.Logger {
	// Wire zerolog to github.com/pkg/errors so stacks survive marshaling,
	// attaching one to plain std errors when .Stack() is used.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	lvl := zerolog.InfoLevel
	if s := os.Getenv("CORTEX_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			lvl = parsed
		}
	}

	return zerolog.New(os.Stdout).Level(lvl).With().
		Str("component", component).
		Timestamp().
		Logger()
}
