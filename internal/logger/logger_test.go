package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewSetsLevelFromEnv(t *testing.T) {
	t.Setenv("CORTEX_LOG_LEVEL", "warn")
	log := New("engine")
	require.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	t.Setenv("CORTEX_LOG_LEVEL", "nope")
	log := New("engine")
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
