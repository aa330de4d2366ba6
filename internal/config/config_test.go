package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewParsesDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "hybrid", cfg.Tier)
	require.Equal(t, "synthetic", cfg.Provider)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 0.3, cfg.MinScore)
	require.Equal(t, 0.75, cfg.WaypointThreshold)
	require.Equal(t, 120, cfg.DecayIntervalMinutes)
	require.Equal(t, 7, cfg.WaypointPruneDays)
}

func TestResolveDefaultsRejectsUnknownTier(t *testing.T) {
	cfg := NewForTesting()
	cfg.Tier = "turbo"
	require.Error(t, cfg.ResolveDefaults())
}

func TestResolveDefaultsRejectsUnknownProvider(t *testing.T) {
	cfg := NewForTesting()
	cfg.Provider = "acme"
	require.Error(t, cfg.ResolveDefaults())
}

func TestResolveDefaultsRequiresPostgresDSN(t *testing.T) {
	cfg := NewForTesting()
	cfg.DBDriver = "postgres"
	require.Error(t, cfg.ResolveDefaults())

	cfg.PostgresDSN = "postgres://localhost/cortex"
	require.NoError(t, cfg.ResolveDefaults())
}

func TestResolveDefaultsFillsOllamaEndpoint(t *testing.T) {
	cfg := NewForTesting()
	cfg.Provider = "ollama"
	require.NoError(t, cfg.ResolveDefaults())
	require.Equal(t, "http://localhost:11434", cfg.ProviderEndpoint)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORTEX_TIER", "deep")
	t.Setenv("CORTEX_PROVIDER", "openai")
	t.Setenv("CORTEX_MIN_SCORE", "0.5")
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "deep", cfg.Tier)
	require.Equal(t, "openai", cfg.Provider)
	require.Equal(t, 0.5, cfg.MinScore)
}
