// Package factory constructs drivers and providers from configuration.
package factory

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/embed"
	storepkg "github.com/cortexmem/cortex/internal/store"
	storepg "github.com/cortexmem/cortex/internal/store/postgres"
	storesqlite "github.com/cortexmem/cortex/internal/store/sqlite"
)

// NewStore returns the configured store.Store driver.
func NewStore(cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		st, err := storesqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("store ready")
		return st, nil
	case "postgres":
		st, err := storepg.New(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info().Str("driver", "postgres").Msg("store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown CORTEX_DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewProvider returns the external embedding provider for cfg, or nil for
// the synthetic backend.
func NewProvider(cfg *config.Config, log zerolog.Logger) (embed.Provider, error) {
	switch cfg.Provider {
	case "synthetic":
		return nil, nil
	case "ollama":
		return embed.NewOllamaProvider(cfg.ProviderEndpoint, cfg.EmbedModel), nil
	case "openai":
		return embed.NewOpenAIProvider("openai", cfg.ProviderEndpoint, os.Getenv("OPENAI_API_KEY"), cfg.EmbedModel), nil
	case "local":
		if cfg.ProviderEndpoint == "" {
			return nil, fmt.Errorf("CORTEX_PROVIDER_ENDPOINT is required for the local provider")
		}
		return embed.NewOpenAIProvider("local", cfg.ProviderEndpoint, os.Getenv("LOCAL_EMBED_API_KEY"), cfg.EmbedModel), nil
	case "gemini":
		return embed.NewGeminiProvider(cfg.ProviderEndpoint, os.Getenv("GEMINI_API_KEY"), cfg.EmbedModel), nil
	case "aws":
		return embed.NewBedrockProvider(cfg.ProviderEndpoint, os.Getenv("AWS_BEARER_TOKEN_BEDROCK"), cfg.EmbedModel), nil
	default:
		return nil, fmt.Errorf("unknown CORTEX_PROVIDER: %s", cfg.Provider)
	}
}

// NewEmbedder wires the provider into the tiered coordinator.
func NewEmbedder(cfg *config.Config, sink embed.LogSink, log zerolog.Logger) (embed.Embedder, error) {
	provider, err := NewProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	name := "synthetic"
	if provider != nil {
		name = provider.Name()
	}
	log.Info().Str("tier", cfg.Tier).Str("provider", name).Str("mode", cfg.EmbedMode).Msg("embedder ready")
	return embed.NewCoordinator(cfg, provider, sink, log), nil
}
