// Package engineservice wires the engine, decay worker and HTTP surface
// into a runnable service.
package engineservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/api"
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/decay"
	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/factory"
	"github.com/cortexmem/cortex/internal/health"
	"github.com/cortexmem/cortex/internal/logger"
	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/sector"
	"github.com/cortexmem/cortex/internal/store"
)

// Run starts the memory engine HTTP service and blocks until shutdown or
// error.
func Run() error {
	log := logger.New("cortexd")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}
	log.Info().
		Str("tier", cfg.Tier).
		Str("provider", cfg.Provider).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Int("decay_interval_minutes", cfg.DecayIntervalMinutes).
		Msg("memory engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store unavailable")
		return err
	}

	emb, err := factory.NewEmbedder(cfg, st.EmbedLogs(), log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("embedder unavailable")
		return err
	}

	cls := sector.New()
	if cfg.SectorPatternsFile != "" {
		if err := cls.LoadFile(cfg.SectorPatternsFile); err != nil {
			log.Error().Stack().Err(err).Msg("failed to load sector patterns")
			return err
		}
		log.Info().Str("file", cfg.SectorPatternsFile).Msg("sector patterns loaded")
	}

	eng := engine.New(cfg, st, cls, emb, logger.New("engine"))

	worker := decay.NewWorker(st, decay.Config{
		Interval:    time.Duration(cfg.DecayIntervalMinutes) * time.Minute,
		Shards:      cfg.DecayShards,
		PruneWeight: cfg.WaypointPruneWeight,
		PruneEvery:  time.Duration(cfg.WaypointPruneDays) * 24 * time.Hour,
	}, logger.New("decay"))
	eng.BindDecayInfo(worker.LastRuns)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()

	svcHealth := startHealthCheckers(ctx, cfg, log, st, emb)

	handler := api.NewHandler(eng, worker, svcHealth.IsHealthy)
	server := newHTTPServer(ctx, cfg, handler.Router())
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
		}
		// Join the decay worker before closing the store.
		wg.Wait()
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
		log.Info().Msg("server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		stop()
		wg.Wait()
		_ = st.Close()
		return err
	}
}

// startHealthCheckers starts the component probes and the service-level
// aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, emb embed.Embedder) *health.ServiceChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := health.NewProbeChecker("store", st.Ping, probeTimeout, log)
	go storeChecker.Start(ctx, interval)

	embChecker := health.NewProbeChecker("embedder", func(ctx context.Context) error {
		_, err := emb.EmbedOne(ctx, "health probe", model.SectorSemantic)
		return err
	}, probeTimeout, log)
	go embChecker.Start(ctx, interval)

	svc := health.NewServiceChecker(log, storeChecker, embChecker)
	go svc.Start(ctx, interval)
	return svc
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
