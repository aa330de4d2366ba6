// Package decay runs the periodic salience decay, cold compression and
// waypoint pruning worker.
package decay

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/store"
)

// coldThreshold is the salience below which a memory is compressed.
const coldThreshold = 0.25

const millisPerDay = 86_400_000.0

// Config controls worker cadence and pruning.
type Config struct {
	Interval    time.Duration // decay cycle period
	Shards      int           // parallel shards per cycle
	PruneWeight float64       // edges below this weight are pruned
	PruneEvery  time.Duration // pruning cadence
}

// Worker decays salience for every memory, fingerprints memories that go
// cold, and periodically prunes weak waypoints.
type Worker struct {
	store store.Store
	log   zerolog.Logger
	cfg   Config

	lastRun   atomic.Int64
	lastPrune atomic.Int64
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(st store.Store, cfg Config, log zerolog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Hour
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = 7 * 24 * time.Hour
	}
	w := &Worker{store: st, log: log, cfg: cfg}
	// Pruning is due PruneEvery after startup, not at boot.
	w.lastPrune.Store(time.Now().UnixMilli())
	return w
}

// LastRuns reports the epoch-millis of the last decay and prune cycles.
func (w *Worker) LastRuns() (decay, prune int64) {
	return w.lastRun.Load(), w.lastPrune.Load()
}

// Run starts the decay loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Int("shards", w.cfg.Shards).Msg("decay worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("decay worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				// Log and continue; the next tick retries the whole cycle.
				w.log.Error().Err(err).Msg("decay cycle failed")
			}
			if w.pruneDue() {
				if err := w.PruneNow(ctx); err != nil {
					w.log.Error().Err(err).Msg("waypoint prune failed")
				}
			}
		}
	}
}

// RunOnce executes a single decay cycle across all shards.
func (w *Worker) RunOnce(ctx context.Context) error {
	mems, err := w.store.Memories().All(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	var wg sync.WaitGroup
	for shard := 0; shard < w.cfg.Shards; shard++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			for _, m := range mems {
				if int(shardOf(m.ID, w.cfg.Shards)) != shard {
					continue
				}
				if err := w.decayOne(ctx, m, now); err != nil {
					w.log.Warn().Err(err).Str("memory", m.ID).Msg("decay skipped memory")
				}
			}
		}(shard)
	}
	wg.Wait()

	w.lastRun.Store(now)
	w.log.Debug().Int("memories", len(mems)).Msg("decay cycle complete")
	return nil
}

// decayOne applies exponential decay to one memory and compresses it when
// it crosses into the cold tier. last_seen_at is left untouched.
func (w *Worker) decayOne(ctx context.Context, m *model.Memory, now int64) error {
	days := float64(now-m.LastSeenAt) / millisPerDay
	if days < 0 {
		days = 0
	}
	next := m.Salience * math.Exp(-m.DecayLambda*days)

	if next != m.Salience {
		if err := w.store.Memories().UpdateSalience(ctx, m.ID, next, m.LastSeenAt); err != nil {
			return err
		}
	}

	if next < coldThreshold && !m.Cold {
		if err := w.store.Memories().ReplaceContent(ctx, m.ID, Fingerprint(m.Content)); err != nil {
			return err
		}
	}
	return nil
}

// PruneNow deletes all waypoints below the configured weight.
func (w *Worker) PruneNow(ctx context.Context) error {
	removed, err := w.store.Waypoints().DeleteBelow(ctx, w.cfg.PruneWeight)
	if err != nil {
		return err
	}
	w.lastPrune.Store(time.Now().UnixMilli())
	w.log.Info().Int64("removed", removed).Float64("threshold", w.cfg.PruneWeight).Msg("waypoints pruned")
	return nil
}

func (w *Worker) pruneDue() bool {
	return time.Now().UnixMilli()-w.lastPrune.Load() >= w.cfg.PruneEvery.Milliseconds()
}

func shardOf(id string, shards int) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32() % uint32(shards)
}
