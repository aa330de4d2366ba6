// Package engine orchestrates add, query and reinforce over the
// classifier, embedder and store.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/sector"
	"github.com/cortexmem/cortex/internal/store"
)

// meanVecDim is the fixed dimensionality of the stored mean vector used
// for waypoint matching, independent of the embedding tier.
const meanVecDim = embed.SyntheticDim

// lockStripes serializes add/reinforce per memory id without a lock table.
const lockStripes = 64

// Engine is the memory engine core. It is safe for concurrent use.
type Engine struct {
	cfg   *config.Config
	store store.Store
	cls   *sector.Classifier
	emb   embed.Embedder
	log   zerolog.Logger

	locks [lockStripes]sync.Mutex

	// now is the millisecond clock, swappable in tests.
	now func() int64

	// decayInfo reports (lastDecayRun, lastPruneRun); bound by the service
	// once the worker exists.
	mu        sync.RWMutex
	decayInfo func() (int64, int64)
}

// New constructs the engine with its collaborators injected.
func New(cfg *config.Config, st store.Store, cls *sector.Classifier, emb embed.Embedder, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		store: st,
		cls:   cls,
		emb:   emb,
		log:   log,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// BindDecayInfo attaches the decay worker's last-run reporter for stats.
func (e *Engine) BindDecayInfo(f func() (int64, int64)) {
	e.mu.Lock()
	e.decayInfo = f
	e.mu.Unlock()
}

func (e *Engine) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &e.locks[h.Sum32()%lockStripes]
}

// Get returns one memory by id.
func (e *Engine) Get(ctx context.Context, id string) (*model.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("memory id is required: %w", model.ErrInvalidInput)
	}
	return e.store.Memories().Get(ctx, id)
}

// List returns a filtered page of memories.
func (e *Engine) List(ctx context.Context, req model.ListRequest) (*model.ListPage, error) {
	if req.Sector != "" && !model.ValidSector(req.Sector) {
		return nil, fmt.Errorf("unknown sector %q: %w", req.Sector, model.ErrInvalidInput)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative: %w", model.ErrInvalidInput)
	}
	return e.store.Memories().List(ctx, req)
}

// Reinforce bumps a memory's salience by delta (the configured default when
// delta is nil), advancing last_seen_at, and returns the new salience.
func (e *Engine) Reinforce(ctx context.Context, id string, delta *float64) (float64, error) {
	if id == "" {
		return 0, fmt.Errorf("memory id is required: %w", model.ErrInvalidInput)
	}
	d := e.cfg.SalienceReinforceDelta
	if delta != nil {
		d = *delta
	}
	if d < 0 {
		return 0, fmt.Errorf("delta must be non-negative: %w", model.ErrInvalidInput)
	}

	mu := e.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := e.store.Memories().Get(ctx, id)
	if err != nil {
		return 0, err
	}
	next := m.Salience + d
	if next > 1 {
		next = 1
	}
	now := e.now()
	if now <= m.LastSeenAt {
		now = m.LastSeenAt + 1
	}
	if err := e.store.Memories().UpdateSalience(ctx, id, next, now); err != nil {
		return 0, err
	}
	return next, nil
}

// Delete removes a memory, its vectors and any waypoints touching it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("memory id is required: %w", model.ErrInvalidInput)
	}
	return e.store.Memories().Delete(ctx, id)
}

// Stats summarizes sector and tier counts, waypoints and worker runs.
func (e *Engine) Stats(ctx context.Context) (*model.Stats, error) {
	tally, err := e.store.Memories().Tally(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := e.store.Waypoints().Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &model.Stats{
		Total:     tally.Total,
		BySector:  tally.BySector,
		ByTier:    tally.ByTier,
		Waypoints: edges,
	}
	e.mu.RLock()
	info := e.decayInfo
	e.mu.RUnlock()
	if info != nil {
		st.DecayLastRun, st.PruneLastRun = info()
	}
	return st, nil
}
