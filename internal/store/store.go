// Package store defines the persistence contract for the memory engine.
// Implementations live under internal/store/<driver>/ (sqlite, postgres).
package store

import (
	"context"

	"github.com/cortexmem/cortex/internal/model"
)

// Store exposes persistence operations required by the engine. Every method
// is individually atomic; the store is the only authoritative shared state.
type Store interface {
	Memories() Memories
	Vectors() Vectors
	Waypoints() Waypoints
	EmbedLogs() EmbedLogs

	Ping(ctx context.Context) error
	Close() error
}

// MeanRef is one row of the mean-vector scan used for waypoint matching.
type MeanRef struct {
	ID            string
	PrimarySector model.Sector
	MeanVec       []float32
}

// SectorTally buckets memory counts for stats.
type SectorTally struct {
	Total    int64
	BySector map[model.Sector]int64
	ByTier   map[string]int64
}

type Memories interface {
	// Insert persists the memory, its per-sector vectors and any waypoint
	// edges in one atomic unit. A duplicate id yields model.ErrConflict.
	Insert(ctx context.Context, m *model.Memory, vectors []*model.Vector, edges []*model.Waypoint) error

	Get(ctx context.Context, id string) (*model.Memory, error)
	List(ctx context.Context, req model.ListRequest) (*model.ListPage, error)

	// All streams every memory; used by the decay worker.
	All(ctx context.Context) ([]*model.Memory, error)

	// MeanVecs returns the mean-vector scan rows for one user scope.
	MeanVecs(ctx context.Context, userID string) ([]MeanRef, error)

	UpdateSalience(ctx context.Context, id string, salience float64, lastSeenAt int64) error

	// ReplaceContent swaps content for its fingerprint and flips cold.
	ReplaceContent(ctx context.Context, id, fingerprint string) error

	// RestoreHeat clears the cold flag when a cold memory is recalled. The
	// content stays the fingerprint and the vectors are left as stored.
	RestoreHeat(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error
	Tally(ctx context.Context) (*SectorTally, error)
}

type Vectors interface {
	// BySector scans all stored vectors for one sector and user scope.
	// An empty userID scans globally.
	BySector(ctx context.Context, userID string, s model.Sector) ([]model.SectorCandidate, error)

	ByMemory(ctx context.Context, memoryID string) ([]*model.Vector, error)
}

type Waypoints interface {
	// Upsert installs src's outgoing edge under the single-outgoing-edge
	// invariant: an existing strictly stronger edge is kept, anything
	// weaker is replaced.
	Upsert(ctx context.Context, src, dst string, weight float64, now int64) error

	// Outgoing returns src's single outgoing edge, or nil.
	Outgoing(ctx context.Context, src string) (*model.Waypoint, error)

	// Reinforce bumps the (src, dst) edge weight by delta, capped at 1.
	Reinforce(ctx context.Context, src, dst string, delta float64, now int64) error

	// DeleteBelow prunes all edges with weight under the threshold and
	// reports how many were removed.
	DeleteBelow(ctx context.Context, threshold float64) (int64, error)

	Count(ctx context.Context) (int64, error)
}

type EmbedLogs interface {
	Append(ctx context.Context, rec *model.EmbedLog) error
}
