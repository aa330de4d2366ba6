// Package storetest holds the driver conformance suite shared by the
// sqlite and postgres stores.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// makeStore must return a clean, isolated store per invocation.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("InsertGetRoundTrip", func(t *testing.T) { testInsertGet(t, makeStore(t)) })
	t.Run("InsertConflict", func(t *testing.T) { testInsertConflict(t, makeStore(t)) })
	t.Run("VectorScanScoping", func(t *testing.T) { testVectorScan(t, makeStore(t)) })
	t.Run("WaypointSingleOutgoing", func(t *testing.T) { testWaypointUpsert(t, makeStore(t)) })
	t.Run("WaypointReinforceCap", func(t *testing.T) { testWaypointReinforce(t, makeStore(t)) })
	t.Run("WaypointPrune", func(t *testing.T) { testWaypointPrune(t, makeStore(t)) })
	t.Run("SalienceAndContentUpdates", func(t *testing.T) { testUpdates(t, makeStore(t)) })
	t.Run("ListPagination", func(t *testing.T) { testList(t, makeStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDelete(t, makeStore(t)) })
	t.Run("Tally", func(t *testing.T) { testTally(t, makeStore(t)) })
	t.Run("EmbedLogAppend", func(t *testing.T) { testEmbedLog(t, makeStore(t)) })
}

// Seed inserts a minimal memory with one semantic vector, returning it.
func Seed(t *testing.T, s store.Store, id, userID string, salience float64) *model.Memory {
	t.Helper()
	now := time.Now().UnixMilli()
	m := &model.Memory{
		ID:            id,
		UserID:        userID,
		Content:       "content of " + id,
		PrimarySector: model.SectorSemantic,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastSeenAt:    now,
		Salience:      salience,
		DecayLambda:   model.SectorProfiles[model.SectorSemantic].DecayLambda,
		MeanVec:       []float32{1, 0, 0},
	}
	vec := &model.Vector{MemoryID: id, Sector: model.SectorSemantic, Vec: []float32{1, 0, 0}, Dim: 3}
	require.NoError(t, s.Memories().Insert(context.Background(), m, []*model.Vector{vec}, nil))
	return m
}

func testInsertGet(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	now := time.Now().UnixMilli()

	m := &model.Memory{
		ID:            "mem-1",
		UserID:        "u1",
		Content:       "the capital of France is Paris",
		PrimarySector: model.SectorSemantic,
		Tags:          []string{"geo", "facts"},
		Meta:          map[string]string{"source": "test"},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastSeenAt:    now,
		Salience:      0.5,
		DecayLambda:   0.005,
		MeanVec:       []float32{0.6, 0.8},
	}
	vecs := []*model.Vector{
		{MemoryID: "mem-1", Sector: model.SectorSemantic, Vec: []float32{0.6, 0.8}, Dim: 2},
		{MemoryID: "mem-1", Sector: model.SectorEpisodic, Vec: []float32{0, 1}, Dim: 2},
	}
	require.NoError(t, s.Memories().Insert(ctx, m, vecs, nil))

	got, err := s.Memories().Get(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, model.SectorSemantic, got.PrimarySector)
	assert.Equal(t, []string{"geo", "facts"}, got.Tags)
	assert.Equal(t, map[string]string{"source": "test"}, got.Meta)
	assert.Equal(t, []float32{0.6, 0.8}, got.MeanVec)
	assert.False(t, got.Cold)
	assert.Equal(t, 0.5, got.Salience)

	stored, err := s.Vectors().ByMemory(ctx, "mem-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = s.Memories().Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testInsertConflict(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	Seed(t, s, "dup", "u1", 0.5)
	now := time.Now().UnixMilli()
	m := &model.Memory{
		ID: "dup", Content: "x", PrimarySector: model.SectorSemantic,
		CreatedAt: now, UpdatedAt: now, LastSeenAt: now, Salience: 0.5, DecayLambda: 0.005,
	}
	err := s.Memories().Insert(context.Background(), m, nil, nil)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func testVectorScan(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	Seed(t, s, "a", "u1", 0.5)
	Seed(t, s, "b", "u1", 0.7)
	Seed(t, s, "c", "u2", 0.5)

	scoped, err := s.Vectors().BySector(ctx, "u1", model.SectorSemantic)
	require.NoError(t, err)
	assert.Len(t, scoped, 2)
	for _, c := range scoped {
		assert.Equal(t, []float32{1, 0, 0}, c.Vec)
		assert.NotZero(t, c.LastSeenAt)
	}

	all, err := s.Vectors().BySector(ctx, "", model.SectorSemantic)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.Vectors().BySector(ctx, "u1", model.SectorEmotional)
	require.NoError(t, err)
	assert.Empty(t, none)

	refs, err := s.Memories().MeanVecs(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, model.SectorSemantic, refs[0].PrimarySector)
}

func testWaypointUpsert(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	Seed(t, s, "a", "u1", 0.5)
	Seed(t, s, "b", "u1", 0.5)
	Seed(t, s, "c", "u1", 0.5)
	now := time.Now().UnixMilli()

	require.NoError(t, s.Waypoints().Upsert(ctx, "a", "b", 0.8, now))
	w, err := s.Waypoints().Outgoing(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "b", w.DstID)

	// A stronger edge replaces the outgoing edge entirely.
	require.NoError(t, s.Waypoints().Upsert(ctx, "a", "c", 0.9, now))
	w, err = s.Waypoints().Outgoing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", w.DstID)
	assert.Equal(t, 0.9, w.Weight)

	// A weaker edge loses against the current one.
	require.NoError(t, s.Waypoints().Upsert(ctx, "a", "b", 0.5, now))
	w, err = s.Waypoints().Outgoing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", w.DstID)
	assert.Equal(t, 0.9, w.Weight)

	n, err := s.Waypoints().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testWaypointReinforce(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	Seed(t, s, "a", "u1", 0.5)
	Seed(t, s, "b", "u1", 0.5)
	now := time.Now().UnixMilli()

	require.NoError(t, s.Waypoints().Upsert(ctx, "a", "b", 0.97, now))
	require.NoError(t, s.Waypoints().Reinforce(ctx, "a", "b", 0.05, now))
	w, err := s.Waypoints().Outgoing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Weight, "weight is capped at 1")

	// Mismatched dst is a no-op.
	require.NoError(t, s.Waypoints().Reinforce(ctx, "a", "zzz", 0.05, now))
}

func testWaypointPrune(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	now := time.Now().UnixMilli()
	weights := []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.05, 0.04, 0.03}
	for i, w := range weights {
		src := fmt.Sprintf("src-%d", i)
		dst := fmt.Sprintf("dst-%d", i)
		Seed(t, s, src, "u1", 0.5)
		Seed(t, s, dst, "u1", 0.5)
		require.NoError(t, s.Waypoints().Upsert(ctx, src, dst, w, now))
	}

	removed, err := s.Waypoints().DeleteBelow(ctx, 0.05)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := s.Waypoints().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func testUpdates(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	m := Seed(t, s, "a", "u1", 0.5)

	later := m.LastSeenAt + 5000
	require.NoError(t, s.Memories().UpdateSalience(ctx, "a", 0.6, later))
	got, err := s.Memories().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Salience)
	assert.Equal(t, later, got.LastSeenAt)

	require.NoError(t, s.Memories().ReplaceContent(ctx, "a", "fingerprint#abc"))
	got, err = s.Memories().Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Cold)
	assert.Equal(t, "fingerprint#abc", got.Content)

	// Vectors survive compression.
	vecs, err := s.Vectors().ByMemory(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, vecs, 1)

	require.NoError(t, s.Memories().RestoreHeat(ctx, "a"))
	got, err = s.Memories().Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.Cold)

	assert.ErrorIs(t, s.Memories().UpdateSalience(ctx, "nope", 0.5, later), model.ErrNotFound)
	assert.ErrorIs(t, s.Memories().ReplaceContent(ctx, "nope", "f"), model.ErrNotFound)
}

func testList(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		Seed(t, s, fmt.Sprintf("m-%02d", i), "u1", 0.5)
	}
	Seed(t, s, "other", "u2", 0.5)

	page, err := s.Memories().List(ctx, model.ListRequest{UserID: "u1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Memories, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := s.Memories().List(ctx, model.ListRequest{UserID: "u1", Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Memories, 2)
	assert.Empty(t, rest.NextCursor)

	bySector, err := s.Memories().List(ctx, model.ListRequest{Sector: model.SectorSemantic, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, bySector.Memories, 6)

	all, err := s.Memories().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func testDelete(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	Seed(t, s, "a", "u1", 0.5)
	Seed(t, s, "b", "u1", 0.5)
	now := time.Now().UnixMilli()
	require.NoError(t, s.Waypoints().Upsert(ctx, "a", "b", 0.8, now))
	require.NoError(t, s.Waypoints().Upsert(ctx, "b", "a", 0.8, now))

	require.NoError(t, s.Memories().Delete(ctx, "b"))

	_, err := s.Memories().Get(ctx, "b")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Both edges referencing b are gone with it.
	n, err := s.Waypoints().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	vecs, err := s.Vectors().ByMemory(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, vecs)

	assert.ErrorIs(t, s.Memories().Delete(ctx, "b"), model.ErrNotFound)
}

func testTally(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	Seed(t, s, "a", "u1", 0.9)
	Seed(t, s, "b", "u1", 0.3)
	Seed(t, s, "c", "u1", 0.1)

	tally, err := s.Memories().Tally(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tally.Total)
	assert.Equal(t, int64(3), tally.BySector[model.SectorSemantic])
	assert.Equal(t, int64(1), tally.ByTier["hot"])
	assert.Equal(t, int64(1), tally.ByTier["warm"])
	assert.Equal(t, int64(1), tally.ByTier["cold"])
}

func testEmbedLog(t *testing.T, s store.Store) {
	defer func() { _ = s.Close() }()
	rec := &model.EmbedLog{
		ID: "log-1", TS: time.Now().UnixMilli(), Provider: "synthetic",
		Sector: model.SectorSemantic, InputTokens: 3, Dim: 256, OK: true,
	}
	require.NoError(t, s.EmbedLogs().Append(context.Background(), rec))
}
