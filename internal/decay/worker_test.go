package decay

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/store/sqlite"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "cortex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertMemory(t *testing.T, st store.Store, id string, salience float64, lastSeen int64, s model.Sector) {
	t.Helper()
	m := &model.Memory{
		ID:            id,
		Content:       "original content of " + id + " with plenty of detail beyond sixty four runes of text",
		PrimarySector: s,
		CreatedAt:     lastSeen,
		UpdatedAt:     lastSeen,
		LastSeenAt:    lastSeen,
		Salience:      salience,
		DecayLambda:   model.SectorProfiles[s].DecayLambda,
		MeanVec:       []float32{1, 0},
	}
	vec := &model.Vector{MemoryID: id, Sector: s, Vec: []float32{1, 0}, Dim: 2}
	require.NoError(t, st.Memories().Insert(context.Background(), m, []*model.Vector{vec}, nil))
}

func TestDecayToColdFingerprints(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sixtyDaysAgo := time.Now().UnixMilli() - 60*86_400_000
	insertMemory(t, st, "old", 0.4, sixtyDaysAgo, model.SectorEmotional)

	w := NewWorker(st, Config{Shards: 2, PruneWeight: 0.05}, zerolog.Nop())
	require.NoError(t, w.RunOnce(ctx))

	m, err := st.Memories().Get(ctx, "old")
	require.NoError(t, err)
	// 0.4 * e^(-0.020*60) ~= 0.120
	assert.InDelta(t, 0.120, m.Salience, 0.005)
	assert.True(t, m.Cold)
	assert.Contains(t, m.Content, "#")
	assert.LessOrEqual(t, len([]rune(strings.Split(m.Content, "#")[0])), 64)
	assert.Equal(t, sixtyDaysAgo, m.LastSeenAt, "decay never advances last_seen_at")

	// Vectors are retained through compression.
	vecs, err := st.Vectors().ByMemory(ctx, "old")
	require.NoError(t, err)
	assert.Len(t, vecs, 1)

	decayRun, _ := w.LastRuns()
	assert.NotZero(t, decayRun)
}

func TestDecayIsMonotonicAndSkipsFresh(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	insertMemory(t, st, "fresh", 0.8, now, model.SectorSemantic)

	w := NewWorker(st, Config{Shards: 1, PruneWeight: 0.05}, zerolog.Nop())
	require.NoError(t, w.RunOnce(ctx))

	m, err := st.Memories().Get(ctx, "fresh")
	require.NoError(t, err)
	assert.LessOrEqual(t, m.Salience, 0.8)
	assert.Greater(t, m.Salience, 0.79, "a just-seen memory barely decays")
	assert.False(t, m.Cold)
	assert.NotContains(t, m.Content, "#")
}

func TestDecayDoesNotRefingerprint(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sixtyDaysAgo := time.Now().UnixMilli() - 60*86_400_000
	insertMemory(t, st, "old", 0.4, sixtyDaysAgo, model.SectorEmotional)

	w := NewWorker(st, Config{Shards: 1, PruneWeight: 0.05}, zerolog.Nop())
	require.NoError(t, w.RunOnce(ctx))
	once, err := st.Memories().Get(ctx, "old")
	require.NoError(t, err)

	require.NoError(t, w.RunOnce(ctx))
	twice, err := st.Memories().Get(ctx, "old")
	require.NoError(t, err)

	assert.Equal(t, once.Content, twice.Content, "already-cold content is not re-fingerprinted")
	assert.LessOrEqual(t, twice.Salience, once.Salience)
}

func TestDecayProcessesAllShards(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sixtyDaysAgo := time.Now().UnixMilli() - 60*86_400_000
	for i := 0; i < 20; i++ {
		insertMemory(t, st, fmt.Sprintf("m-%02d", i), 0.9, sixtyDaysAgo, model.SectorEpisodic)
	}

	w := NewWorker(st, Config{Shards: 4, PruneWeight: 0.05}, zerolog.Nop())
	require.NoError(t, w.RunOnce(ctx))

	all, err := st.Memories().All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 20)
	for _, m := range all {
		// 0.9 * e^(-0.015*60) ~= 0.366: every shard decayed its slice.
		assert.InDelta(t, 0.366, m.Salience, 0.005, m.ID)
	}
}

func TestPruneNowRemovesWeakEdges(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	weights := []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.05, 0.04, 0.03}
	for i, weight := range weights {
		src := fmt.Sprintf("s%d", i)
		dst := fmt.Sprintf("d%d", i)
		insertMemory(t, st, src, 0.5, now, model.SectorSemantic)
		insertMemory(t, st, dst, 0.5, now, model.SectorSemantic)
		require.NoError(t, st.Waypoints().Upsert(ctx, src, dst, weight, now))
	}

	w := NewWorker(st, Config{Shards: 1, PruneWeight: 0.05}, zerolog.Nop())
	require.NoError(t, w.PruneNow(ctx))

	n, err := st.Waypoints().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	_, pruneRun := w.LastRuns()
	assert.NotZero(t, pruneRun)
}

func TestFingerprintShape(t *testing.T) {
	long := strings.Repeat("é", 100)
	fp := Fingerprint(long)
	parts := strings.Split(fp, "#")
	require.Len(t, parts, 2)
	assert.Len(t, []rune(parts[0]), 64)
	assert.Len(t, parts[1], 16)

	assert.Equal(t, fp, Fingerprint(long), "fingerprint is stable")
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	st := newStore(t)
	w := NewWorker(st, Config{Interval: 10 * time.Millisecond, Shards: 1, PruneWeight: 0.05}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
