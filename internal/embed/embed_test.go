package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/model"
)

// --- Fakes ---

type fakeProvider struct {
	mu    sync.Mutex
	calls [][]string
	dims  []int
	fail  bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.dims = append(f.dims, dim)
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("boom")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type memorySink struct {
	mu   sync.Mutex
	recs []*model.EmbedLog
}

func (m *memorySink) Append(ctx context.Context, rec *model.EmbedLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func newCoordinator(tier, mode string, p Provider, sink LogSink) *Coordinator {
	cfg := config.NewForTesting()
	cfg.Tier = tier
	cfg.EmbedMode = mode
	return NewCoordinator(cfg, p, sink, zerolog.Nop())
}

// --- Tests ---

func TestFastTierIsFullySynthetic(t *testing.T) {
	p := &fakeProvider{}
	c := newCoordinator("fast", "simple", p, nil)

	res := c.EmbedBatch(context.Background(), "some text", []model.Sector{model.SectorSemantic, model.SectorEpisodic})
	require.Empty(t, res.Errs)
	require.Len(t, res.Vecs, 2)
	assert.Len(t, res.Vecs[model.SectorSemantic], SyntheticDim)
	assert.Empty(t, p.calls, "fast tier must not touch the provider")
}

func TestSmartTierSplitsSectors(t *testing.T) {
	p := &fakeProvider{}
	c := newCoordinator("smart", "simple", p, nil)

	res := c.EmbedBatch(context.Background(), "some text",
		[]model.Sector{model.SectorSemantic, model.SectorEpisodic, model.SectorReflective})
	require.Empty(t, res.Errs)
	assert.Len(t, res.Vecs[model.SectorSemantic], 384)
	assert.Len(t, res.Vecs[model.SectorReflective], 384)
	assert.Len(t, res.Vecs[model.SectorEpisodic], SyntheticDim)
	// Semantic-class sectors share one simple-mode call.
	require.Len(t, p.calls, 1)
	assert.Equal(t, []string{"some text"}, p.calls[0])
}

func TestDeepTierEmbedsAllSectorsViaProvider(t *testing.T) {
	p := &fakeProvider{}
	c := newCoordinator("deep", "simple", p, nil)

	res := c.EmbedBatch(context.Background(), "t", []model.Sector{model.SectorSemantic, model.SectorEmotional})
	require.Empty(t, res.Errs)
	assert.Len(t, res.Vecs[model.SectorSemantic], deepDim)
	assert.Len(t, res.Vecs[model.SectorEmotional], deepDim)
	require.Len(t, p.calls, 1)
}

func TestAdvancedModeIssuesPerSectorCalls(t *testing.T) {
	p := &fakeProvider{}
	c := newCoordinator("deep", "advanced", p, nil)

	res := c.EmbedBatch(context.Background(), "t", []model.Sector{model.SectorSemantic, model.SectorEmotional})
	require.Empty(t, res.Errs)
	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"semantic: t"}, p.calls[0])
	assert.Equal(t, []string{"emotional: t"}, p.calls[1])
}

func TestProviderFailureDropsSectorsNonFatally(t *testing.T) {
	p := &fakeProvider{fail: true}
	sink := &memorySink{}
	c := newCoordinator("smart", "simple", p, sink)

	res := c.EmbedBatch(context.Background(), "t",
		[]model.Sector{model.SectorSemantic, model.SectorEpisodic})

	// Synthetic sector survives; provider sector carries an EmbedError.
	require.Contains(t, res.Vecs, model.SectorEpisodic)
	require.Contains(t, res.Errs, model.SectorSemantic)
	assert.ErrorIs(t, res.Errs[model.SectorSemantic], model.ErrEmbedFailed)

	var failed int
	for _, r := range sink.recs {
		if !r.OK {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestEmbedOneSurfacesSectorError(t *testing.T) {
	p := &fakeProvider{fail: true}
	c := newCoordinator("deep", "simple", p, nil)

	_, err := c.EmbedOne(context.Background(), "t", model.SectorSemantic)
	require.ErrorIs(t, err, model.ErrEmbedFailed)

	var embErr *model.EmbedError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, model.SectorSemantic, embErr.Sector)
	assert.Equal(t, "fake", embErr.Provider)
}

func TestEmbedBatchDeduplicatesSectors(t *testing.T) {
	c := newCoordinator("fast", "simple", nil, nil)
	res := c.EmbedBatch(context.Background(), "t",
		[]model.Sector{model.SectorSemantic, model.SectorSemantic})
	require.Len(t, res.Vecs, 1)
}

func TestEmbedLogRecordsEveryAttempt(t *testing.T) {
	sink := &memorySink{}
	c := newCoordinator("fast", "simple", nil, sink)
	c.EmbedBatch(context.Background(), "one two three", []model.Sector{model.SectorSemantic})

	require.Len(t, sink.recs, 1)
	rec := sink.recs[0]
	assert.Equal(t, "synthetic", rec.Provider)
	assert.Equal(t, model.SectorSemantic, rec.Sector)
	assert.Equal(t, 3, rec.InputTokens)
	assert.Equal(t, SyntheticDim, rec.Dim)
	assert.True(t, rec.OK)
	assert.NotEmpty(t, rec.ID)
}

func TestDimForSectorByTier(t *testing.T) {
	cases := []struct {
		tier   string
		sector model.Sector
		dim    int
	}{
		{"hybrid", model.SectorSemantic, SyntheticDim},
		{"fast", model.SectorEmotional, SyntheticDim},
		{"smart", model.SectorSemantic, 384},
		{"smart", model.SectorReflective, 384},
		{"smart", model.SectorProcedural, SyntheticDim},
		{"deep", model.SectorEpisodic, deepDim},
	}
	for _, tc := range cases {
		c := newCoordinator(tc.tier, "simple", &fakeProvider{}, nil)
		assert.Equal(t, tc.dim, c.DimForSector(tc.sector), "%s/%s", tc.tier, tc.sector)
	}
}
