package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cortexmem/cortex/internal/embed"
)

func TestClampSim(t *testing.T) {
	assert.Equal(t, 0.8, ClampSim(0.8))
	assert.Equal(t, 1.0, ClampSim(1.2))
	assert.InDelta(t, 0.25, ClampSim(-0.5), 1e-9)
	assert.InDelta(t, 0.0, ClampSim(-1), 1e-9)
}

func TestRecency(t *testing.T) {
	now := time.Now().UnixMilli()
	assert.Equal(t, 1.0, Recency(now, now))
	assert.Equal(t, 1.0, Recency(now+1000, now), "future timestamps clamp to 1")

	thirtyDaysAgo := now - 30*86_400_000
	assert.InDelta(t, 0.3679, Recency(thirtyDaysAgo, now), 1e-3)
}

func TestCompositeBounds(t *testing.T) {
	assert.Equal(t, 0.0, Composite(Components{}))
	assert.InDelta(t, 1.0, Composite(Components{Sim: 1, Salience: 1, Recency: 1, Waypoint: 1}), 1e-9)
	assert.InDelta(t, 0.6, Composite(Components{Sim: 1}), 1e-9)
	assert.InDelta(t, 0.2, Composite(Components{Salience: 1}), 1e-9)
}

func TestBlendHybrid(t *testing.T) {
	assert.InDelta(t, 0.5, BlendHybrid(1, 0), 1e-9)
	assert.InDelta(t, 0.75, BlendHybrid(0.5, 1), 1e-9)
}

func TestBM25RanksExactMatchFirst(t *testing.T) {
	query := embed.Tokenize("capital of France")
	docs := [][]string{
		embed.Tokenize("the capital of France is Paris"),
		embed.Tokenize("France exports wine"),
		embed.Tokenize("kubernetes pod eviction"),
	}
	scores := BM25(query, docs)

	assert.Equal(t, 1.0, scores[0], "best match normalizes to 1")
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.Equal(t, 0.0, scores[2])
}

func TestBM25EmptyInputs(t *testing.T) {
	assert.Empty(t, BM25(nil, nil))
	scores := BM25(nil, [][]string{{"a"}})
	assert.Equal(t, []float64{0}, scores)
}
