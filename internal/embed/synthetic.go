package embed

import (
	"hash/fnv"
	"math/rand"

	"github.com/cortexmem/cortex/internal/model"
)

// SyntheticDim is the dimensionality of synthetic vectors.
const SyntheticDim = 256

// Synthetic produces deterministic lexical embeddings without any external
// provider. Each token gets a pseudo-random unit direction seeded by a
// stable 64-bit hash of "sector|token"; the text vector is the normalized
// sum of its token directions. The same (text, sector) pair always yields
// the same vector, and texts sharing content words land close together.
type Synthetic struct{}

// NewSynthetic returns the deterministic hashing embedder.
func NewSynthetic() *Synthetic { return &Synthetic{} }

func (s *Synthetic) Name() string { return "synthetic" }

// EmbedSector produces the vector for one (text, sector) pair.
func (s *Synthetic) EmbedSector(text string, sector model.Sector, dim int) []float32 {
	if dim <= 0 {
		dim = SyntheticDim
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// Nothing survived tokenization; hash the raw text instead.
		tokens = []string{text}
	}
	out := make([]float32, dim)
	for _, tok := range tokens {
		fill(out, seed(sector, tok))
	}
	return Normalize(out)
}

// seed returns the stable 64-bit FNV-1a hash of "sector|token".
func seed(sector model.Sector, token string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(sector)))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(token))
	return int64(h.Sum64())
}

// fill adds a unit pseudo-random direction for the given seed onto acc.
func fill(acc []float32, s int64) {
	rng := rand.New(rand.NewSource(s))
	v := make([]float32, len(acc))
	for i := range v {
		v[i] = float32(rng.Float64()*2 - 1)
	}
	Normalize(v)
	for i := range acc {
		acc[i] += v[i]
	}
}
