// Package embed turns text into fixed-dimension vectors, coordinating a
// pluggable provider backend with a deterministic synthetic fallback.
package embed

import "context"

// Provider produces vector representations for text via an external
// service. Implementations embed every input text, requesting dim output
// dimensions (adjusting client-side when the API cannot).
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
}
