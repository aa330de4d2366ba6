package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaProvider calls a local Ollama embeddings API.
type OllamaProvider struct {
	client *resty.Client
	model  string
}

// NewOllamaProvider creates a provider against the given base URL
// (http://localhost:11434 when empty).
func NewOllamaProvider(endpoint, model string) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	return &OllamaProvider{client: c, model: model}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed generates one vector per input text. Ollama has no batch endpoint,
// so inputs are sent sequentially; dim is fitted client-side.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(&ollamaEmbedRequest{Model: p.model, Prompt: text}).
			Post("/api/embeddings")
		if err != nil {
			return nil, fmt.Errorf("ollama request: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
		}
		var er ollamaEmbedResponse
		if err := json.Unmarshal(resp.Body(), &er); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if er.Error != "" {
			return nil, fmt.Errorf("ollama: %s", er.Error)
		}
		vec := make([]float32, len(er.Embedding))
		for j, v := range er.Embedding {
			vec[j] = float32(v)
		}
		out[i] = fitDim(vec, dim)
	}
	return out, nil
}
