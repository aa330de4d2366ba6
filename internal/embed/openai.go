package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIProvider calls any OpenAI-compatible embeddings API. It backs both
// the "openai" provider and the "local" provider (a self-hosted
// OpenAI-compatible server).
type OpenAIProvider struct {
	client *resty.Client
	name   string
	model  string
}

// NewOpenAIProvider creates a provider. With an empty endpoint the public
// OpenAI API is used.
func NewOpenAIProvider(name, endpoint, apiKey, model string) *OpenAIProvider {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &OpenAIProvider{client: c, name: name, model: model}
}

func (p *OpenAIProvider) Name() string { return p.name }

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed issues one batched call for all inputs, requesting dim output
// dimensions natively.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&openaiEmbedRequest{Input: texts, Model: p.model, Dimensions: dim}).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", p.name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s status %d: %s", p.name, resp.StatusCode(), resp.String())
	}
	var er openaiEmbedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(er.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%s returned out-of-range index %d", p.name, d.Index)
		}
		out[d.Index] = fitDim(d.Embedding, dim)
	}
	return out, nil
}
