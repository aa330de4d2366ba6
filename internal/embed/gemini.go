package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// GeminiProvider calls the Google Generative Language embeddings API via
// the batchEmbedContents endpoint.
type GeminiProvider struct {
	client *resty.Client
	model  string
}

// NewGeminiProvider creates a provider against the given endpoint (the
// public v1beta API when empty).
func NewGeminiProvider(endpoint, apiKey, model string) *GeminiProvider {
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	if apiKey != "" {
		c.SetHeader("x-goog-api-key", apiKey)
	}
	return &GeminiProvider{client: c, model: model}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// Embed issues one batchEmbedContents call for all inputs, requesting dim
// output dimensions natively.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:                "models/" + p.model,
			Content:              geminiContent{Parts: []geminiPart{{Text: t}}},
			OutputDimensionality: dim,
		}
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post(fmt.Sprintf("/models/%s:batchEmbedContents", p.model))
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode(), resp.String())
	}
	var er geminiBatchResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(er.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range er.Embeddings {
		vec := make([]float32, len(e.Values))
		for j, v := range e.Values {
			vec[j] = float32(v)
		}
		// Gemini normalizes only full-size outputs.
		out[i] = fitDim(Normalize(vec), dim)
	}
	return out, nil
}
