package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// BedrockProvider calls the AWS Bedrock runtime InvokeModel API with a
// Titan text-embedding model, authenticating with a Bedrock API key.
type BedrockProvider struct {
	client *resty.Client
	model  string
}

// NewBedrockProvider creates a provider. endpoint must be a Bedrock runtime
// base URL (region-specific); apiKey is the Bedrock bearer token.
func NewBedrockProvider(endpoint, apiKey, model string) *BedrockProvider {
	if endpoint == "" {
		endpoint = "https://bedrock-runtime.us-east-1.amazonaws.com"
	}
	if model == "" {
		model = "amazon.titan-embed-text-v2:0"
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &BedrockProvider{client: c, model: model}
}

func (p *BedrockProvider) Name() string { return "aws" }

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// titanDims are the output sizes Titan v2 supports natively.
var titanDims = map[int]bool{256: true, 512: true, 1024: true}

// Embed invokes the model once per input text. Titan only emits a fixed set
// of dimensionalities, so other sizes are fitted client-side.
func (p *BedrockProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	nativeDim := 0
	if titanDims[dim] {
		nativeDim = dim
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(&titanEmbedRequest{InputText: text, Dimensions: nativeDim, Normalize: true}).
			Post(fmt.Sprintf("/model/%s/invoke", url.PathEscape(p.model)))
		if err != nil {
			return nil, fmt.Errorf("bedrock request: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("bedrock status %d: %s", resp.StatusCode(), resp.String())
		}
		var er titanEmbedResponse
		if err := json.Unmarshal(resp.Body(), &er); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		vec := make([]float32, len(er.Embedding))
		for j, v := range er.Embedding {
			vec[j] = float32(v)
		}
		out[i] = fitDim(vec, dim)
	}
	return out, nil
}
