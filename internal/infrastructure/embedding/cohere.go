package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"NewsDigest/internal/ports"
)

const (
	defaultCohereModel = "embed-english-v3.0"
	// cohereMaxTexts is the per-request text limit of the embed endpoint.
	cohereMaxTexts = 96
)

// CohereEmbedder embeds texts with the Cohere v2 embed API.
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

var _ ports.Embedder = (*CohereEmbedder)(nil)

// NewCohereEmbedder builds a client; baseURL is optional and used for self-hosted gateways.
func NewCohereEmbedder(apiKey, model, baseURL string, timeout time.Duration) *CohereEmbedder {
	if model == "" {
		model = defaultCohereModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := newCohereClient(apiKey, baseURL, &http.Client{Timeout: timeout})
	return &CohereEmbedder{client: client, model: model}
}

func newCohereClient(apiKey, baseURL string, httpClient *http.Client) *cohereclient.Client {
	if baseURL != "" {
		return cohereclient.NewClient(
			cohereclient.WithToken(apiKey),
			cohereclient.WithHTTPClient(httpClient),
			cohereclient.WithBaseURL(baseURL),
		)
	}
	return cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
}

// ModelName returns the Cohere model id.
func (c *CohereEmbedder) ModelName() string { return c.model }

// EmbedBatch embeds texts, splitting them into requests of at most 96 texts.
func (c *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += cohereMaxTexts {
		end := min(start+cohereMaxTexts, len(texts))
		vectors, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (c *CohereEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CohereEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("cohere embed returned %d vectors for %d texts", len(resp.Embeddings.Float), len(texts))
	}
	return toFloat32(resp.Embeddings.Float), nil
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, vec := range in {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out
}
