package encoder

import (
	"context"
	"fmt"
	"image"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini wraps Google's generative-ai-go SDK's embedding endpoint. Text
// only, same reasoning as OpenAI — EmbedContent is a text/document
// embedding call, not an image encoder.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGemini builds a Gemini backend. cfg.APIKey is required.
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini encoder: API key required (set GEMINI_API_KEY)")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 512
	}

	return &Gemini{
		client:    client,
		model:     "gemini-embedding-001",
		dimension: dimension,
	}, nil
}

func (g *Gemini) Name() string   { return "gemini:" + g.model }
func (g *Gemini) Dimension() int { return g.dimension }

func (g *Gemini) EncodeText(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding error: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embedding: no values returned")
	}
	return normalize(res.Embedding.Values), nil
}

func (g *Gemini) EncodeImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	return nil, ErrUnsupported
}
