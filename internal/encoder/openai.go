package encoder

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI wraps go-openai's embeddings endpoint. Text only: the
// embeddings API has no image input, so EncodeImages always fails with
// ErrUnsupported.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAI builds an OpenAI backend. cfg.APIKey is required.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai encoder: API key required (set OPENAI_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 512
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     "text-embedding-3-small",
		dimension: dimension,
	}, nil
}

func (o *OpenAI) Name() string   { return "openai:" + o.model }
func (o *OpenAI) Dimension() int { return o.dimension }

func (o *OpenAI) EncodeText(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding: no data returned")
	}
	return normalize(resp.Data[0].Embedding), nil
}

func (o *OpenAI) EncodeImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	return nil, ErrUnsupported
}
