package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lamim/portfoliomatch/internal/httpclient"
)

// CLIPHTTP talks to a local inference server exposing CLIP's text and
// image towers over HTTP — the default backend (CLIP_MODEL_NAME =
// clip-ViT-B-32), since the model itself is not an API product.
type CLIPHTTP struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type clipImageRequest struct {
	Model string `json:"model"`
	Image string `json:"image_base64"`
}

type clipTextRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type clipEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewCLIPHTTP builds a CLIPHTTP backend. baseURL defaults to a local
// inference server on the conventional CLIP-serving port.
func NewCLIPHTTP(cfg Config) (*CLIPHTTP, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8008"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 512
	}
	model := cfg.ModelName
	if model == "" {
		model = "clip-ViT-B-32"
	}
	return &CLIPHTTP{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		client:    httpclient.GetSharedClient(60 * time.Second),
	}, nil
}

func (c *CLIPHTTP) Name() string   { return "clip-http:" + c.model }
func (c *CLIPHTTP) Dimension() int { return c.dimension }

func (c *CLIPHTTP) EncodeText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot encode empty text")
	}

	req := clipTextRequest{Model: c.model, Prompt: text}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	emb, err := c.post(ctx, "/embed_text", body)
	if err != nil {
		return nil, fmt.Errorf("clip text encode error: %w", err)
	}
	return normalize(emb), nil
}

// EncodeImages fans out one request per image through a bounded
// semaphore, since the inference server has no native batch endpoint.
// Order is preserved in the returned slice.
func (c *CLIPHTTP) EncodeImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("cannot encode an empty image batch")
	}

	const maxConcurrency = 10
	results := make([][]float32, len(images))
	errs := make([]error, len(images))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range images {
		wg.Add(1)
		go func(idx int, im image.Image) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			default:
			}

			emb, err := c.encodeOneImage(ctx, im)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = emb
		}(i, img)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("failed to encode image %d: %w", i, err)
		}
	}
	return results, nil
}

func (c *CLIPHTTP) encodeOneImage(ctx context.Context, img image.Image) ([]float32, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encode image for transport: %w", err)
	}

	req := clipImageRequest{
		Model: c.model,
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	emb, err := c.post(ctx, "/embed_image", body)
	if err != nil {
		return nil, err
	}
	return normalize(emb), nil
}

func (c *CLIPHTTP) post(ctx context.Context, path string, body []byte) ([]float32, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("clip http request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("clip http error: %s - %s", resp.Status, string(respBody))
	}

	var decoded clipEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("clip http decode error: %w", err)
	}
	return decoded.Embedding, nil
}
