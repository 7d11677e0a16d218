// Package encoder implements Component C, the embedding generator: it
// turns normalized images and brief text into unit-length 512-dim CLIP
// vectors via one of several backends.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrUnsupported is returned by backends that cannot encode a given
// modality (OpenAI and Gemini embeddings accept text only).
var ErrUnsupported = errors.New("encoder: modality not supported by this backend")

// Encoder produces L2-normalized embeddings from images and text.
type Encoder interface {
	// EncodeImages encodes a batch of already-resized images, preserving
	// input order. Every returned vector has Dimension() elements and
	// unit L2 norm.
	EncodeImages(ctx context.Context, images []image.Image) ([][]float32, error)
	// EncodeText encodes a single brief string into a unit-length vector.
	EncodeText(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// Config carries the fields an Encoder backend needs; it mirrors
// internal/config.EncoderConfig without importing it, so this package
// stays usable independent of the TOML/env loading layer.
type Config struct {
	ModelName string
	BaseURL   string
	APIKey    string
	Dimension int
}

// New builds the Encoder named by cfg.ModelName, rejecting any name it
// doesn't recognize as a CLIP, OpenAI, or Gemini model. Falling back to
// the default model name for an unrecognized CLIP_MODEL_NAME happens
// upstream, in config.clamp, before cfg ever reaches New.
func New(cfg Config) (Encoder, error) {
	switch cfg.ModelName {
	case "text-embedding-3-small":
		return NewOpenAI(cfg)
	case "gemini-embedding-001":
		return NewGemini(cfg)
	case "clip-ViT-B-32", "":
		return NewCLIPHTTP(cfg)
	default:
		return nil, fmt.Errorf("unknown encoder model: %s", cfg.ModelName)
	}
}

// normalize returns a copy of v scaled to unit L2 norm. A zero vector is
// returned unchanged (division by zero would produce NaNs; an all-zero embedding
// is already a degenerate encoder output the caller should reject
// upstream, not something this helper should hide).
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
