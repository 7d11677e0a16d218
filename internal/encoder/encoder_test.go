package encoder

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

func vecNorm(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return math.Sqrt(sumSq)
}

func TestNewFallsBackToCLIPHTTPForKnownAndEmptyNames(t *testing.T) {
	enc, err := New(Config{ModelName: "clip-ViT-B-32"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := enc.(*CLIPHTTP); !ok {
		t.Errorf("expected *CLIPHTTP, got %T", enc)
	}

	enc, err = New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := enc.(*CLIPHTTP); !ok {
		t.Errorf("expected *CLIPHTTP for empty model name, got %T", enc)
	}
}

func TestNewRejectsUnknownModel(t *testing.T) {
	_, err := New(Config{ModelName: "not-a-real-model"})
	if err == nil {
		t.Fatal("expected error for unknown model name")
	}
}

func TestMockEncodeTextDeterministic(t *testing.T) {
	m := NewMock(512)
	v1, err := m.EncodeText(context.Background(), "a watercolor fantasy landscape")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := m.EncodeText(context.Background(), "a watercolor fantasy landscape")
	if err != nil {
		t.Fatal(err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic encoding, differed at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}

	v3, _ := m.EncodeText(context.Background(), "a gritty cyberpunk cityscape")
	same := true
	for i := range v1 {
		if v1[i] != v3[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected distinct inputs to produce distinct vectors")
	}
}

func TestMockEncodeTextUnitNorm(t *testing.T) {
	m := NewMock(512)
	v, err := m.EncodeText(context.Background(), "brief")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 512 {
		t.Fatalf("expected 512 dims, got %d", len(v))
	}
	if n := vecNorm(v); math.Abs(n-1) > 1e-5 {
		t.Errorf("expected unit norm, got %v", n)
	}
}

func TestMockEncodeImagesPreservesOrderAndNorm(t *testing.T) {
	m := NewMock(512)
	img1 := solidImage(10, 10, color.RGBA{R: 255, A: 255})
	img2 := solidImage(10, 10, color.RGBA{B: 255, A: 255})

	vecs, err := m.EncodeImages(context.Background(), []image.Image{img1, img2})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if n := vecNorm(v); math.Abs(n-1) > 1e-5 {
			t.Errorf("vector %d: expected unit norm, got %v", i, n)
		}
	}

	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected distinct images to produce distinct vectors")
	}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := make([]float32, 8)
	out := normalize(v)
	for _, x := range out {
		if x != 0 {
			t.Fatalf("expected zero vector to stay zero, got %v", out)
		}
	}
}
