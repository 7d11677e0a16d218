package encoder

import (
	"context"
	"crypto/sha256"
	"image"
)

// Mock is a deterministic synthetic encoder for tests: it maps a
// text/image input to a unit vector seeded from the SHA-256 of a byte
// representation of the input, so the same input always yields the same
// vector and distinct inputs yield (with overwhelming probability)
// distinct vectors.
type Mock struct {
	dimension int
}

// NewMock builds a Mock encoder with the given vector dimension
// (512 if dimension <= 0).
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 512
	}
	return &Mock{dimension: dimension}
}

func (m *Mock) Name() string   { return "mock" }
func (m *Mock) Dimension() int { return m.dimension }

func (m *Mock) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return m.seeded([]byte("text:" + text)), nil
}

func (m *Mock) EncodeImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		out[i] = m.seeded(imageFingerprint(img))
	}
	return out, nil
}

func (m *Mock) seeded(seed []byte) []float32 {
	v := make([]float32, m.dimension)
	h := seed
	for i := 0; i < m.dimension; i++ {
		if i%32 == 0 {
			sum := sha256.Sum256(append(h, byte(i/32)))
			h = sum[:]
		}
		v[i] = float32(h[i%32]) - 127.5
	}
	return normalize(v)
}

// imageFingerprint hashes a deterministic sample of pixels so identical
// decoded images (even from different byte encodings) hash the same.
func imageFingerprint(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var buf []byte
	const samples = 16
	for sy := 0; sy < samples; sy++ {
		for sx := 0; sx < samples; sx++ {
			x := bounds.Min.X + (sx*w)/samples
			y := bounds.Min.Y + (sy*h)/samples
			r, g, b, a := img.At(x, y).RGBA()
			buf = append(buf, byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8))
		}
	}
	sum := sha256.Sum256(buf)
	return sum[:]
}
