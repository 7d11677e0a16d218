package imagefetch

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Normalize converts img to a memory/latency guard size: if
// max(width, height) exceeds maxSize, it is scaled down preserving aspect
// ratio using a high-quality filter. Images already within the bound are
// returned unchanged. Color is converted to a canonical RGBA buffer
// either way so downstream encoders see a uniform pixel format.
func Normalize(img image.Image, maxSize int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	targetW, targetH := w, h
	if maxSize > 0 {
		longest := w
		if h > longest {
			longest = h
		}
		if longest > maxSize {
			scale := float64(maxSize) / float64(longest)
			targetW = int(float64(w)*scale + 0.5)
			targetH = int(float64(h)*scale + 0.5)
			if targetW < 1 {
				targetW = 1
			}
			if targetH < 1 {
				targetH = 1
			}
		}
	}

	if targetW == w && targetH == h {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
		return out
	}

	out := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, bounds, xdraw.Src, nil)
	return out
}
