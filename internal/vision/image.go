package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrBadImage marks bytes that could not be decoded as an image. Distinct
// from ErrNoFace, which is a valid outcome on a decodable image.
var ErrBadImage = errors.New("undecodable image bytes")

// DecodeImage decodes JPEG/PNG/GIF bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return img, nil
}

// resizeImage scales img to the target size with bilinear interpolation.
func resizeImage(img image.Image, targetW, targetH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// upscale enlarges img by an integer factor. Used by the high-recall
// detector retry to surface small faces.
func upscale(img image.Image, factor int) *image.RGBA {
	if factor <= 1 {
		return resizeImage(img, img.Bounds().Dx(), img.Bounds().Dy())
	}
	b := img.Bounds()
	return resizeImage(img, b.Dx()*factor, b.Dy()*factor)
}

// cropRegion extracts a face region with fractional padding on each side,
// clamped to the image bounds. Returns nil for degenerate regions.
func cropRegion(img image.Image, r Region, padFrac float64) *image.RGBA {
	b := img.Bounds()

	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return nil
	}

	padW := int(float64(w) * padFrac)
	padH := int(float64(h) * padFrac)

	x1 := clampI(r.X1-padW, b.Min.X, b.Max.X)
	y1 := clampI(r.Y1-padH, b.Min.Y, b.Max.Y)
	x2 := clampI(r.X2+padW, b.Min.X, b.Max.X)
	y2 := clampI(r.Y2+padH, b.Min.Y, b.Max.Y)
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	draw.Draw(crop, crop.Bounds(), img, image.Pt(x1, y1), draw.Src)
	return crop
}

// toCHW converts an image to CHW float32 with per-channel normalization:
//
//	pixel = (pixel - mean) / std
func toCHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	w := targetW
	h := targetH

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()

			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}

	return data
}

func clampI(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
