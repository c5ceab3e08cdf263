package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/your-org/faceid/internal/config"
)

type detectCall struct {
	width    int
	minScore float32
}

type stubDetector struct {
	calls   []detectCall
	results [][]Region
	err     error
}

func (d *stubDetector) Detect(img image.Image, minScore float32) ([]Region, error) {
	d.calls = append(d.calls, detectCall{width: img.Bounds().Dx(), minScore: minScore})
	if d.err != nil {
		return nil, d.err
	}
	idx := len(d.calls) - 1
	if idx < len(d.results) {
		return d.results[idx], nil
	}
	return nil, nil
}

type stubEncoder struct {
	faces []image.Image
	err   error
}

func (e *stubEncoder) Encode(face image.Image) ([]float32, error) {
	e.faces = append(e.faces, face)
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, EmbeddingDim), nil
}

func testVisionConfig() config.VisionConfig {
	return config.VisionConfig{
		DetectionThreshold: 0.6,
		RetryThreshold:     0.4,
		RetryUpscale:       2,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFastPassSkipsRetry(t *testing.T) {
	det := &stubDetector{results: [][]Region{
		{{X1: 10, Y1: 10, X2: 50, Y2: 50, Score: 0.9}},
	}}
	enc := &stubEncoder{}
	e := &Extractor{det: det, enc: enc, cfg: testVisionConfig()}

	encoding, err := e.Extract(pngBytes(t, 100, 100))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(encoding) != EmbeddingDim {
		t.Errorf("encoding length = %d, want %d", len(encoding), EmbeddingDim)
	}
	if len(det.calls) != 1 {
		t.Fatalf("detector calls = %d, want 1 (fast pass hit)", len(det.calls))
	}
	if det.calls[0].minScore != 0.6 {
		t.Errorf("fast pass threshold = %v, want 0.6", det.calls[0].minScore)
	}
	if len(enc.faces) != 1 {
		t.Fatalf("encoder calls = %d, want 1", len(enc.faces))
	}
}

func TestExtractEscalatesToRetry(t *testing.T) {
	det := &stubDetector{results: [][]Region{
		nil,
		{{X1: 20, Y1: 20, X2: 100, Y2: 100, Score: 0.45}},
	}}
	enc := &stubEncoder{}
	e := &Extractor{det: det, enc: enc, cfg: testVisionConfig()}

	if _, err := e.Extract(pngBytes(t, 100, 100)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(det.calls) != 2 {
		t.Fatalf("detector calls = %d, want 2", len(det.calls))
	}
	// Retry runs on the upsampled frame with the lowered floor.
	if det.calls[1].width != 200 {
		t.Errorf("retry frame width = %d, want 200", det.calls[1].width)
	}
	if det.calls[1].minScore != 0.4 {
		t.Errorf("retry threshold = %v, want 0.4", det.calls[1].minScore)
	}
}

func TestExtractNoFaceAfterBothPasses(t *testing.T) {
	det := &stubDetector{}
	e := &Extractor{det: det, enc: &stubEncoder{}, cfg: testVisionConfig()}

	_, err := e.Extract(pngBytes(t, 100, 100))
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("err = %v, want ErrNoFace", err)
	}
	if len(det.calls) != 2 {
		t.Errorf("detector calls = %d, want both passes attempted", len(det.calls))
	}
}

func TestExtractFirstFaceOnly(t *testing.T) {
	det := &stubDetector{results: [][]Region{
		{
			{X1: 10, Y1: 10, X2: 40, Y2: 40, Score: 0.95},
			{X1: 60, Y1: 60, X2: 90, Y2: 90, Score: 0.8},
		},
	}}
	enc := &stubEncoder{}
	e := &Extractor{det: det, enc: enc, cfg: testVisionConfig()}

	if _, err := e.Extract(pngBytes(t, 100, 100)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(enc.faces) != 1 {
		t.Fatalf("encoder calls = %d, want only the first region encoded", len(enc.faces))
	}
}

func TestExtractBadImage(t *testing.T) {
	e := &Extractor{det: &stubDetector{}, enc: &stubEncoder{}, cfg: testVisionConfig()}

	_, err := e.Extract([]byte("not an image"))
	if !errors.Is(err, ErrBadImage) {
		t.Fatalf("err = %v, want ErrBadImage", err)
	}
	if errors.Is(err, ErrNoFace) {
		t.Error("bad bytes must not be reported as no-face")
	}
}

func TestDetectFacesScalesBack(t *testing.T) {
	det := &stubDetector{results: [][]Region{
		{{X1: 40, Y1: 40, X2: 120, Y2: 120, Score: 0.5}},
	}}
	e := &Extractor{det: det, enc: &stubEncoder{}, cfg: testVisionConfig()}

	regions, err := e.DetectFaces(pngBytes(t, 100, 100))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("regions = %d, want 1", len(regions))
	}
	// Detection ran on the 2x frame; coordinates come back in original scale.
	r := regions[0]
	if r.X1 != 20 || r.Y1 != 20 || r.X2 != 60 || r.Y2 != 60 {
		t.Errorf("region = %+v, want coordinates halved", r)
	}
}

func TestCropRegionClampsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))

	crop := cropRegion(img, Region{X1: 40, Y1: 40, X2: 80, Y2: 80}, 0.1)
	if crop == nil {
		t.Fatal("crop = nil, want clamped region")
	}
	if crop.Bounds().Dx() > 50 || crop.Bounds().Dy() > 50 {
		t.Errorf("crop %v exceeds source bounds", crop.Bounds())
	}

	if got := cropRegion(img, Region{X1: 30, Y1: 30, X2: 30, Y2: 30}, 0.1); got != nil {
		t.Error("degenerate region must yield nil")
	}
}
