package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
)

// ErrNoFace means no face region was found after both detector passes.
// A valid outcome, not a processing failure; callers handle it distinctly.
var ErrNoFace = errors.New("no face found")

// cropPad is the fractional padding applied around a detected region
// before encoding.
const cropPad = 0.1

type regionDetector interface {
	Detect(img image.Image, minScore float32) ([]Region, error)
}

type faceEncoder interface {
	Encode(face image.Image) ([]float32, error)
}

// Extractor turns raw image bytes into a fixed-length face encoding. It
// escalates from a fast detector pass to a slower high-recall pass (the
// frame upsampled, the score floor lowered) before giving up with ErrNoFace.
//
// Multi-face images use only the first detected region; a known limitation,
// not silent behavior.
type Extractor struct {
	mu  sync.Mutex // ONNX sessions are single-flight
	det regionDetector
	enc faceEncoder
	cfg config.VisionConfig
}

// NewExtractor loads the detection and embedding models.
func NewExtractor(cfg config.VisionConfig) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	enc, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Extractor{det: det, enc: enc, cfg: cfg}, nil
}

// Extract decodes the image and computes the encoding of the first detected
// face. Returns ErrBadImage for undecodable bytes and ErrNoFace when both
// detector passes find nothing.
func (e *Extractor) Extract(imageData []byte) ([]float32, error) {
	img, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	frame, region, err := e.locate(img)
	if err != nil {
		return nil, err
	}

	face := cropRegion(frame, region, cropPad)
	if face == nil {
		return nil, ErrNoFace
	}

	start := time.Now()
	encoding, err := e.enc.Encode(face)
	if err != nil {
		return nil, fmt.Errorf("encode face: %w", err)
	}
	observability.ExtractDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())

	return encoding, nil
}

// DetectFaces runs only the high-recall detector pass and returns all face
// regions in original-image coordinates. Read-only; no encoding computed.
func (e *Extractor) DetectFaces(imageData []byte) ([]Region, error) {
	img, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	factor := e.cfg.RetryUpscale
	regions, err := e.det.Detect(upscale(img, factor), float32(e.cfg.RetryThreshold))
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	if factor > 1 {
		for i := range regions {
			regions[i].X1 /= factor
			regions[i].Y1 /= factor
			regions[i].X2 /= factor
			regions[i].Y2 /= factor
		}
	}
	return regions, nil
}

// locate runs the two-stage escalation and returns the frame the winning
// region's coordinates refer to (the retry pass works on an upsampled copy).
func (e *Extractor) locate(img image.Image) (image.Image, Region, error) {
	start := time.Now()
	regions, err := e.det.Detect(img, float32(e.cfg.DetectionThreshold))
	observability.ExtractDuration.WithLabelValues("detect_fast").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, Region{}, fmt.Errorf("detect: %w", err)
	}
	if len(regions) > 0 {
		return img, regions[0], nil
	}

	observability.DetectorRetries.Inc()
	upsampled := upscale(img, e.cfg.RetryUpscale)

	start = time.Now()
	regions, err = e.det.Detect(upsampled, float32(e.cfg.RetryThreshold))
	observability.ExtractDuration.WithLabelValues("detect_retry").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, Region{}, fmt.Errorf("detect retry: %w", err)
	}
	if len(regions) == 0 {
		return nil, Region{}, ErrNoFace
	}
	return upsampled, regions[0], nil
}

// Close releases the ONNX sessions.
func (e *Extractor) Close() {
	if d, ok := e.det.(*Detector); ok && d != nil {
		d.Close()
	}
	if em, ok := e.enc.(*Embedder); ok && em != nil {
		em.Close()
	}
}
