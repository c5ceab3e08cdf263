package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Region is one detected face in original-image pixel coordinates.
type Region struct {
	X1, Y1, X2, Y2 int
	Score          float32
}

// Detector runs RetinaFace face detection using ONNX Runtime. The minimum
// score is a per-call parameter so the same session serves both the fast
// pass and the high-recall retry.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	inputW        int
	inputH        int
}

// stride configuration for RetinaFace det_10g
var strides = []int{8, 16, 32}

// anchorsPerStride is the number of anchors per pixel at each stride
const anchorsPerStride = 2

// NewDetector loads the RetinaFace ONNX model.
func NewDetector(modelPath string) (*Detector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g score and bbox output shapes (no batch dimension):
	// scores: [12800,1] [3200,1] [800,1], bboxes: [12800,4] [3200,4] [800,4]
	// where 12800 = (640/8)^2 * 2 and so on per stride. Landmark outputs
	// exist in the model but are not requested.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}

	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)}, // scores stride 8
		{"471", ort.NewShape(3200, 1)},  // scores stride 16
		{"494", ort.NewShape(800, 1)},   // scores stride 32
		{"451", ort.NewShape(12800, 4)}, // bboxes stride 8
		{"474", ort.NewShape(3200, 4)},  // bboxes stride 16
		{"497", ort.NewShape(800, 4)},   // bboxes stride 32
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect finds face regions with score >= minScore, ordered by descending
// confidence.
func (d *Detector) Detect(img image.Image, minScore float32) ([]Region, error) {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	input := toCHW(img, d.inputW, d.inputH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
	copy(d.inputTensor.GetData(), input)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	regions := d.parseRegions(origW, origH, minScore)
	return nms(regions, 0.4), nil
}

// parseRegions decodes anchor-based outputs at strides 8, 16, 32 back into
// original-image coordinates.
func (d *Detector) parseRegions(origW, origH int, minScore float32) []Region {
	var regions []Region

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()   // [N, 1]
		bboxes := d.outputTensors[si+3].GetData() // [N, 4]

		fmW := d.inputW / stride
		fmH := d.inputH / stride

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					score := scores[idx]

					if score >= minScore {
						anchorX := float32(cx) * float32(stride)
						anchorY := float32(cy) * float32(stride)

						// Box outputs are anchor-to-edge distances in
						// stride units.
						st := float32(stride)
						x1 := (anchorX - bboxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - bboxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + bboxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + bboxes[idx*4+3]*st) * scaleH

						regions = append(regions, Region{
							X1:    clampI(int(x1), 0, origW),
							Y1:    clampI(int(y1), 0, origH),
							X2:    clampI(int(x2), 0, origW),
							Y2:    clampI(int(y2), 0, origH),
							Score: score,
						})
					}
					idx++
				}
			}
		}
	}

	return regions
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs Non-Maximum Suppression, keeping the highest-scoring box per
// overlapping cluster.
func nms(regions []Region, iouThreshold float32) []Region {
	if len(regions) == 0 {
		return regions
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Score > regions[j].Score
	})

	keep := make([]bool, len(regions))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(regions); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(regions); j++ {
			if !keep[j] {
				continue
			}
			if iou(regions[i], regions[j]) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Region
	for i, r := range regions {
		if keep[i] {
			result = append(result, r)
		}
	}
	return result
}

func iou(a, b Region) float32 {
	x1 := math.Max(float64(a.X1), float64(b.X1))
	y1 := math.Max(float64(a.Y1), float64(b.Y1))
	x2 := math.Min(float64(a.X2), float64(b.X2))
	y2 := math.Min(float64(a.Y2), float64(b.Y2))

	intersection := math.Max(0, x2-x1) * math.Max(0, y2-y1)

	areaA := float64((a.X2 - a.X1) * (a.Y2 - a.Y1))
	areaB := float64((b.X2 - b.X1) * (b.Y2 - b.Y1))
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return float32(intersection / union)
}
