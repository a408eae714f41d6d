package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"plate-scanner/internal/domain/plate"
)

// Detector locates license plates in a frame. Implementations must return
// boxes clamped to image bounds with confidence in [0,1].
type Detector interface {
	Detect(img gocv.Mat) ([]plate.Detection, error)
	Close() error
}

// DNNDetector runs a single-class ONNX plate-detection model through the
// OpenCV DNN backend. Not safe for concurrent use; each pipeline worker owns
// its own instance.
type DNNDetector struct {
	net        gocv.Net
	inputSize  int
	confFloor  float64
	nmsOverlap float32
}

// NewDNNDetector loads the model eagerly so a broken model path fails at
// construction rather than on the first frame.
func NewDNNDetector(modelPath string, inputSize int, confFloor float64) (*DNNDetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load detection model %s: empty network", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set dnn target: %w", err)
	}

	if inputSize <= 0 {
		inputSize = 640
	}
	return &DNNDetector{
		net:        net,
		inputSize:  inputSize,
		confFloor:  confFloor,
		nmsOverlap: 0.45,
	}, nil
}

func (d *DNNDetector) Detect(img gocv.Mat) ([]plate.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Head layout is 1 x (4+classes) x candidates; flatten and transpose so
	// each row is one candidate [cx, cy, w, h, score...].
	sz := out.Size()
	if len(sz) != 3 {
		return nil, fmt.Errorf("detect: unexpected output dims %v", sz)
	}
	rowLen := sz[1]
	flat := out.Reshape(1, rowLen)
	defer flat.Close()
	rows := gocv.NewMat()
	defer rows.Close()
	gocv.Transpose(flat, &rows)

	scaleX := float32(img.Cols()) / float32(d.inputSize)
	scaleY := float32(img.Rows()) / float32(d.inputSize)

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < rows.Rows(); i++ {
		score := rows.GetFloatAt(i, 4)
		for c := 5; c < rowLen; c++ {
			if s := rows.GetFloatAt(i, c); s > score {
				score = s
			}
		}
		if float64(score) < d.confFloor {
			continue
		}
		cx := rows.GetFloatAt(i, 0) * scaleX
		cy := rows.GetFloatAt(i, 1) * scaleY
		w := rows.GetFloatAt(i, 2) * scaleX
		h := rows.GetFloatAt(i, 3) * scaleY
		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, score)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(d.confFloor), d.nmsOverlap)
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	dets := make([]plate.Detection, 0, len(keep))
	for _, idx := range keep {
		r := boxes[idx].Intersect(bounds)
		if r.Empty() {
			continue
		}
		dets = append(dets, plate.Detection{
			BBox:       plate.BBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y},
			Confidence: float64(scores[idx]),
		})
	}
	return dets, nil
}

func (d *DNNDetector) Close() error {
	return d.net.Close()
}
