package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"plate-scanner/internal/domain/plate"
	"plate-scanner/internal/vision"
)

// Worker consumes tasks from its queue and runs the per-frame pipeline:
// detect, track, crop, recognize, reconcile history, annotate, emit. It
// exclusively owns the tracker and history of every camera pinned to it, so
// none of that state is synchronized.
type Worker struct {
	id       int
	detector vision.Detector
	ocr      vision.Recognizer

	ocrFloor    float64
	historySize int

	trackers  map[int]*Tracker
	histories map[int]*History

	tasks   <-chan Task
	results chan<- Result
	log     zerolog.Logger
}

func newWorker(id int, detector vision.Detector, ocr vision.Recognizer, cfg PoolConfig, tasks <-chan Task, results chan<- Result, log zerolog.Logger) *Worker {
	return &Worker{
		id:          id,
		detector:    detector,
		ocr:         ocr,
		ocrFloor:    cfg.OCRConfidenceFloor,
		historySize: cfg.HistorySize,
		trackers:    make(map[int]*Tracker),
		histories:   make(map[int]*History),
		tasks:       tasks,
		results:     results,
		log:         log.With().Int("worker_id", id).Logger(),
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.detector.Close()
	w.log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped")
			return
		case task := <-w.tasks:
			w.handle(ctx, task)
		}
	}
}

// handle isolates one task: any error or panic is logged, the task is
// abandoned without a partial result, and the loop moves on. A single bad
// frame must not kill the worker.
func (w *Worker) handle(ctx context.Context, task Task) {
	defer task.Frame.Close()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Int("camera_id", task.CameraID).Interface("panic", r).Msg("task panicked")
		}
	}()

	result, err := w.process(ctx, task)
	if err != nil {
		w.log.Error().Err(err).Int("camera_id", task.CameraID).Msg("task failed")
		return
	}

	select {
	case w.results <- result:
	case <-ctx.Done():
	}
}

func (w *Worker) process(ctx context.Context, task Task) (Result, error) {
	detections, err := w.detector.Detect(task.Frame)
	if err != nil {
		return Result{}, fmt.Errorf("detect: %w", err)
	}

	var records []plate.TrackRecord
	if len(detections) > 0 {
		boxes := make([]image.Rectangle, len(detections))
		for i, d := range detections {
			boxes[i] = image.Rect(d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2)
		}

		tracked := w.trackerFor(task.CameraID).Update(boxes)
		history := w.historyFor(task.CameraID)

		for _, tb := range tracked {
			started := time.Now()

			conf := overlapConfidence(tb.Box, detections)
			reading := w.readPlate(ctx, task.Frame, tb.Box)
			reading = history.Resolve(tb.ID, reading)

			records = append(records, plate.TrackRecord{
				TrackID:           tb.ID,
				BBox:              plate.BBox{X1: tb.Box.Min.X, Y1: tb.Box.Min.Y, X2: tb.Box.Max.X, Y2: tb.Box.Max.Y},
				Reading:           reading,
				DetectConfidence:  conf,
				OverallConfidence: (conf + reading.Confidence) / 2,
				LatencyMS:         time.Since(started).Milliseconds(),
			})
		}
	}

	annotated, err := annotateFrame(task.Frame, records)
	if err != nil {
		return Result{}, fmt.Errorf("annotate: %w", err)
	}

	return Result{
		CameraID:  task.CameraID,
		WorkerID:  w.id,
		Timestamp: task.Timestamp,
		Annotated: annotated,
		Records:   records,
	}, nil
}

func (w *Worker) trackerFor(cameraID int) *Tracker {
	t, ok := w.trackers[cameraID]
	if !ok {
		t = NewTracker()
		w.trackers[cameraID] = t
	}
	return t
}

func (w *Worker) historyFor(cameraID int) *History {
	h, ok := w.histories[cameraID]
	if !ok {
		h = NewHistory(w.historySize)
		w.histories[cameraID] = h
	}
	return h
}

// readPlate crops the tracked box (clamped to the frame), recognizes its
// text and normalizes the reading. Anything that fails validation or the
// confidence floor collapses to an empty reading with confidence 0.
func (w *Worker) readPlate(ctx context.Context, frame gocv.Mat, box image.Rectangle) plate.OCRReading {
	empty := plate.OCRReading{Method: "none"}

	roi := box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if roi.Empty() {
		return empty
	}

	region := frame.Region(roi)
	crop := region.Clone()
	region.Close()
	defer crop.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
	if err != nil {
		w.log.Debug().Err(err).Msg("crop encode failed")
		return empty
	}
	jpeg := buf.GetBytes()
	reading, err := w.ocr.Recognize(ctx, jpeg)
	buf.Close()
	if err != nil {
		w.log.Debug().Err(err).Msg("ocr failed")
		return empty
	}

	cleaned := vision.CleanPlateText(reading.Text)
	if reading.Confidence < w.ocrFloor || !vision.ValidatePlateText(cleaned) {
		return empty
	}
	reading.Text = cleaned
	return reading
}

// overlapConfidence recovers a tracked box's detector confidence from the
// raw detection with the largest intersection area, since the tracker drops
// per-box confidence. No overlapping detection means 0.
func overlapConfidence(box image.Rectangle, detections []plate.Detection) float64 {
	best := 0.0
	bestArea := 0
	for _, d := range detections {
		inter := box.Intersect(image.Rect(d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2))
		if area := inter.Dx() * inter.Dy(); area > bestArea {
			bestArea = area
			best = d.Confidence
		}
	}
	return best
}

// annotateFrame draws every track's box and label onto a copy of the frame
// and encodes it as JPEG.
func annotateFrame(frame gocv.Mat, records []plate.TrackRecord) ([]byte, error) {
	annotated := frame.Clone()
	defer annotated.Close()

	green := color.RGBA{G: 255}
	for _, rec := range records {
		box := image.Rect(rec.BBox.X1, rec.BBox.Y1, rec.BBox.X2, rec.BBox.Y2)
		gocv.Rectangle(&annotated, box, green, 2)

		label := fmt.Sprintf("%d: %s (%.2f)", rec.TrackID, rec.Reading.Text, rec.OverallConfidence)
		y := rec.BBox.Y1 - 10
		if y < 20 {
			y = 20
		}
		gocv.PutText(&annotated, label, image.Pt(rec.BBox.X1, y), gocv.FontHersheySimplex, 0.6, green, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, annotated)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// The native buffer is freed on Close; hand back a Go-owned copy.
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
