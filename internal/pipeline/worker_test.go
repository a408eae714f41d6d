package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"plate-scanner/internal/domain/plate"
	"plate-scanner/internal/vision"
)

type fakeDetector struct {
	detections []plate.Detection
	err        error
	panicMsg   string
}

func (f *fakeDetector) Detect(gocv.Mat) ([]plate.Detection, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.detections, f.err
}

func (f *fakeDetector) Close() error { return nil }

type fakeRecognizer struct {
	reading plate.OCRReading
	err     error
}

func (f *fakeRecognizer) Recognize(context.Context, []byte) (plate.OCRReading, error) {
	return f.reading, f.err
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

func testConfig() PoolConfig {
	return PoolConfig{Workers: 1, QueueCapacity: 10, OCRConfidenceFloor: 0.45, HistorySize: 10}
}

func TestWorkerEmitsResultWithoutDetections(t *testing.T) {
	w := newWorker(0, &fakeDetector{}, &fakeRecognizer{}, testConfig(), nil, nil, zerolog.Nop())

	res, err := w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t), Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.NotEmpty(t, res.Annotated)
}

func TestWorkerRecognizesTrackedPlate(t *testing.T) {
	det := &fakeDetector{detections: []plate.Detection{
		{BBox: plate.BBox{X1: 50, Y1: 50, X2: 150, Y2: 100}, Confidence: 0.8},
	}}
	ocr := &fakeRecognizer{reading: plate.OCRReading{Text: "O12345678I", Confidence: 0.9, Method: "sidecar"}}
	w := newWorker(0, det, ocr, testConfig(), nil, nil, zerolog.Nop())

	res, err := w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t), Timestamp: time.Now()})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "0123456781", rec.Reading.Text)
	assert.Equal(t, 0.8, rec.DetectConfidence)
	assert.InDelta(t, 0.85, rec.OverallConfidence, 1e-9)
	assert.NotEmpty(t, res.Annotated)
}

func TestWorkerBelowFloorReadingCollapsesToEmpty(t *testing.T) {
	det := &fakeDetector{detections: []plate.Detection{
		{BBox: plate.BBox{X1: 50, Y1: 50, X2: 150, Y2: 100}, Confidence: 0.8},
	}}
	ocr := &fakeRecognizer{reading: plate.OCRReading{Text: "1234567890", Confidence: 0.2}}
	w := newWorker(0, det, ocr, testConfig(), nil, nil, zerolog.Nop())

	res, err := w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t), Timestamp: time.Now()})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Records[0].Reading.Text)
	assert.Zero(t, res.Records[0].Reading.Confidence)
	assert.InDelta(t, 0.4, res.Records[0].OverallConfidence, 1e-9)
}

func TestWorkerInvalidFormatCollapsesToEmpty(t *testing.T) {
	det := &fakeDetector{detections: []plate.Detection{
		{BBox: plate.BBox{X1: 50, Y1: 50, X2: 150, Y2: 100}, Confidence: 0.8},
	}}
	ocr := &fakeRecognizer{reading: plate.OCRReading{Text: "AB12", Confidence: 0.95}}
	w := newWorker(0, det, ocr, testConfig(), nil, nil, zerolog.Nop())

	res, err := w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t)})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Records[0].Reading.Text)
}

func TestWorkerHistoryKeepsBestReadingAcrossFrames(t *testing.T) {
	det := &fakeDetector{detections: []plate.Detection{
		{BBox: plate.BBox{X1: 50, Y1: 50, X2: 150, Y2: 100}, Confidence: 0.8},
	}}
	ocr := &fakeRecognizer{reading: plate.OCRReading{Text: "1111111111", Confidence: 0.7}}
	w := newWorker(0, det, ocr, testConfig(), nil, nil, zerolog.Nop())

	res, err := w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t)})
	require.NoError(t, err)
	assert.Equal(t, "1111111111", res.Records[0].Reading.Text)

	// A weaker later reading for the same track resolves to the stored best.
	ocr.reading = plate.OCRReading{Text: "2222222222", Confidence: 0.5}
	res, err = w.process(context.Background(), Task{CameraID: 1, Frame: testFrame(t)})
	require.NoError(t, err)
	assert.Equal(t, "1111111111", res.Records[0].Reading.Text)
	assert.Equal(t, 0.7, res.Records[0].Reading.Confidence)
}

func TestWorkerHandleIsolatesTaskFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("backend exploded")}
	results := make(chan Result, 1)
	w := newWorker(0, det, &fakeRecognizer{}, testConfig(), nil, results, zerolog.Nop())

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	w.handle(context.Background(), Task{CameraID: 1, Frame: frame})
	assert.Empty(t, results)

	// The worker survives and processes the next task normally.
	det.err = nil
	frame2 := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	w.handle(context.Background(), Task{CameraID: 1, Frame: frame2})
	require.Len(t, results, 1)
}

func TestWorkerHandleRecoversFromPanic(t *testing.T) {
	det := &fakeDetector{panicMsg: "bad frame"}
	results := make(chan Result, 1)
	w := newWorker(0, det, &fakeRecognizer{}, testConfig(), nil, results, zerolog.Nop())

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	assert.NotPanics(t, func() {
		w.handle(context.Background(), Task{CameraID: 1, Frame: frame})
	})
	assert.Empty(t, results)
}

func TestOverlapConfidence(t *testing.T) {
	dets := []plate.Detection{
		{BBox: plate.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.6},
		{BBox: plate.BBox{X1: 80, Y1: 0, X2: 200, Y2: 100}, Confidence: 0.9},
	}

	// Mostly covered by the second detection.
	assert.Equal(t, 0.9, overlapConfidence(image.Rect(90, 0, 190, 100), dets))
	// Mostly covered by the first.
	assert.Equal(t, 0.6, overlapConfidence(image.Rect(0, 0, 90, 100), dets))
	// No overlapping detection at all.
	assert.Equal(t, 0.0, overlapConfidence(image.Rect(300, 300, 400, 400), dets))
	assert.Equal(t, 0.0, overlapConfidence(image.Rect(0, 0, 10, 10), nil))
}

func TestPoolProcessesPinnedCameraInOrder(t *testing.T) {
	newDetector := func() (vision.Detector, error) { return &fakeDetector{}, nil }
	pool := NewPool(PoolConfig{Workers: 2, QueueCapacity: 10, ShutdownGrace: time.Second},
		newDetector, &fakeRecognizer{}, zerolog.Nop())

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	base := time.Now()
	for i := 0; i < 5; i++ {
		frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
		require.NoError(t, pool.Submit(Task{CameraID: 3, Frame: frame, Timestamp: base.Add(time.Duration(i) * time.Millisecond)}))
	}

	var last time.Time
	for i := 0; i < 5; i++ {
		select {
		case res := <-pool.Results():
			assert.Equal(t, 3, res.CameraID)
			assert.Equal(t, 1, res.WorkerID) // 3 mod 2
			assert.False(t, res.Timestamp.Before(last))
			last = res.Timestamp
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
}
