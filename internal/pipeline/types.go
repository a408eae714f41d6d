// Package pipeline implements the real-time frame-processing core: per-camera
// capture loops, a worker pool with camera-to-worker affinity, per-camera
// tracking with best-reading history, and a single result sink that feeds the
// live stream cache and reconciles detections into storage.
package pipeline

import (
	"errors"
	"time"

	"gocv.io/x/gocv"

	"plate-scanner/internal/domain/plate"
)

var (
	ErrQueueFull      = errors.New("worker queue full")
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// Task is one frame handed to the worker pool. Immutable once enqueued.
// Ownership of Frame transfers to the worker that dequeues it; on a failed
// submit it stays with the caller.
type Task struct {
	CameraID  int
	Frame     gocv.Mat
	Timestamp time.Time
}

// Result is the outcome of processing one frame. Produced once per task that
// completes, consumed exactly once by the sink. An empty Records slice still
// carries the annotated frame so the live stream stays current.
type Result struct {
	CameraID  int
	WorkerID  int
	Timestamp time.Time
	Annotated []byte
	Records   []plate.TrackRecord
}
