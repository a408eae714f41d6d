package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

const (
	openRetryDelay = 2 * time.Second
	readRetryDelay = 100 * time.Millisecond
	captureYield   = time.Millisecond
)

// submitter is what a Source needs from the pool.
type submitter interface {
	Submit(Task) error
}

// frameGrabber abstracts the capture backend so the loop can be exercised
// without a live stream.
type frameGrabber interface {
	Read(m *gocv.Mat) bool
	Close() error
}

type grabberFactory func(streamURL string) (frameGrabber, error)

func openVideoCapture(streamURL string) (frameGrabber, error) {
	cap, err := gocv.OpenVideoCapture(streamURL)
	if err != nil {
		return nil, err
	}
	cap.Set(gocv.VideoCaptureBufferSize, 1)
	return cap, nil
}

// SourceStats is a snapshot of a capture loop's counters.
type SourceStats struct {
	FramesRead      uint64 `json:"frames_read"`
	FramesForwarded uint64 `json:"frames_forwarded"`
	FramesDropped   uint64 `json:"frames_dropped"`
	ReadErrors      uint64 `json:"read_errors"`
}

// Source continuously pulls frames from one camera's stream, forwards every
// Nth frame to the pool, and never blocks on pipeline congestion: a full
// queue drops the frame. Stop is cooperative, observed once per iteration.
type Source struct {
	cameraID  int
	streamURL string
	frameSkip int

	pool   submitter
	open   grabberFactory
	active atomic.Bool
	log    zerolog.Logger

	framesRead      atomic.Uint64
	framesForwarded atomic.Uint64
	framesDropped   atomic.Uint64
	readErrors      atomic.Uint64
}

func newSource(cameraID int, streamURL string, frameSkip int, pool submitter, log zerolog.Logger) *Source {
	if frameSkip < 1 {
		frameSkip = 1
	}
	return &Source{
		cameraID:  cameraID,
		streamURL: streamURL,
		frameSkip: frameSkip,
		pool:      pool,
		open:      openVideoCapture,
		log:       log.With().Str("component", "frame_source").Int("camera_id", cameraID).Logger(),
	}
}

func (s *Source) stop() {
	s.active.Store(false)
}

// run opens the stream, retrying with a fixed delay while the camera stays
// active, and drives the capture loop until stopped.
func (s *Source) run() {
	s.log.Info().Str("stream_url", s.streamURL).Msg("capture started")

	for s.active.Load() {
		grabber, err := s.open(s.streamURL)
		if err != nil {
			s.log.Warn().Err(err).Msg("open stream failed, retrying")
			s.sleepWhileActive(openRetryDelay)
			continue
		}
		s.capture(grabber)
		grabber.Close()
	}

	s.log.Info().
		Uint64("frames_read", s.framesRead.Load()).
		Uint64("frames_dropped", s.framesDropped.Load()).
		Msg("capture stopped")
}

func (s *Source) capture(grabber frameGrabber) {
	frame := gocv.NewMat()
	defer frame.Close()

	count := 0
	for s.active.Load() {
		if ok := grabber.Read(&frame); !ok || frame.Empty() {
			s.readErrors.Add(1)
			s.sleepWhileActive(readRetryDelay)
			continue
		}

		count++
		s.framesRead.Add(1)
		if count%s.frameSkip != 0 {
			continue
		}

		// Ownership of the clone transfers on a successful submit.
		task := Task{CameraID: s.cameraID, Frame: frame.Clone(), Timestamp: time.Now()}
		if err := s.pool.Submit(task); err != nil {
			task.Frame.Close()
			s.framesDropped.Add(1)
		} else {
			s.framesForwarded.Add(1)
		}

		time.Sleep(captureYield)
	}
}

func (s *Source) sleepWhileActive(d time.Duration) {
	deadline := time.Now().Add(d)
	for s.active.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *Source) stats() SourceStats {
	return SourceStats{
		FramesRead:      s.framesRead.Load(),
		FramesForwarded: s.framesForwarded.Load(),
		FramesDropped:   s.framesDropped.Load(),
		ReadErrors:      s.readErrors.Load(),
	}
}
