package pipeline

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// CameraManager owns one capture loop per active camera. Explicitly
// constructed and injected; a source itself is single-owner, the map guarding
// mutex only covers start/stop bookkeeping.
type CameraManager struct {
	pool      *Pool
	frameSkip int
	log       zerolog.Logger

	mu      sync.Mutex
	sources map[int]*Source
	wg      sync.WaitGroup

	openGrabber grabberFactory
}

func NewCameraManager(pool *Pool, frameSkip int, log zerolog.Logger) *CameraManager {
	return &CameraManager{
		pool:        pool,
		frameSkip:   frameSkip,
		log:         log.With().Str("component", "camera_manager").Logger(),
		sources:     make(map[int]*Source),
		openGrabber: openVideoCapture,
	}
}

// StartCamera launches the capture loop for a camera. Starting an already
// active camera is rejected.
func (m *CameraManager) StartCamera(cameraID int, streamURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[cameraID]; ok {
		return fmt.Errorf("camera %d: %w", cameraID, ErrAlreadyRunning)
	}

	src := newSource(cameraID, streamURL, m.frameSkip, m.pool, m.log)
	src.open = m.openGrabber
	src.active.Store(true)
	m.sources[cameraID] = src

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		src.run()
	}()

	m.log.Info().Int("camera_id", cameraID).Int("worker", m.pool.WorkerFor(cameraID)).Msg("camera started")
	return nil
}

// StopCamera signals the camera's capture loop to exit. The loop observes
// the flag on its next iteration; this call does not wait for it.
func (m *CameraManager) StopCamera(cameraID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[cameraID]
	if !ok {
		return fmt.Errorf("camera %d: %w", cameraID, ErrNotRunning)
	}
	src.stop()
	delete(m.sources, cameraID)

	m.log.Info().Int("camera_id", cameraID).Msg("camera stopped")
	return nil
}

func (m *CameraManager) IsActive(cameraID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[cameraID]
	return ok
}

// Stats snapshots every active camera's capture counters.
func (m *CameraManager) Stats() map[int]SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]SourceStats, len(m.sources))
	for id, src := range m.sources {
		out[id] = src.stats()
	}
	return out
}

// Shutdown stops every camera and waits for all capture loops to exit.
func (m *CameraManager) Shutdown() {
	m.mu.Lock()
	for id, src := range m.sources {
		src.stop()
		delete(m.sources, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("all capture loops stopped")
}
