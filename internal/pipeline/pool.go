package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"plate-scanner/internal/vision"
)

// DetectorFactory builds one detector instance per worker. Each worker owns
// its detector exclusively, so implementations need not be concurrency-safe.
type DetectorFactory func() (vision.Detector, error)

type PoolConfig struct {
	Workers            int
	QueueCapacity      int
	OCRConfidenceFloor float64
	HistorySize        int
	ShutdownGrace      time.Duration
}

// Pool is a fixed set of long-lived workers, each with its own bounded input
// queue. A camera is pinned to worker cameraID mod pool size for its entire
// lifetime, so all tracker and history state for that camera lives in exactly
// one worker and per-camera order is preserved end to end.
type Pool struct {
	cfg     PoolConfig
	queues  []chan Task
	results chan Result
	workers []*Worker
	log     zerolog.Logger

	newDetector DetectorFactory
	ocr         vision.Recognizer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPool(cfg PoolConfig, newDetector DetectorFactory, ocr vision.Recognizer, log zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 100
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}

	queues := make([]chan Task, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan Task, cfg.QueueCapacity)
	}

	return &Pool{
		cfg:         cfg,
		queues:      queues,
		results:     make(chan Result, cfg.Workers*cfg.QueueCapacity),
		log:         log.With().Str("component", "worker_pool").Logger(),
		newDetector: newDetector,
		ocr:         ocr,
	}
}

// Start constructs each worker's detector and launches the worker loops.
// A detector that fails to load aborts startup: a worker must never run
// without its capability.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool: %w", ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		detector, err := p.newDetector()
		if err != nil {
			cancel()
			for _, w := range p.workers {
				w.detector.Close()
			}
			p.workers = nil
			return fmt.Errorf("worker %d: load detector: %w", i, err)
		}
		p.workers = append(p.workers, newWorker(i, detector, p.ocr, p.cfg, p.queues[i], p.results, p.log))
	}

	p.cancel = cancel
	p.started = true
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.run(ctx)
		}(w)
	}

	p.log.Info().Int("workers", p.cfg.Workers).Int("queue_capacity", p.cfg.QueueCapacity).Msg("worker pool started")
	return nil
}

// WorkerFor returns the worker index a camera is pinned to.
func (p *Pool) WorkerFor(cameraID int) int {
	return cameraID % len(p.queues)
}

// Submit offers a task to its camera's pinned queue without blocking. A full
// queue returns ErrQueueFull and the caller keeps ownership of the frame;
// dropping it is the sole overload-shedding mechanism.
func (p *Pool) Submit(task Task) error {
	select {
	case p.queues[p.WorkerFor(task.CameraID)] <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Results is the shared output stream. Single reader: the sink.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stop signals the workers and waits up to the shutdown grace period for
// in-flight work to finish. Workers still running after the grace period are
// abandoned; their detectors are reclaimed at process exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped")
	case <-time.After(p.cfg.ShutdownGrace):
		p.log.Warn().Dur("grace", p.cfg.ShutdownGrace).Msg("workers did not stop within grace period")
	}
}
