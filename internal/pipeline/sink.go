package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plate-scanner/internal/domain/plate"
)

// RegistryLookup resolves a recognized plate text against the registry.
// A nil result with nil error means no registry entry matched.
type RegistryLookup interface {
	FindByTextContains(ctx context.Context, text string) (*plate.RegistryPlate, error)
}

// DetectionStore persists detection records. Create must set the record ID.
type DetectionStore interface {
	CreateDetection(ctx context.Context, rec *plate.DetectionRecord) error
	UpdateDetectionReading(ctx context.Context, id int64, text string, confidence float64, status plate.Status, plateID *int64) error
}

type SinkConfig struct {
	HistorySize int
	StaleAfter  time.Duration
	PollTimeout time.Duration
}

// Sink is the single consumer of the pool's output. It keeps the newest
// annotated frame per camera for streaming and reconciles per-track readings
// into durable, deduplicated detection records.
type Sink struct {
	results  <-chan Result
	registry RegistryLookup
	store    DetectionStore
	cfg      SinkConfig
	log      zerolog.Logger

	mu     sync.RWMutex
	frames map[int][]byte

	seen *reconcileHistory

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSink(results <-chan Result, registry RegistryLookup, store DetectionStore, cfg SinkConfig, log zerolog.Logger) *Sink {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 500
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	return &Sink{
		results:  results,
		registry: registry,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "result_sink").Logger(),
		frames:   make(map[int][]byte),
		seen:     newReconcileHistory(cfg.HistorySize),
	}
}

func (s *Sink) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Sink) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
}

// run drains results with a short poll timeout; the idle branch doubles as
// the maintenance pass instead of busy-spinning.
func (s *Sink) run(ctx context.Context) {
	s.log.Info().Msg("result sink started")
	timer := time.NewTimer(s.cfg.PollTimeout)
	defer timer.Stop()

	for {
		timer.Reset(s.cfg.PollTimeout)
		select {
		case <-ctx.Done():
			s.log.Info().Msg("result sink stopped")
			return
		case result := <-s.results:
			s.handleResult(ctx, result)
		case <-timer.C:
			s.seen.evictStale(time.Now(), s.cfg.StaleAfter)
		}
	}
}

func (s *Sink) handleResult(ctx context.Context, result Result) {
	s.mu.Lock()
	s.frames[result.CameraID] = result.Annotated
	s.mu.Unlock()

	for _, rec := range result.Records {
		s.reconcile(ctx, result.CameraID, rec, result.Timestamp)
	}
}

// reconcile turns a per-track reading into at most one persisted record:
// first sighting creates it, an unchanged reading only refreshes recency,
// and a changed (improved) reading updates the record in place. Storage
// errors skip the record; the sink keeps running.
func (s *Sink) reconcile(ctx context.Context, cameraID int, rec plate.TrackRecord, ts time.Time) {
	if rec.Reading.Text == "" {
		return
	}

	key := trackKey{cameraID: cameraID, trackID: rec.TrackID}
	now := time.Now()

	entry := s.seen.get(key)
	if entry == nil {
		status, plateID, err := s.resolveStatus(ctx, rec.Reading.Text)
		if err != nil {
			s.log.Error().Err(err).Str("plate", rec.Reading.Text).Msg("registry lookup failed")
			return
		}

		record := &plate.DetectionRecord{
			CameraID:          cameraID,
			DetectedPlateText: rec.Reading.Text,
			Confidence:        rec.OverallConfidence,
			Status:            status,
			BBox:              rec.BBox,
			SnapshotID:        uuid.NewString(),
			PlateID:           plateID,
			DetectedAt:        ts,
		}
		if err := s.store.CreateDetection(ctx, record); err != nil {
			s.log.Error().Err(err).Str("plate", rec.Reading.Text).Int("camera_id", cameraID).Msg("persist detection failed")
			return
		}

		s.seen.put(key, &reconcileEntry{
			text:       rec.Reading.Text,
			confidence: rec.OverallConfidence,
			recordID:   record.ID,
			plateID:    plateID,
			insertedAt: now,
			lastSeen:   now,
		})

		s.log.Info().
			Int("camera_id", cameraID).
			Int("track_id", rec.TrackID).
			Str("plate", rec.Reading.Text).
			Str("status", string(status)).
			Float64("confidence", rec.OverallConfidence).
			Msg("detection persisted")
		return
	}

	entry.lastSeen = now
	if entry.text == rec.Reading.Text {
		return
	}

	// The track's best reading improved to different text; this is still one
	// physical sighting, so the existing record is corrected in place.
	status, plateID, err := s.resolveStatus(ctx, rec.Reading.Text)
	if err != nil {
		s.log.Error().Err(err).Str("plate", rec.Reading.Text).Msg("registry lookup failed")
		return
	}
	if err := s.store.UpdateDetectionReading(ctx, entry.recordID, rec.Reading.Text, rec.OverallConfidence, status, plateID); err != nil {
		s.log.Error().Err(err).Int64("record_id", entry.recordID).Msg("update detection failed")
		return
	}

	s.log.Info().
		Int("camera_id", cameraID).
		Int("track_id", rec.TrackID).
		Str("old_plate", entry.text).
		Str("plate", rec.Reading.Text).
		Msg("detection reading updated")

	entry.text = rec.Reading.Text
	entry.confidence = rec.OverallConfidence
	entry.plateID = plateID
}

func (s *Sink) resolveStatus(ctx context.Context, text string) (plate.Status, *int64, error) {
	match, err := s.registry.FindByTextContains(ctx, text)
	if err != nil {
		return plate.StatusUnknown, nil, err
	}
	if match == nil {
		return plate.StatusUnknown, nil, nil
	}
	return plate.DeriveStatus(match.IsAuthorized, match.IsBlacklisted), &match.ID, nil
}

// LatestFrame returns the most recent annotated frame for a camera. The
// returned buffer is immutable; a new frame replaces the map value wholesale.
func (s *Sink) LatestFrame(cameraID int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, ok := s.frames[cameraID]
	return frame, ok
}

// DropCamera clears the cached frame for a stopped camera.
func (s *Sink) DropCamera(cameraID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, cameraID)
}

type trackKey struct {
	cameraID int
	trackID  int
}

type reconcileEntry struct {
	text       string
	confidence float64
	recordID   int64
	plateID    *int64
	insertedAt time.Time
	lastSeen   time.Time
}

// reconcileHistory is a bounded map in insertion order. Unlike the workers'
// recency-based history, eviction here removes the oldest-inserted entries;
// the idle maintenance pass additionally drops entries not seen recently.
type reconcileHistory struct {
	bound   int
	entries map[trackKey]*reconcileEntry
	order   []trackKey
}

func newReconcileHistory(bound int) *reconcileHistory {
	return &reconcileHistory{
		bound:   bound,
		entries: make(map[trackKey]*reconcileEntry),
	}
}

func (h *reconcileHistory) get(key trackKey) *reconcileEntry {
	return h.entries[key]
}

func (h *reconcileHistory) put(key trackKey, entry *reconcileEntry) {
	if _, ok := h.entries[key]; !ok {
		h.order = append(h.order, key)
	}
	h.entries[key] = entry

	for len(h.entries) > h.bound && len(h.order) > 0 {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.entries, oldest)
	}
}

func (h *reconcileHistory) evictStale(now time.Time, maxAge time.Duration) {
	if len(h.entries) == 0 {
		return
	}
	kept := h.order[:0]
	for _, key := range h.order {
		entry, ok := h.entries[key]
		if !ok {
			continue
		}
		if now.Sub(entry.lastSeen) > maxAge {
			delete(h.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	h.order = kept
}

func (h *reconcileHistory) len() int { return len(h.entries) }
