package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"plate-scanner/internal/domain/plate"
	"plate-scanner/internal/repository"
	"plate-scanner/internal/vision"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
)

// PlateService is the query and registry surface over the persistence layer.
// The pipeline writes detections through the sink; this service serves reads
// and operator-driven registry changes.
type PlateService struct {
	registry   *repository.RegistryRepository
	detections *repository.DetectionRepository
	log        zerolog.Logger
}

func NewPlateService(registry *repository.RegistryRepository, detections *repository.DetectionRepository, log zerolog.Logger) *PlateService {
	return &PlateService{
		registry:   registry,
		detections: detections,
		log:        log,
	}
}

func (s *PlateService) RegisterPlate(ctx context.Context, text, ownerName, notes string, authorized, blacklisted bool) (*plate.RegistryPlate, error) {
	normalized := vision.NormalizePlate(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
	}

	existing, err := s.registry.FindByText(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to check registry: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: plate %s", ErrConflict, normalized)
	}

	entry := &plate.RegistryPlate{
		PlateText:     normalized,
		IsAuthorized:  authorized,
		IsBlacklisted: blacklisted,
		OwnerName:     ownerName,
		Notes:         notes,
	}
	if err := s.registry.Create(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("plate", normalized).Msg("failed to register plate")
		return nil, fmt.Errorf("failed to register plate: %w", err)
	}

	s.log.Info().
		Int64("plate_id", entry.ID).
		Str("plate", normalized).
		Bool("authorized", authorized).
		Bool("blacklisted", blacklisted).
		Msg("plate registered")

	return entry, nil
}

func (s *PlateService) ListPlates(ctx context.Context, limit, offset int) ([]plate.RegistryPlate, error) {
	limit, offset = clampPage(limit, offset)
	plates, err := s.registry.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list plates: %w", err)
	}
	return plates, nil
}

func (s *PlateService) FindDetections(ctx context.Context, plateQuery *string, cameraID *int, from, to *string, limit, offset int) ([]plate.DetectionRecord, error) {
	var plateText *string
	if plateQuery != nil {
		normalized := vision.NormalizePlate(*plateQuery)
		if normalized != "" {
			plateText = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	limit, offset = clampPage(limit, offset)

	records, err := s.detections.FindDetections(ctx, plateText, cameraID, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find detections: %w", err)
	}
	return records, nil
}

// CleanupOldDetections removes detections older than the given number of days.
func (s *PlateService) CleanupOldDetections(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("%w: days must be >= 1", ErrInvalidInput)
	}
	deleted, err := s.detections.DeleteOlderThan(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old detections")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old detections")
	}
	return deleted, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
