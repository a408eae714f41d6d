package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"plate-scanner/internal/domain/plate"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type Detection struct {
	ID                int64   `gorm:"primaryKey"`
	CameraID          int     `gorm:"not null"`
	DetectedPlateText string  `gorm:"not null"`
	Confidence        float64 `gorm:"not null"`
	Status            string  `gorm:"not null"`
	BBox              datatypes.JSON
	SnapshotID        *string
	PlateID           *int64
	DetectedAt        time.Time `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

func (Detection) TableName() string { return "detections" }

// CreateDetection persists a new sighting and writes the generated id back
// into the record.
func (r *DetectionRepository) CreateDetection(ctx context.Context, rec *plate.DetectionRecord) error {
	bbox, err := json.Marshal(rec.BBox)
	if err != nil {
		return err
	}

	row := Detection{
		CameraID:          rec.CameraID,
		DetectedPlateText: rec.DetectedPlateText,
		Confidence:        rec.Confidence,
		Status:            string(rec.Status),
		BBox:              datatypes.JSON(bbox),
		PlateID:           rec.PlateID,
		DetectedAt:        rec.DetectedAt,
		CreatedAt:         time.Now(),
	}
	if rec.SnapshotID != "" {
		row.SnapshotID = &rec.SnapshotID
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	rec.ID = row.ID
	return nil
}

// UpdateDetectionReading corrects an existing record in place when a track's
// best reading improves to different text.
func (r *DetectionRepository) UpdateDetectionReading(ctx context.Context, id int64, text string, confidence float64, status plate.Status, plateID *int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Detection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"detected_plate_text": text,
			"confidence":          confidence,
			"status":              string(status),
			"plate_id":            plateID,
			"updated_at":          now,
		}).Error
}

func (r *DetectionRepository) FindDetections(ctx context.Context, plateText *string, cameraID *int, from, to *time.Time, limit, offset int) ([]plate.DetectionRecord, error) {
	query := r.db.WithContext(ctx).Model(&Detection{})

	if plateText != nil {
		query = query.Where("detected_plate_text ILIKE ?", "%"+*plateText+"%")
	}
	if cameraID != nil {
		query = query.Where("camera_id = ?", *cameraID)
	}
	if from != nil {
		query = query.Where("detected_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("detected_at <= ?", *to)
	}

	query = query.Order("detected_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []Detection
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]plate.DetectionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomainDetection(&rows[i]))
	}
	return out, nil
}

func (r *DetectionRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).Where("detected_at < ?", cutoff).Delete(&Detection{})
	return res.RowsAffected, res.Error
}

func toDomainDetection(row *Detection) *plate.DetectionRecord {
	rec := &plate.DetectionRecord{
		ID:                row.ID,
		CameraID:          row.CameraID,
		DetectedPlateText: row.DetectedPlateText,
		Confidence:        row.Confidence,
		Status:            plate.Status(row.Status),
		PlateID:           row.PlateID,
		DetectedAt:        row.DetectedAt,
	}
	if row.SnapshotID != nil {
		rec.SnapshotID = *row.SnapshotID
	}
	if len(row.BBox) > 0 {
		_ = json.Unmarshal(row.BBox, &rec.BBox)
	}
	return rec
}
