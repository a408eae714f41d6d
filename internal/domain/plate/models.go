package plate

import (
	"time"
)

// Status is the access status derived from the registry for a detected plate.
type Status string

const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusDenied     Status = "DENIED"
	StatusUnknown    Status = "UNKNOWN"
)

// DeriveStatus maps registry flags onto a detection status. A blacklisted
// plate is denied even if it is also marked authorized.
func DeriveStatus(authorized, blacklisted bool) Status {
	switch {
	case blacklisted:
		return StatusDenied
	case authorized:
		return StatusAuthorized
	default:
		return StatusUnknown
	}
}

// BBox is a detection bounding box in pixel coordinates.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection is a raw detector output for a single frame. It has no identity
// until it passes through tracking.
type Detection struct {
	BBox       BBox
	Confidence float64
}

// OCRReading is one recognition attempt for a cropped plate image.
// Text is empty when recognition failed validation or the confidence floor.
type OCRReading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	RawText    string  `json:"raw_text"`
}

// TrackRecord is the per-track outcome of processing one frame.
type TrackRecord struct {
	TrackID           int        `json:"track_id"`
	BBox              BBox       `json:"bbox"`
	Reading           OCRReading `json:"ocr"`
	DetectConfidence  float64    `json:"detect_confidence"`
	OverallConfidence float64    `json:"overall_confidence"`
	LatencyMS         int64      `json:"latency_ms"`
}

// RegistryPlate is a registered plate with its authorization flags.
type RegistryPlate struct {
	ID            int64     `json:"id"`
	PlateText     string    `json:"plate_text"`
	IsAuthorized  bool      `json:"is_authorized"`
	IsBlacklisted bool      `json:"is_blacklisted"`
	OwnerName     string    `json:"owner_name,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DetectionRecord is a persisted plate sighting. One record models one
// physical sighting; its text and confidence may be updated in place as the
// OCR reading for the underlying track improves.
type DetectionRecord struct {
	ID                int64     `json:"id"`
	CameraID          int       `json:"camera_id"`
	DetectedPlateText string    `json:"detected_plate_text"`
	Confidence        float64   `json:"confidence"`
	Status            Status    `json:"status"`
	BBox              BBox      `json:"bbox"`
	SnapshotID        string    `json:"snapshot_id,omitempty"`
	PlateID           *int64    `json:"plate_id,omitempty"`
	DetectedAt        time.Time `json:"detected_at"`
}
