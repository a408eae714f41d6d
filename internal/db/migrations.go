package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS registry_plates (
		id              BIGSERIAL PRIMARY KEY,
		plate_text      TEXT NOT NULL,
		is_authorized   BOOLEAN NOT NULL DEFAULT true,
		is_blacklisted  BOOLEAN NOT NULL DEFAULT false,
		owner_name      TEXT,
		notes           TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_registry_plates_text ON registry_plates(plate_text);`,
	`CREATE TABLE IF NOT EXISTS detections (
		id                  BIGSERIAL PRIMARY KEY,
		camera_id           INT NOT NULL,
		detected_plate_text TEXT NOT NULL,
		confidence          NUMERIC(5,4) NOT NULL,
		status              TEXT NOT NULL,
		b_box               JSONB,
		snapshot_id         TEXT,
		plate_id            BIGINT REFERENCES registry_plates(id),
		detected_at         TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_camera_id ON detections(camera_id);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_plate_text ON detections(detected_plate_text);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
