package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"plate-scanner/internal/domain/plate"
)

type RegistryRepository struct {
	db *gorm.DB
}

func NewRegistryRepository(db *gorm.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

type RegistryPlate struct {
	ID            int64  `gorm:"primaryKey"`
	PlateText     string `gorm:"not null;uniqueIndex"`
	IsAuthorized  bool   `gorm:"not null;default:true"`
	IsBlacklisted bool   `gorm:"not null;default:false"`
	OwnerName     *string
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

func (RegistryPlate) TableName() string { return "registry_plates" }

// FindByTextContains matches a recognized reading against the registry with
// case-insensitive containment, preferring blacklisted entries so a denial
// never loses to a broader authorized match.
func (r *RegistryRepository) FindByTextContains(ctx context.Context, text string) (*plate.RegistryPlate, error) {
	var row RegistryPlate
	err := r.db.WithContext(ctx).
		Where("plate_text ILIKE ?", "%"+text+"%").
		Order("is_blacklisted DESC, id ASC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainRegistryPlate(&row), nil
}

func (r *RegistryRepository) Create(ctx context.Context, p *plate.RegistryPlate) error {
	row := RegistryPlate{
		PlateText:     p.PlateText,
		IsAuthorized:  p.IsAuthorized,
		IsBlacklisted: p.IsBlacklisted,
		CreatedAt:     time.Now(),
	}
	if p.OwnerName != "" {
		row.OwnerName = &p.OwnerName
	}
	if p.Notes != "" {
		row.Notes = &p.Notes
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return nil
}

func (r *RegistryRepository) FindByText(ctx context.Context, text string) (*plate.RegistryPlate, error) {
	var row RegistryPlate
	err := r.db.WithContext(ctx).Where("plate_text = ?", text).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainRegistryPlate(&row), nil
}

func (r *RegistryRepository) List(ctx context.Context, limit, offset int) ([]plate.RegistryPlate, error) {
	var rows []RegistryPlate
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]plate.RegistryPlate, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomainRegistryPlate(&rows[i]))
	}
	return out, nil
}

func toDomainRegistryPlate(row *RegistryPlate) *plate.RegistryPlate {
	p := &plate.RegistryPlate{
		ID:            row.ID,
		PlateText:     row.PlateText,
		IsAuthorized:  row.IsAuthorized,
		IsBlacklisted: row.IsBlacklisted,
		CreatedAt:     row.CreatedAt,
	}
	if row.OwnerName != nil {
		p.OwnerName = *row.OwnerName
	}
	if row.Notes != nil {
		p.Notes = *row.Notes
	}
	return p
}
