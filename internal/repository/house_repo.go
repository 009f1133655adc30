package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/klenoapp/kleno-server/internal/model"
)

// HouseRepository handles boarding house database operations.
type HouseRepository struct {
	db *gorm.DB
}

// NewHouseRepository creates a HouseRepository.
func NewHouseRepository(db *gorm.DB) *HouseRepository {
	return &HouseRepository{db: db}
}

// GetByID fetches a boarding house by ID. Returns nil when not found.
func (r *HouseRepository) GetByID(ctx context.Context, id int64) (*model.BoardingHouse, error) {
	var house model.BoardingHouse
	err := r.db.WithContext(ctx).First(&house, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &house, nil
}

// ListedByUniversity lists listed houses for a university, most recently
// created first.
func (r *HouseRepository) ListedByUniversity(ctx context.Context, university string) ([]model.BoardingHouse, error) {
	var houses []model.BoardingHouse
	err := r.db.WithContext(ctx).
		Where("university = ? AND status = ?", university, model.HouseStatusListed).
		Order("created_at DESC").
		Find(&houses).Error
	return houses, err
}
