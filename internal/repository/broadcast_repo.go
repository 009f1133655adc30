package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/klenoapp/kleno-server/internal/model"
)

// BroadcastRepository handles broadcast alert persistence.
type BroadcastRepository struct {
	db *gorm.DB
}

// NewBroadcastRepository creates a BroadcastRepository.
func NewBroadcastRepository(db *gorm.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

// CreateBatch inserts one alert row per target university in a single
// transaction.
func (r *BroadcastRepository) CreateBatch(ctx context.Context, alerts []model.BroadcastAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&alerts).Error
}

// RecentByUniversity lists alerts targeting a university since the cutoff,
// newest first.
func (r *BroadcastRepository) RecentByUniversity(ctx context.Context, university string, since time.Time) ([]model.BroadcastAlert, error) {
	var alerts []model.BroadcastAlert
	err := r.db.WithContext(ctx).
		Where("target_university = ? AND created_at >= ?", university, since).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

// CountByStudentSince counts how many broadcasts a student has sent since
// the cutoff. This backs the daily quota, so failed sends cost nothing.
func (r *BroadcastRepository) CountByStudentSince(ctx context.Context, studentID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BroadcastAlert{}).
		Where("student_id = ? AND created_at >= ?", studentID, since).
		// Rows are per target university; count distinct sends.
		Distinct("created_at").
		Count(&count).Error
	return count, err
}
