package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/klenoapp/kleno-server/internal/model"
)

// ErrVersionConflict is returned when an optimistic update loses the race:
// the session row changed between load and save. Callers re-read and retry.
var ErrVersionConflict = errors.New("tracking session was modified concurrently")

// SessionRepository handles tracking session persistence: the session row
// plus its append-only breadcrumbs, alerts and bubble events.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetBySessionID fetches a session by its public session ID.
// Returns nil when not found.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.TrackingSession, error) {
	var session model.TrackingSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetBySessionIDWithHistory fetches a session with breadcrumbs, alerts and
// bubble events preloaded in capture order.
func (r *SessionRepository) GetBySessionIDWithHistory(ctx context.Context, sessionID string) (*model.TrackingSession, error) {
	var session model.TrackingSession
	err := r.db.WithContext(ctx).
		Preload("Breadcrumbs", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Alerts", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("BubbleEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByUserIDWithPagination pages through a user's sessions, newest first.
func (r *SessionRepository) GetByUserIDWithPagination(ctx context.Context, userID int64, page, pageSize int) ([]model.TrackingSession, int64, error) {
	var sessions []model.TrackingSession
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TrackingSession{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("started_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	return sessions, total, err
}

// CreateWithStart inserts a new session together with its first breadcrumb
// and the initial bubble event in a single transaction, so a trip never
// exists without its starting point on record.
func (r *SessionRepository) CreateWithStart(ctx context.Context, session *model.TrackingSession, crumb *model.Breadcrumb, event *model.BubbleEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		crumb.SessionPK = session.ID
		if err := tx.Create(crumb).Error; err != nil {
			return err
		}
		event.SessionPK = session.ID
		return tx.Create(event).Error
	})
}

// ResumeUpdate carries the session fields recomputed on a resume call.
type ResumeUpdate struct {
	HouseID          int64
	DestLat          float64
	DestLon          float64
	RadiusKm         float64
	ShrinkStepCount  int
	LastShrinkAt     *time.Time
	MaxDeviationKm   float64
	LastDistanceKm   float64
	LastDeviationKm  float64
	LastAllowedDevKm float64
	LastResumedAt    time.Time
}

// SaveResume applies one tracking update atomically: the session row is
// updated with an optimistic version check, then the new breadcrumb, any
// alerts and any bubble event are appended. expectedVersion is the version
// the caller loaded; if the row moved on, nothing is written and
// ErrVersionConflict is returned.
func (r *SessionRepository) SaveResume(ctx context.Context, sessionPK, expectedVersion int64, upd ResumeUpdate, crumb *model.Breadcrumb, alerts []model.TrackingAlert, event *model.BubbleEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"house_id":            upd.HouseID,
			"dest_lat":            upd.DestLat,
			"dest_lon":            upd.DestLon,
			"radius_km":           upd.RadiusKm,
			"shrink_step_count":   upd.ShrinkStepCount,
			"max_deviation_km":    upd.MaxDeviationKm,
			"last_distance_km":    upd.LastDistanceKm,
			"last_deviation_km":   upd.LastDeviationKm,
			"last_allowed_dev_km": upd.LastAllowedDevKm,
			"last_resumed_at":     upd.LastResumedAt,
			"points_logged":       gorm.Expr("points_logged + 1"),
			"version":             gorm.Expr("version + 1"),
		}
		if upd.LastShrinkAt != nil {
			fields["last_shrink_at"] = *upd.LastShrinkAt
		}

		result := tx.Model(&model.TrackingSession{}).
			Where("id = ? AND version = ? AND status = ?", sessionPK, expectedVersion, model.TripStatusActive).
			Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		crumb.SessionPK = sessionPK
		if err := tx.Create(crumb).Error; err != nil {
			return err
		}

		for i := range alerts {
			alerts[i].SessionPK = sessionPK
		}
		if len(alerts) > 0 {
			if err := tx.Create(&alerts).Error; err != nil {
				return err
			}
		}

		if event != nil {
			event.SessionPK = sessionPK
			if err := tx.Create(event).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// EndSession moves an active session to a terminal status and records the
// end time. The version check guards against a resume racing the close.
func (r *SessionRepository) EndSession(ctx context.Context, sessionPK, expectedVersion int64, status string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.TrackingSession{}).
		Where("id = ? AND version = ? AND status = ?", sessionPK, expectedVersion, model.TripStatusActive).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": now,
			"version":  gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
