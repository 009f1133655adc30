// Package model defines the structures mapped to database tables.
package model

import (
	"time"
)

// Tracking session status. Completed and Cancelled are terminal: a session in
// either state accepts no further breadcrumbs.
const (
	TripStatusActive    = "active"
	TripStatusCompleted = "completed"
	TripStatusCancelled = "cancelled"
)

// TrackingSession is one tracked trip toward a boarding house.
// Maps to table tracking_sessions.
//
// The row carries the bubble state and rolling metrics inline; breadcrumbs,
// alerts and bubble history live in their own append-only tables keyed by the
// session primary key.
type TrackingSession struct {
	// ID is the auto-increment primary key (internal).
	ID int64 `gorm:"primaryKey" json:"-"`

	// SessionID is the opaque public identifier, generated at start,
	// immutable.
	SessionID string `gorm:"size:64;uniqueIndex;not null" json:"session_id"`

	// UserID / University identify the owning student. Immutable.
	UserID     int64  `gorm:"index;not null" json:"user_id"`
	University string `gorm:"size:80;not null" json:"university"`

	// HouseID is the destination reference. Mutable: a resume may rebind
	// the trip to a different house, which moves the corridor's endpoint
	// but never its origin.
	HouseID int64 `gorm:"index;not null" json:"house_id"`

	// Status: active / completed / cancelled.
	Status string `gorm:"size:20;default:active;index" json:"status"`

	// OriginLat / OriginLon is the position recorded at start. Immutable
	// for the life of the session; it anchors the ideal corridor.
	OriginLat float64 `gorm:"not null" json:"origin_lat"`
	OriginLon float64 `gorm:"not null" json:"origin_lon"`

	// DestLat / DestLon is the current destination, refreshed when the
	// destination reference changes on resume.
	DestLat float64 `gorm:"not null" json:"dest_lat"`
	DestLon float64 `gorm:"not null" json:"dest_lon"`

	// StraightKm is the straight-line distance recorded at start.
	StraightKm float64 `json:"straight_km"`

	// Bubble state.
	RadiusKm          float64    `json:"radius_km"`
	R0Km              float64    `json:"r0_km"`
	MinRadiusKm       float64    `json:"min_radius_km"`
	ShrinkStepKm      float64    `json:"shrink_step_km"`
	ShrinkIntervalMin float64    `json:"shrink_interval_min"`
	ShrinkStepCount   int        `json:"shrink_step_count"`
	LastShrinkAt      *time.Time `json:"last_shrink_at,omitempty"`

	// Rolling metrics. MaxDeviationKm only ever increases.
	PointsLogged     int     `json:"points_logged"`
	MaxDeviationKm   float64 `json:"max_deviation_km"`
	LastDistanceKm   float64 `json:"last_distance_km"`
	LastDeviationKm  float64 `json:"last_deviation_km"`
	LastAllowedDevKm float64 `json:"last_allowed_dev_km"`

	// ClientNote is an optional free-text note supplied at start.
	ClientNote *string `gorm:"size:500" json:"client_note,omitempty"`

	// Version guards the read-compute-write resume cycle: saves assert the
	// version they loaded and bump it, so concurrent resumes cannot
	// silently drop each other's updates.
	Version int64 `gorm:"default:0" json:"-"`

	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	LastResumedAt *time.Time `json:"last_resumed_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Breadcrumbs are the session's position samples (one-to-many).
	Breadcrumbs []Breadcrumb `gorm:"foreignKey:SessionPK" json:"breadcrumbs,omitempty"`

	// Alerts raised over the session's lifetime (one-to-many).
	Alerts []TrackingAlert `gorm:"foreignKey:SessionPK" json:"alerts,omitempty"`

	// BubbleEvents is the radius-change history (one-to-many).
	BubbleEvents []BubbleEvent `gorm:"foreignKey:SessionPK" json:"bubble_history,omitempty"`
}

// TableName overrides the default plural table name.
func (TrackingSession) TableName() string {
	return "tracking_sessions"
}

// IsActive reports whether the session still accepts resumes.
func (s *TrackingSession) IsActive() bool {
	return s.Status == TripStatusActive
}

// Breadcrumb is one timestamped position sample with its derived metrics.
// Append-only: rows are inserted on start and on every successful resume and
// never rewritten.
// Maps to table breadcrumbs.
type Breadcrumb struct {
	ID int64 `gorm:"primaryKey" json:"-"`

	// SessionPK references tracking_sessions.id.
	SessionPK int64 `gorm:"index;not null" json:"-"`

	Lat        float64   `gorm:"not null" json:"lat"`
	Lon        float64   `gorm:"not null" json:"lon"`
	CapturedAt time.Time `gorm:"index;not null" json:"captured_at"`

	// Derived metrics at capture time.
	DistanceKm   float64 `json:"distance_to_dest_km"`
	DeviationKm  float64 `json:"deviation_km"`
	Heading      string  `gorm:"size:4" json:"heading"`
	Movement     string  `gorm:"size:30" json:"movement"`
	RadiusKm     float64 `json:"bubble_radius_km"`
	AllowedDevKm float64 `json:"allowed_dev_km"`
}

// TableName overrides the default plural table name.
func (Breadcrumb) TableName() string {
	return "breadcrumbs"
}

// TrackingAlert is one deviation alert raised during a resume. Append-only.
// Maps to table tracking_alerts.
type TrackingAlert struct {
	ID        int64  `gorm:"primaryKey" json:"-"`
	SessionPK int64  `gorm:"index;not null" json:"-"`
	Level     string `gorm:"size:10;not null" json:"level"` // soft / hard / return
	Message   string `gorm:"size:500;not null" json:"message"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName overrides the default plural table name.
func (TrackingAlert) TableName() string {
	return "tracking_alerts"
}

// BubbleEvent records one radius change. Written only when the computed
// radius differs from the previously stored one. Append-only.
// Maps to table bubble_events.
type BubbleEvent struct {
	ID        int64 `gorm:"primaryKey" json:"-"`
	SessionPK int64 `gorm:"index;not null" json:"-"`

	RadiusKm     float64 `json:"radius_km"`
	PrevRadiusKm float64 `json:"prev_radius_km"`
	StepsElapsed int     `json:"steps_elapsed"`

	// Reason: "init" or "stepped_shrink_with_safety_floor".
	Reason string `gorm:"size:50;not null" json:"reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"at"`
}

// TableName overrides the default plural table name.
func (BubbleEvent) TableName() string {
	return "bubble_events"
}
