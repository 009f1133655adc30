// Package model defines the structures mapped to database tables.
package model

import (
	"time"
)

// BroadcastAlert is one landlord-facing broadcast sent by a premium student
// looking for housing. One row is stored per target university in the
// student's regional cluster; delivery itself is handled by the notification
// sink.
// Maps to table broadcast_alerts.
type BroadcastAlert struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	// StudentID / OriginUniversity identify the sender.
	StudentID        int64  `gorm:"index;not null" json:"student_id"`
	OriginUniversity string `gorm:"size:80;not null" json:"origin_university"`

	// TargetUniversity is the cluster member this row was fanned out to.
	TargetUniversity string `gorm:"size:80;index;not null" json:"target_university"`

	// Message is the rendered broadcast text.
	Message string `gorm:"size:800;not null" json:"message"`

	// HouseID optionally points at a house the student is asking about.
	HouseID *int64 `json:"house_id,omitempty"`

	// Raw and anchor-adjusted origin coordinates, for auditing.
	OriginLat   float64 `json:"origin_lat"`
	OriginLon   float64 `json:"origin_lon"`
	AdjustedLat float64 `json:"adjusted_lat"`
	AdjustedLon float64 `json:"adjusted_lon"`

	// Region used for anchor recalculation, and the reverse-geocoded
	// address included in the broadcast.
	Region         string `gorm:"size:80" json:"region"`
	DisplayAddress string `gorm:"size:255" json:"display_address"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName overrides the default plural table name.
func (BroadcastAlert) TableName() string {
	return "broadcast_alerts"
}
