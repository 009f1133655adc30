// Package model defines the structures mapped to database tables.
package model

import (
	"time"
)

// User roles.
const (
	RoleStudent  = "student"
	RoleLandlord = "landlord"
	RoleAdmin    = "admin"
)

// User account status.
const (
	UserStatusActive   int8 = 1
	UserStatusDisabled int8 = 0
)

// User is a registered account: a student looking for housing, a landlord
// operating boarding houses, or an admin.
// Maps to table users.
type User struct {
	// ID is the auto-increment primary key.
	ID int64 `gorm:"primaryKey" json:"id"`

	// Username is the login name, globally unique.
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`

	// PasswordHash is the bcrypt hash of the password. Never serialized.
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// Email is optional, used for account recovery.
	Email *string `gorm:"size:100;uniqueIndex" json:"email,omitempty"`

	// FirstName / LastName personalize landlord broadcasts.
	FirstName string `gorm:"size:60" json:"first_name"`
	LastName  string `gorm:"size:60" json:"last_name"`

	// University scopes the account: students see houses clustered around
	// their university, landlord broadcasts fan out per university.
	University string `gorm:"size:80;index;not null" json:"university"`

	// Role is one of student / landlord / admin.
	Role string `gorm:"size:20;default:student;index" json:"role"`

	// Premium gates the tracking and broadcast features.
	Premium bool `gorm:"default:false" json:"premium"`

	// Lat / Lon is the user's last stored position ("fine me" location).
	// Nil until the user first shares a location. Used as the trip origin
	// or current position when a request omits coordinates.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	// LocationUpdatedAt records when the stored position last changed.
	LocationUpdatedAt *time.Time `json:"location_updated_at,omitempty"`

	// Status: 1 active, 0 disabled.
	Status int8 `gorm:"default:1" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default plural table name.
func (User) TableName() string {
	return "users"
}
