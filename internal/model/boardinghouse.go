// Package model defines the structures mapped to database tables.
package model

import (
	"time"
)

// Boarding house listing status.
const (
	HouseStatusListed   = "listed"
	HouseStatusUnlisted = "unlisted"
)

// Gender policies.
const (
	HouseGenderMale   = "male"
	HouseGenderFemale = "female"
	HouseGenderBoth   = "both"
	HouseGenderMixed  = "mixed"
)

// BoardingHouse is a housing listing students can navigate to and track
// trips toward.
// Maps to table boarding_houses.
type BoardingHouse struct {
	// ID is the auto-increment primary key; it doubles as the destination
	// reference carried by tracking sessions.
	ID int64 `gorm:"primaryKey" json:"id"`

	// LandlordID is the owning landlord account, if registered.
	LandlordID *int64 `gorm:"index" json:"landlord_id,omitempty"`

	// Name of the boarding house.
	Name string `gorm:"size:120;not null" json:"name"`

	// University the house primarily serves. Nearby search expands this
	// to the whole regional cluster.
	University string `gorm:"size:80;index;not null" json:"university"`

	// Location is the human-readable neighbourhood / address line.
	Location *string `gorm:"size:255" json:"location,omitempty"`

	// Lat / Lon are the GPS coordinates of the house. Houses without
	// coordinates cannot be tracking destinations.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	// YangoLat / YangoLon are pickup-point coordinates tuned for
	// ride-hailing, preferred over the raw GPS pair when present.
	YangoLat *float64 `json:"yango_lat,omitempty"`
	YangoLon *float64 `json:"yango_lon,omitempty"`

	// Gender policy: male / female / both / mixed.
	Gender string `gorm:"size:10;default:mixed" json:"gender"`

	// LowestPrice is the cheapest available room price, for listing cards.
	LowestPrice *float64 `json:"lowest_price,omitempty"`

	// Rating is the aggregate review score, if any.
	Rating *float64 `json:"rating,omitempty"`

	// Status: listed / unlisted.
	Status string `gorm:"size:20;default:listed;index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default plural table name.
func (BoardingHouse) TableName() string {
	return "boarding_houses"
}

// Coordinates returns the best destination pair for the house: the
// ride-hailing pickup point when present, otherwise the raw GPS pair.
// ok is false when the house has no usable coordinates.
func (h *BoardingHouse) Coordinates() (lat, lon float64, ok bool) {
	if h.YangoLat != nil && h.YangoLon != nil {
		return *h.YangoLat, *h.YangoLon, true
	}
	if h.Lat != nil && h.Lon != nil {
		return *h.Lat, *h.Lon, true
	}
	return 0, 0, false
}
