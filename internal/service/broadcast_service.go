package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/klenoapp/kleno-server/internal/geo"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/pkg/geocode"
)

// Broadcast service errors.
var (
	ErrBroadcastLimit = errors.New("daily broadcast limit reached")
	ErrPremiumOnly    = errors.New("premium feature")
)

// NotificationSink delivers a broadcast to landlords of one university.
// Delivery transport (push, websocket, email) is the implementation's
// concern; the service only produces the message.
type NotificationSink interface {
	Deliver(ctx context.Context, university, title, body string, data map[string]string) error
}

// BroadcastStore is the persistence surface for broadcast alerts.
// *repository.BroadcastRepository is the production implementation.
type BroadcastStore interface {
	CreateBatch(ctx context.Context, alerts []model.BroadcastAlert) error
	RecentByUniversity(ctx context.Context, university string, since time.Time) ([]model.BroadcastAlert, error)
	CountByStudentSince(ctx context.Context, studentID int64, since time.Time) (int64, error)
}

// BroadcastService lets premium students announce they are looking for a
// room; landlords across the university cluster get notified.
type BroadcastService struct {
	broadcasts BroadcastStore
	users      PositionSource
	houses     DestinationResolver
	geocoder   *geocode.Client
	sink       NotificationSink
	dailyLimit int64
}

// NewBroadcastService creates a BroadcastService. geocoder and sink may be
// nil; geocoding then falls back to a placeholder address and delivery is
// skipped.
func NewBroadcastService(
	broadcasts BroadcastStore,
	users PositionSource,
	houses DestinationResolver,
	geocoder *geocode.Client,
	dailyLimit int,
) *BroadcastService {
	return &BroadcastService{
		broadcasts: broadcasts,
		users:      users,
		houses:     houses,
		geocoder:   geocoder,
		dailyLimit: int64(dailyLimit),
	}
}

// SetSink attaches the delivery sink.
func (s *BroadcastService) SetSink(sink NotificationSink) {
	s.sink = sink
}

// LogSink writes deliveries to the process log. It stands in until a real
// push provider is configured; landlords still see broadcasts by polling
// the recent-alerts endpoint.
type LogSink struct{}

// Deliver implements NotificationSink.
func (LogSink) Deliver(_ context.Context, university, title, body string, _ map[string]string) error {
	log.Printf("[INFO] broadcast to %s landlords: %s: %s", university, title, body)
	return nil
}

// SendBroadcastRequest is the broadcast payload. Position is optional; the
// student's stored location is the fallback.
type SendBroadcastRequest struct {
	Message         string    `json:"message" binding:"omitempty,max=300"`
	HouseID         int64     `json:"house_id"`
	Position        *Position `json:"position"`
	Region          string    `json:"region"`
	UseRegionAnchor bool      `json:"use_region_anchor"`
}

// SendBroadcastResponse reports where the broadcast went.
type SendBroadcastResponse struct {
	Message        string   `json:"message"`
	SentTo         []string `json:"sent_to"`
	DisplayAddress string   `json:"display_address"`
	Region         string   `json:"region"`
}

// SendBroadcast fans a "student looking for a room" alert out to every
// university in the student's cluster. Premium students only, capped per day.
func (s *BroadcastService) SendBroadcast(ctx context.Context, userID int64, req *SendBroadcastRequest) (*SendBroadcastResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.Premium && user.Role != model.RoleAdmin {
		return nil, ErrPremiumOnly
	}

	origin, err := s.resolveOrigin(user, req.Position)
	if err != nil {
		return nil, err
	}

	if req.HouseID != 0 {
		house, err := s.houses.GetByID(ctx, req.HouseID)
		if err != nil {
			return nil, err
		}
		if house == nil {
			return nil, ErrHouseNotFound
		}
	}

	// The quota counts stored alerts, so a send that fails a precondition
	// never burns a slot. Checked after validation, before the insert.
	sent, err := s.broadcasts.CountByStudentSince(ctx, userID, startOfDayUTC())
	if err != nil {
		return nil, err
	}
	if sent >= s.dailyLimit {
		return nil, ErrBroadcastLimit
	}

	region := req.Region
	if region == "" {
		region = user.University
	}
	adjusted := origin
	if req.UseRegionAnchor {
		adjusted = recalculateOrigin(origin, region)
	}

	displayAddress := s.reverseGeocode(ctx, adjusted.Lat, adjusted.Lon)

	body := fmt.Sprintf(
		"%s %s is looking for a boarding house near %s. Update your listings so that they can see it.",
		user.FirstName, user.LastName, displayAddress,
	)
	if req.Message != "" {
		body += " Note: " + req.Message
	}

	now := time.Now().UTC()
	cluster := clusterFor(user.University)
	alerts := make([]model.BroadcastAlert, len(cluster))
	for i, university := range cluster {
		alerts[i] = model.BroadcastAlert{
			StudentID:        userID,
			OriginUniversity: user.University,
			TargetUniversity: university,
			Message:          body,
			OriginLat:        origin.Lat,
			OriginLon:        origin.Lon,
			AdjustedLat:      adjusted.Lat,
			AdjustedLon:      adjusted.Lon,
			Region:           region,
			DisplayAddress:   displayAddress,
			CreatedAt:        now,
		}
		if req.HouseID != 0 {
			id := req.HouseID
			alerts[i].HouseID = &id
		}
	}

	if err := s.broadcasts.CreateBatch(ctx, alerts); err != nil {
		return nil, err
	}

	if s.sink != nil {
		data := map[string]string{
			"student_id":        fmt.Sprintf("%d", userID),
			"origin_university": user.University,
			"region":            region,
			"display_address":   displayAddress,
		}
		for _, university := range cluster {
			if err := s.sink.Deliver(ctx, university, "Student Alert", body, data); err != nil {
				log.Printf("[WARN] broadcast delivery to %s failed: %v", university, err)
			}
		}
	}

	return &SendBroadcastResponse{
		Message:        body,
		SentTo:         cluster,
		DisplayAddress: displayAddress,
		Region:         region,
	}, nil
}

// RecentBroadcasts lists alerts targeting the landlord's university in the
// last 7 days.
func (s *BroadcastService) RecentBroadcasts(ctx context.Context, userID int64) ([]model.BroadcastAlert, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	since := time.Now().UTC().AddDate(0, 0, -7)
	return s.broadcasts.RecentByUniversity(ctx, user.University, since)
}

// startOfDayUTC is the daily quota window boundary.
func startOfDayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *BroadcastService) resolveOrigin(user *model.User, pos *Position) (geo.Point, error) {
	if pos != nil {
		p := geo.Point{Lat: pos.Lat, Lon: pos.Lon}
		if err := p.Validate(); err != nil {
			return geo.Point{}, ErrInvalidCoordinates
		}
		return p, nil
	}
	if user.Lat == nil || user.Lon == nil {
		return geo.Point{}, ErrNoStoredLocation
	}
	return geo.Point{Lat: *user.Lat, Lon: *user.Lon}, nil
}

// reverseGeocode is best-effort; failures degrade to a placeholder.
func (s *BroadcastService) reverseGeocode(ctx context.Context, lat, lon float64) string {
	if s.geocoder == nil {
		return "Unknown location"
	}
	place, err := s.geocoder.Reverse(ctx, lat, lon)
	if err != nil || place.DisplayName == "" {
		if err != nil {
			log.Printf("[WARN] reverse geocode failed: %v", err)
		}
		return "Unknown location"
	}
	return place.DisplayName
}
