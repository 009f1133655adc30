// Package service implements the business logic layer.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/klenoapp/kleno-server/internal/geo"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/repository"
	"github.com/klenoapp/kleno-server/internal/tracking"
	"github.com/klenoapp/kleno-server/pkg/util"
)

// Tracking service errors.
var (
	ErrTripNotFound       = errors.New("trip not found")
	ErrTripNotActive      = errors.New("trip is not active")
	ErrHouseNotFound      = errors.New("boarding house not found")
	ErrHouseNoCoordinates = errors.New("boarding house has no coordinates")
	ErrNoStoredLocation   = errors.New("no position supplied and no stored location")
	ErrNoPermission       = errors.New("no permission")
	ErrStoreConflict      = errors.New("trip was updated concurrently, retry")
	ErrResumeRateLimited  = errors.New("too many updates, slow down")
)

// SessionStore is the persistence boundary for tracking sessions.
// *repository.SessionRepository is the production implementation.
type SessionStore interface {
	GetBySessionID(ctx context.Context, sessionID string) (*model.TrackingSession, error)
	GetBySessionIDWithHistory(ctx context.Context, sessionID string) (*model.TrackingSession, error)
	GetByUserIDWithPagination(ctx context.Context, userID int64, page, pageSize int) ([]model.TrackingSession, int64, error)
	CreateWithStart(ctx context.Context, session *model.TrackingSession, crumb *model.Breadcrumb, event *model.BubbleEvent) error
	SaveResume(ctx context.Context, sessionPK, expectedVersion int64, upd repository.ResumeUpdate, crumb *model.Breadcrumb, alerts []model.TrackingAlert, event *model.BubbleEvent) error
	EndSession(ctx context.Context, sessionPK, expectedVersion int64, status string) error
}

// DestinationResolver resolves a destination reference to coordinates.
type DestinationResolver interface {
	GetByID(ctx context.Context, id int64) (*model.BoardingHouse, error)
}

// PositionSource provides a user's last stored position when a call omits one.
type PositionSource interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TripCache is the Redis surface the tracking service needs.
type TripCache interface {
	IncrResumeCount(ctx context.Context, sessionID string, window time.Duration) (int64, error)
	AcquireResumeLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseResumeLock(ctx context.Context, sessionID string) error
	PublishTripUpdate(ctx context.Context, sessionID string, update interface{}) error
}

// TripNotifier tells connected watchers about terminal transitions. Position
// updates reach watchers through the Redis channel instead, so a single
// delivery path serves every server instance.
type TripNotifier interface {
	NotifyTripEnded(sessionID string, status string)
}

// TrackingService owns the trip lifecycle: start, resume, terminal states.
type TrackingService struct {
	sessions SessionStore
	houses   DestinationResolver
	users    PositionSource
	cache    TripCache
	notifier TripNotifier
	cfg      tracking.Config

	resumeRateLimit  int64
	resumeRateWindow time.Duration
}

// NewTrackingService creates a TrackingService.
func NewTrackingService(
	sessions SessionStore,
	houses DestinationResolver,
	users PositionSource,
	tripCache TripCache,
	cfg tracking.Config,
	resumeRateLimit int,
	resumeRateWindow time.Duration,
) *TrackingService {
	return &TrackingService{
		sessions:         sessions,
		houses:           houses,
		users:            users,
		cache:            tripCache,
		cfg:              cfg,
		resumeRateLimit:  int64(resumeRateLimit),
		resumeRateWindow: resumeRateWindow,
	}
}

// SetNotifier attaches the watcher notifier. Wired after construction because
// the websocket hub depends on this service for auth checks.
func (s *TrackingService) SetNotifier(n TripNotifier) {
	s.notifier = n
}

// Position is an optional caller-supplied coordinate pair. No `required`
// binding on the fields: zero is a legal coordinate, and range checking
// belongs to geo.Point.Validate.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// StartTripRequest starts a tracked trip toward a boarding house.
// Position is optional; when omitted the user's stored location is used.
type StartTripRequest struct {
	HouseID    int64     `json:"house_id" binding:"required"`
	Position   *Position `json:"position"`
	ClientNote string    `json:"client_note"`
}

// ResumeTripRequest carries one position sample. HouseID is optional and
// rebinds the destination when it names a different house.
type ResumeTripRequest struct {
	HouseID  int64     `json:"house_id"`
	Position *Position `json:"position"`
}

// TripUpdate is the snapshot returned per resume call and fanned out to
// websocket watchers.
type TripUpdate struct {
	SessionID          string   `json:"session_id"`
	Lat                float64  `json:"lat"`
	Lon                float64  `json:"lon"`
	DistanceKm         float64  `json:"distance_km"`
	DeviationKm        float64  `json:"deviation_km"`
	MaxDeviationKm     float64  `json:"max_deviation_km"`
	RadiusKm           float64  `json:"radius_km"`
	AllowedDeviationKm float64  `json:"allowed_deviation_km"`
	Heading            string   `json:"heading"`
	Movement           string   `json:"movement"`
	Alerts             []string `json:"alerts"`
	PointsLogged       int      `json:"points_logged"`
	CapturedAt         string   `json:"captured_at"`
}

// TripResponse is the session view returned by start/get/list.
type TripResponse struct {
	SessionID          string  `json:"session_id"`
	HouseID            int64   `json:"house_id"`
	Status             string  `json:"status"`
	OriginLat          float64 `json:"origin_lat"`
	OriginLon          float64 `json:"origin_lon"`
	DestLat            float64 `json:"dest_lat"`
	DestLon            float64 `json:"dest_lon"`
	StraightKm         float64 `json:"straight_km"`
	RadiusKm           float64 `json:"radius_km"`
	AllowedDeviationKm float64 `json:"allowed_deviation_km"`
	PointsLogged       int     `json:"points_logged"`
	MaxDeviationKm     float64 `json:"max_deviation_km"`
	LastDistanceKm     float64 `json:"last_distance_km"`
	LastDeviationKm    float64 `json:"last_deviation_km"`
	StartedAt          string  `json:"started_at"`
	EndedAt            *string `json:"ended_at,omitempty"`
}

// TripDetailResponse adds the trip history to the session view.
type TripDetailResponse struct {
	Trip         TripResponse          `json:"trip"`
	Breadcrumbs  []BreadcrumbResponse  `json:"breadcrumbs"`
	Alerts       []TripAlertResponse   `json:"alerts"`
	BubbleEvents []BubbleEventResponse `json:"bubble_events"`
}

// BreadcrumbResponse is one recorded position sample.
type BreadcrumbResponse struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	DistanceKm   float64 `json:"distance_km"`
	DeviationKm  float64 `json:"deviation_km"`
	Heading      string  `json:"heading"`
	Movement     string  `json:"movement"`
	RadiusKm     float64 `json:"radius_km"`
	AllowedDevKm float64 `json:"allowed_dev_km"`
	CapturedAt   string  `json:"captured_at"`
}

// TripAlertResponse is one recorded alert.
type TripAlertResponse struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// BubbleEventResponse is one recorded radius change.
type BubbleEventResponse struct {
	RadiusKm     float64 `json:"radius_km"`
	PrevRadiusKm float64 `json:"prev_radius_km"`
	StepsElapsed int     `json:"steps_elapsed"`
	Reason       string  `json:"reason"`
	CreatedAt    string  `json:"created_at"`
}

// StartTrip creates a new tracking session.
// Nothing is persisted until every precondition has passed.
func (s *TrackingService) StartTrip(ctx context.Context, userID int64, req *StartTripRequest) (*TripResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoPermission
	}

	destLat, destLon, err := s.resolveDestination(ctx, req.HouseID)
	if err != nil {
		return nil, err
	}
	destination := geo.Point{Lat: destLat, Lon: destLon}

	origin, err := s.resolvePosition(user, req.Position)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	straightKm := geo.HaversineKm(origin, destination)
	r0 := s.cfg.InitialRadiusKm(straightKm)
	radius := s.cfg.ComputeRadius(r0, straightKm, now, now)

	session := &model.TrackingSession{
		SessionID:         util.GenerateSessionID(),
		UserID:            userID,
		University:        user.University,
		HouseID:           req.HouseID,
		Status:            model.TripStatusActive,
		OriginLat:         origin.Lat,
		OriginLon:         origin.Lon,
		DestLat:           destination.Lat,
		DestLon:           destination.Lon,
		StraightKm:        tracking.RoundKm(straightKm),
		RadiusKm:          tracking.RoundKm(radius.RadiusKm),
		R0Km:              tracking.RoundKm(r0),
		MinRadiusKm:       s.cfg.MinRadiusKm,
		ShrinkStepKm:      s.cfg.ShrinkStepKm,
		ShrinkIntervalMin: s.cfg.ShrinkIntervalMin,
		PointsLogged:      1,
		LastDistanceKm:    tracking.RoundKm(straightKm),
		LastAllowedDevKm:  tracking.RoundKm(radius.AllowedDevKm),
		StartedAt:         now,
	}
	if req.ClientNote != "" {
		session.ClientNote = util.StringPtr(req.ClientNote)
	}

	crumb := &model.Breadcrumb{
		Lat:          origin.Lat,
		Lon:          origin.Lon,
		CapturedAt:   now,
		DistanceKm:   tracking.RoundKm(straightKm),
		DeviationKm:  0,
		Heading:      geo.DirectionLabel(geo.BearingDegrees(origin, destination)),
		Movement:     tracking.MovementStart,
		RadiusKm:     tracking.RoundKm(radius.RadiusKm),
		AllowedDevKm: tracking.RoundKm(radius.AllowedDevKm),
	}

	event := &model.BubbleEvent{
		RadiusKm:     tracking.RoundKm(radius.RadiusKm),
		PrevRadiusKm: 0,
		StepsElapsed: 0,
		Reason:       tracking.BubbleReasonInit,
		CreatedAt:    now,
	}

	if err := s.sessions.CreateWithStart(ctx, session, crumb, event); err != nil {
		return nil, err
	}

	return s.toTripResponse(session), nil
}

// ResumeTrip applies one position sample to an active session: recomputes
// the bubble, evaluates deviation alerts and persists the transition
// atomically. Concurrent resumes for the same session serialize on a Redis
// lock; if the row still moved underneath us the optimistic version check
// rejects the write and the caller retries with a fresh sample.
func (s *TrackingService) ResumeTrip(ctx context.Context, userID int64, sessionID string, req *ResumeTripRequest) (*TripUpdate, error) {
	count, err := s.cache.IncrResumeCount(ctx, sessionID, s.resumeRateWindow)
	if err != nil {
		log.Printf("[WARN] resume rate counter unavailable: %v", err)
	} else if count > s.resumeRateLimit {
		return nil, ErrResumeRateLimited
	}

	locked, err := s.cache.AcquireResumeLock(ctx, sessionID, 10*time.Second)
	if err != nil {
		log.Printf("[WARN] resume lock unavailable: %v", err)
	} else if !locked {
		return nil, ErrStoreConflict
	}
	if err == nil && locked {
		defer func() {
			if rerr := s.cache.ReleaseResumeLock(context.Background(), sessionID); rerr != nil {
				log.Printf("[WARN] failed to release resume lock for %s: %v", sessionID, rerr)
			}
		}()
	}

	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrTripNotFound
	}
	if session.UserID != userID {
		return nil, ErrNoPermission
	}
	if !session.IsActive() {
		return nil, ErrTripNotActive
	}

	// Rebinding the destination moves the corridor's endpoint, never its
	// origin: deviation stays measured against origin -> new destination.
	houseID := session.HouseID
	destination := geo.Point{Lat: session.DestLat, Lon: session.DestLon}
	if req.HouseID != 0 {
		destLat, destLon, err := s.resolveDestination(ctx, req.HouseID)
		if err != nil {
			return nil, err
		}
		houseID = req.HouseID
		destination = geo.Point{Lat: destLat, Lon: destLon}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoPermission
	}
	current, err := s.resolvePosition(user, req.Position)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	origin := geo.Point{Lat: session.OriginLat, Lon: session.OriginLon}

	radius, result := tracking.Step(s.cfg, tracking.StepInput{
		Current:          current,
		Origin:           origin,
		Destination:      destination,
		PrevDistanceKm:   session.LastDistanceKm,
		PrevDeviationKm:  session.LastDeviationKm,
		PrevMaxDevKm:     session.MaxDeviationKm,
		PrevAllowedDevKm: session.LastAllowedDevKm,
	}, session.R0Km, session.StartedAt, now)

	upd := repository.ResumeUpdate{
		HouseID:          houseID,
		DestLat:          destination.Lat,
		DestLon:          destination.Lon,
		RadiusKm:         tracking.RoundKm(radius.RadiusKm),
		ShrinkStepCount:  radius.StepsElapsed,
		MaxDeviationKm:   tracking.RoundKm(result.MaxDeviationKm),
		LastDistanceKm:   tracking.RoundKm(result.DistanceKm),
		LastDeviationKm:  tracking.RoundKm(result.DeviationKm),
		LastAllowedDevKm: tracking.RoundKm(radius.AllowedDevKm),
		LastResumedAt:    now,
	}

	crumb := &model.Breadcrumb{
		Lat:          current.Lat,
		Lon:          current.Lon,
		CapturedAt:   now,
		DistanceKm:   tracking.RoundKm(result.DistanceKm),
		DeviationKm:  tracking.RoundKm(result.DeviationKm),
		Heading:      result.Heading,
		Movement:     result.Movement,
		RadiusKm:     tracking.RoundKm(radius.RadiusKm),
		AllowedDevKm: tracking.RoundKm(radius.AllowedDevKm),
	}

	alerts := make([]model.TrackingAlert, 0, len(result.Alerts))
	for _, a := range result.Alerts {
		alerts = append(alerts, model.TrackingAlert{
			Level:     a.Level,
			Message:   a.Message,
			CreatedAt: now,
		})
	}

	// A bubble event is recorded only when the radius actually moved.
	var event *model.BubbleEvent
	if tracking.RadiusChanged(session.RadiusKm, radius.RadiusKm) {
		event = &model.BubbleEvent{
			RadiusKm:     tracking.RoundKm(radius.RadiusKm),
			PrevRadiusKm: session.RadiusKm,
			StepsElapsed: radius.StepsElapsed,
			Reason:       tracking.BubbleReasonShrink,
			CreatedAt:    now,
		}
		shrinkAt := now
		upd.LastShrinkAt = &shrinkAt
	}

	if err := s.sessions.SaveResume(ctx, session.ID, session.Version, upd, crumb, alerts, event); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrStoreConflict
		}
		return nil, err
	}

	update := &TripUpdate{
		SessionID:          session.SessionID,
		Lat:                current.Lat,
		Lon:                current.Lon,
		DistanceKm:         tracking.RoundKm(result.DistanceKm),
		DeviationKm:        tracking.RoundKm(result.DeviationKm),
		MaxDeviationKm:     tracking.RoundKm(result.MaxDeviationKm),
		RadiusKm:           tracking.RoundKm(radius.RadiusKm),
		AllowedDeviationKm: tracking.RoundKm(radius.AllowedDevKm),
		Heading:            result.Heading,
		Movement:           result.Movement,
		Alerts:             alertMessages(result.Alerts),
		PointsLogged:       session.PointsLogged + 1,
		CapturedAt:         now.Format(time.RFC3339),
	}

	s.fanOut(session.SessionID, update)

	return update, nil
}

// GetTrip returns a session with its full history. Watch access is limited
// to the owner; landlords watch through the websocket endpoint instead.
func (s *TrackingService) GetTrip(ctx context.Context, userID int64, sessionID string) (*TripDetailResponse, error) {
	session, err := s.sessions.GetBySessionIDWithHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrTripNotFound
	}
	if session.UserID != userID {
		return nil, ErrNoPermission
	}

	detail := &TripDetailResponse{
		Trip:         *s.toTripResponse(session),
		Breadcrumbs:  make([]BreadcrumbResponse, len(session.Breadcrumbs)),
		Alerts:       make([]TripAlertResponse, len(session.Alerts)),
		BubbleEvents: make([]BubbleEventResponse, len(session.BubbleEvents)),
	}
	for i, c := range session.Breadcrumbs {
		detail.Breadcrumbs[i] = BreadcrumbResponse{
			Lat:          c.Lat,
			Lon:          c.Lon,
			DistanceKm:   c.DistanceKm,
			DeviationKm:  c.DeviationKm,
			Heading:      c.Heading,
			Movement:     c.Movement,
			RadiusKm:     c.RadiusKm,
			AllowedDevKm: c.AllowedDevKm,
			CapturedAt:   c.CapturedAt.Format(time.RFC3339),
		}
	}
	for i, a := range session.Alerts {
		detail.Alerts[i] = TripAlertResponse{
			Level:     a.Level,
			Message:   a.Message,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	for i, e := range session.BubbleEvents {
		detail.BubbleEvents[i] = BubbleEventResponse{
			RadiusKm:     e.RadiusKm,
			PrevRadiusKm: e.PrevRadiusKm,
			StepsElapsed: e.StepsElapsed,
			Reason:       e.Reason,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		}
	}
	return detail, nil
}

// CanWatch reports whether a user may subscribe to live updates for a
// session. The owner always can. The landlord of the destination house and
// admins can too, so a student can share their trip with the host.
func (s *TrackingService) CanWatch(ctx context.Context, userID int64, role string, sessionID string) error {
	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrTripNotFound
	}
	if session.UserID == userID || role == model.RoleAdmin {
		return nil
	}
	if role == model.RoleLandlord {
		house, err := s.houses.GetByID(ctx, session.HouseID)
		if err != nil {
			return err
		}
		if house != nil && house.LandlordID != nil && *house.LandlordID == userID {
			return nil
		}
	}
	return ErrNoPermission
}

// ListTrips pages through the user's sessions.
func (s *TrackingService) ListTrips(ctx context.Context, userID int64, page, pageSize int) ([]TripResponse, int64, error) {
	sessions, total, err := s.sessions.GetByUserIDWithPagination(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	result := make([]TripResponse, len(sessions))
	for i := range sessions {
		result[i] = *s.toTripResponse(&sessions[i])
	}
	return result, total, nil
}

// CompleteTrip moves an active session to Completed.
func (s *TrackingService) CompleteTrip(ctx context.Context, userID int64, sessionID string) error {
	return s.endTrip(ctx, userID, sessionID, model.TripStatusCompleted)
}

// CancelTrip moves an active session to Cancelled.
func (s *TrackingService) CancelTrip(ctx context.Context, userID int64, sessionID string) error {
	return s.endTrip(ctx, userID, sessionID, model.TripStatusCancelled)
}

func (s *TrackingService) endTrip(ctx context.Context, userID int64, sessionID, status string) error {
	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrTripNotFound
	}
	if session.UserID != userID {
		return ErrNoPermission
	}
	if !session.IsActive() {
		return ErrTripNotActive
	}

	if err := s.sessions.EndSession(ctx, session.ID, session.Version, status); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrStoreConflict
		}
		return err
	}

	if s.notifier != nil {
		go s.notifier.NotifyTripEnded(sessionID, status)
	}
	return nil
}

// resolveDestination looks the house up and returns its coordinates.
func (s *TrackingService) resolveDestination(ctx context.Context, houseID int64) (float64, float64, error) {
	house, err := s.houses.GetByID(ctx, houseID)
	if err != nil {
		return 0, 0, err
	}
	if house == nil {
		return 0, 0, ErrHouseNotFound
	}
	lat, lon, ok := house.Coordinates()
	if !ok {
		return 0, 0, ErrHouseNoCoordinates
	}
	if err := (geo.Point{Lat: lat, Lon: lon}).Validate(); err != nil {
		return 0, 0, ErrHouseNoCoordinates
	}
	return lat, lon, nil
}

// resolvePosition uses the caller-supplied position, falling back to the
// user's stored location.
func (s *TrackingService) resolvePosition(user *model.User, pos *Position) (geo.Point, error) {
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
	p := geo.Point{Lat: *user.Lat, Lon: *user.Lon}
	if err := p.Validate(); err != nil {
		return geo.Point{}, ErrInvalidCoordinates
	}
	return p, nil
}

// fanOut publishes an update on the trip channel. Watchers on every
// instance, this one included, receive it through their Redis subscription.
// Delivery is best-effort.
func (s *TrackingService) fanOut(sessionID string, update *TripUpdate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.PublishTripUpdate(ctx, sessionID, update); err != nil {
			log.Printf("[WARN] failed to publish trip update for %s: %v", sessionID, err)
		}
	}()
}

func (s *TrackingService) toTripResponse(session *model.TrackingSession) *TripResponse {
	resp := &TripResponse{
		SessionID:          session.SessionID,
		HouseID:            session.HouseID,
		Status:             session.Status,
		OriginLat:          session.OriginLat,
		OriginLon:          session.OriginLon,
		DestLat:            session.DestLat,
		DestLon:            session.DestLon,
		StraightKm:         session.StraightKm,
		RadiusKm:           session.RadiusKm,
		AllowedDeviationKm: session.LastAllowedDevKm,
		PointsLogged:       session.PointsLogged,
		MaxDeviationKm:     session.MaxDeviationKm,
		LastDistanceKm:     session.LastDistanceKm,
		LastDeviationKm:    session.LastDeviationKm,
		StartedAt:          session.StartedAt.Format(time.RFC3339),
	}
	if session.EndedAt != nil {
		formatted := session.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &formatted
	}
	return resp
}

func alertMessages(alerts []tracking.Alert) []string {
	msgs := make([]string, len(alerts))
	for i, a := range alerts {
		msgs[i] = a.Message
	}
	return msgs
}
