package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klenoapp/kleno-server/internal/geo"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/repository"
	"github.com/klenoapp/kleno-server/internal/tracking"
	"github.com/klenoapp/kleno-server/pkg/util"
)

// fakeSessionStore is an in-memory SessionStore.
type fakeSessionStore struct {
	sessions map[string]*model.TrackingSession
	crumbs   map[int64][]model.Breadcrumb
	alerts   map[int64][]model.TrackingAlert
	events   map[int64][]model.BubbleEvent
	nextPK   int64
	failSave error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*model.TrackingSession),
		crumbs:   make(map[int64][]model.Breadcrumb),
		alerts:   make(map[int64][]model.TrackingAlert),
		events:   make(map[int64][]model.BubbleEvent),
	}
}

func (f *fakeSessionStore) GetBySessionID(_ context.Context, sessionID string) (*model.TrackingSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) GetBySessionIDWithHistory(ctx context.Context, sessionID string) (*model.TrackingSession, error) {
	s, err := f.GetBySessionID(ctx, sessionID)
	if err != nil || s == nil {
		return s, err
	}
	s.Breadcrumbs = append([]model.Breadcrumb(nil), f.crumbs[s.ID]...)
	s.Alerts = append([]model.TrackingAlert(nil), f.alerts[s.ID]...)
	s.BubbleEvents = append([]model.BubbleEvent(nil), f.events[s.ID]...)
	return s, nil
}

func (f *fakeSessionStore) GetByUserIDWithPagination(_ context.Context, userID int64, page, pageSize int) ([]model.TrackingSession, int64, error) {
	var all []model.TrackingSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	return all, int64(len(all)), nil
}

func (f *fakeSessionStore) CreateWithStart(_ context.Context, session *model.TrackingSession, crumb *model.Breadcrumb, event *model.BubbleEvent) error {
	f.nextPK++
	session.ID = f.nextPK
	f.sessions[session.SessionID] = session
	crumb.SessionPK = session.ID
	f.crumbs[session.ID] = append(f.crumbs[session.ID], *crumb)
	event.SessionPK = session.ID
	f.events[session.ID] = append(f.events[session.ID], *event)
	return nil
}

func (f *fakeSessionStore) SaveResume(_ context.Context, sessionPK, expectedVersion int64, upd repository.ResumeUpdate, crumb *model.Breadcrumb, alerts []model.TrackingAlert, event *model.BubbleEvent) error {
	if f.failSave != nil {
		return f.failSave
	}
	var target *model.TrackingSession
	for _, s := range f.sessions {
		if s.ID == sessionPK {
			target = s
			break
		}
	}
	if target == nil || target.Version != expectedVersion || target.Status != model.TripStatusActive {
		return repository.ErrVersionConflict
	}

	target.HouseID = upd.HouseID
	target.DestLat = upd.DestLat
	target.DestLon = upd.DestLon
	target.RadiusKm = upd.RadiusKm
	target.ShrinkStepCount = upd.ShrinkStepCount
	target.MaxDeviationKm = upd.MaxDeviationKm
	target.LastDistanceKm = upd.LastDistanceKm
	target.LastDeviationKm = upd.LastDeviationKm
	target.LastAllowedDevKm = upd.LastAllowedDevKm
	target.LastResumedAt = &upd.LastResumedAt
	if upd.LastShrinkAt != nil {
		target.LastShrinkAt = upd.LastShrinkAt
	}
	target.PointsLogged++
	target.Version++

	crumb.SessionPK = sessionPK
	f.crumbs[sessionPK] = append(f.crumbs[sessionPK], *crumb)
	for _, a := range alerts {
		a.SessionPK = sessionPK
		f.alerts[sessionPK] = append(f.alerts[sessionPK], a)
	}
	if event != nil {
		event.SessionPK = sessionPK
		f.events[sessionPK] = append(f.events[sessionPK], *event)
	}
	return nil
}

func (f *fakeSessionStore) EndSession(_ context.Context, sessionPK, expectedVersion int64, status string) error {
	for _, s := range f.sessions {
		if s.ID == sessionPK {
			if s.Version != expectedVersion || s.Status != model.TripStatusActive {
				return repository.ErrVersionConflict
			}
			now := time.Now()
			s.Status = status
			s.EndedAt = &now
			s.Version++
			return nil
		}
	}
	return repository.ErrVersionConflict
}

// fakeHouses resolves destinations from a map.
type fakeHouses struct {
	houses map[int64]*model.BoardingHouse
}

func (f *fakeHouses) GetByID(_ context.Context, id int64) (*model.BoardingHouse, error) {
	return f.houses[id], nil
}

// fakeUsers resolves users from a map.
type fakeUsers struct {
	users map[int64]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	return f.users[id], nil
}

// fakeTripCache counts resumes and hands out locks in memory.
type fakeTripCache struct {
	counts    map[string]int64
	locked    map[string]bool
	published []string
}

func newFakeTripCache() *fakeTripCache {
	return &fakeTripCache{counts: make(map[string]int64), locked: make(map[string]bool)}
}

func (f *fakeTripCache) IncrResumeCount(_ context.Context, sessionID string, _ time.Duration) (int64, error) {
	f.counts[sessionID]++
	return f.counts[sessionID], nil
}

func (f *fakeTripCache) AcquireResumeLock(_ context.Context, sessionID string, _ time.Duration) (bool, error) {
	if f.locked[sessionID] {
		return false, nil
	}
	f.locked[sessionID] = true
	return true, nil
}

func (f *fakeTripCache) ReleaseResumeLock(_ context.Context, sessionID string) error {
	f.locked[sessionID] = false
	return nil
}

func (f *fakeTripCache) PublishTripUpdate(_ context.Context, sessionID string, _ interface{}) error {
	f.published = append(f.published, sessionID)
	return nil
}

func testTrackingConfig() tracking.Config {
	return tracking.Config{
		InitialRadiusFloorKm:  2.0,
		InitialRadiusMarginKm: 2.0,
		MinRadiusKm:           0.3,
		ShrinkStepKm:          0.5,
		ShrinkIntervalMin:     30,
		SafetyMarginKm:        0.2,
		LateralAllowanceRatio: 0.2,
		HardDeviationKm:       1.0,
	}
}

// Test fixture: student in Lusaka, house 11 km due south so the corridor is
// a meridian and lateral offsets are easy to construct.
var (
	testOrigin = geo.Point{Lat: -15.4167, Lon: 28.2833}
	testHouse  = geo.Point{Lat: -15.5167, Lon: 28.2833}
)

func newTestTrackingService(t *testing.T) (*TrackingService, *fakeSessionStore, *fakeTripCache) {
	t.Helper()
	store := newFakeSessionStore()
	houses := &fakeHouses{houses: map[int64]*model.BoardingHouse{
		7: {
			ID:         7,
			Name:       "Mumba Lodge",
			University: "UNZA",
			LandlordID: util.Int64Ptr(42),
			Lat:        util.Float64Ptr(testHouse.Lat),
			Lon:        util.Float64Ptr(testHouse.Lon),
			Status:     model.HouseStatusListed,
		},
		8: {
			ID:         8,
			Name:       "No GPS Hostel",
			University: "UNZA",
			Status:     model.HouseStatusListed,
		},
	}}
	users := &fakeUsers{users: map[int64]*model.User{
		1: {
			ID:         1,
			Username:   "chanda",
			University: "UNZA",
			Role:       model.RoleStudent,
			Status:     model.UserStatusActive,
			Lat:        util.Float64Ptr(testOrigin.Lat),
			Lon:        util.Float64Ptr(testOrigin.Lon),
		},
		2: {
			ID:         2,
			Username:   "nolocation",
			University: "UNZA",
			Role:       model.RoleStudent,
			Status:     model.UserStatusActive,
		},
	}}
	tripCache := newFakeTripCache()
	svc := NewTrackingService(store, houses, users, tripCache, testTrackingConfig(), 2, 30*time.Second)
	return svc, store, tripCache
}

func TestStartTripInitializesBubble(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	resp, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	straight := geo.HaversineKm(testOrigin, testHouse)
	assert.Equal(t, model.TripStatusActive, resp.Status)
	assert.InDelta(t, straight, resp.StraightKm, 0.001)
	// At start the radius equals R0 = straight + margin.
	assert.InDelta(t, straight+2.0, resp.RadiusKm, 0.001)
	assert.InDelta(t, 0.2*(straight+2.0), resp.AllowedDeviationKm, 0.001)
	assert.Equal(t, 1, resp.PointsLogged)

	session := store.sessions[resp.SessionID]
	require.NotNil(t, session)
	crumbs := store.crumbs[session.ID]
	require.Len(t, crumbs, 1)
	assert.Zero(t, crumbs[0].DeviationKm)
	assert.Equal(t, tracking.MovementStart, crumbs[0].Movement)
	assert.Equal(t, "S", crumbs[0].Heading)

	events := store.events[session.ID]
	require.Len(t, events, 1)
	assert.Equal(t, tracking.BubbleReasonInit, events[0].Reason)
}

func TestStartTripUsesStoredLocationFallback(t *testing.T) {
	svc, _, _ := newTestTrackingService(t)

	resp, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)
	assert.InDelta(t, testOrigin.Lat, resp.OriginLat, 1e-9)
	assert.InDelta(t, testOrigin.Lon, resp.OriginLon, 1e-9)
}

func TestStartTripPreconditions(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	_, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 999})
	assert.ErrorIs(t, err, ErrHouseNotFound)

	_, err = svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 8})
	assert.ErrorIs(t, err, ErrHouseNoCoordinates)

	_, err = svc.StartTrip(context.Background(), 2, &StartTripRequest{HouseID: 7})
	assert.ErrorIs(t, err, ErrNoStoredLocation)

	// No session was persisted by any failed start.
	assert.Empty(t, store.sessions)
}

func TestResumeTripOnCorridor(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	// Halfway along the meridian corridor: zero deviation, no alerts.
	update, err := svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4667, Lon: 28.2833},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0, update.DeviationKm, 0.005)
	assert.Empty(t, update.Alerts)
	assert.Equal(t, tracking.MovementCloser, update.Movement)
	assert.Equal(t, 2, update.PointsLogged)

	session := store.sessions[started.SessionID]
	assert.Len(t, store.crumbs[session.ID], 2)
	assert.Empty(t, store.alerts[session.ID])
	assert.Equal(t, int64(1), session.Version)
}

func TestResumeTripHardAlert(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	// ~1.5 km east of the corridor: hard alert, never the soft one.
	update, err := svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4667, Lon: 28.2973},
	})
	require.NoError(t, err)

	require.Len(t, update.Alerts, 1)
	assert.Contains(t, update.Alerts[0], "Hard warning")

	session := store.sessions[started.SessionID]
	recorded := store.alerts[session.ID]
	require.Len(t, recorded, 1)
	assert.Equal(t, tracking.AlertLevelHard, recorded[0].Level)
	assert.Greater(t, session.MaxDeviationKm, 1.0)
}

func TestResumeTripMaxDeviationMonotone(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4667, Lon: 28.2973},
	})
	require.NoError(t, err)
	peak := store.sessions[started.SessionID].MaxDeviationKm

	// Back on the corridor: max deviation must not shrink.
	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4867, Lon: 28.2833},
	})
	require.NoError(t, err)
	assert.Equal(t, peak, store.sessions[started.SessionID].MaxDeviationKm)
}

func TestResumeTripReturnToCorridor(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	// Short corridor (~3.3 km) so the lateral allowance (0.2 * R0) sits
	// near 1.1 km and a 1.5 km offset actually exceeds it.
	svc.houses.(*fakeHouses).houses[10] = &model.BoardingHouse{
		ID:         10,
		Name:       "Short Hop Lodge",
		University: "UNZA",
		Lat:        util.Float64Ptr(-15.4467),
		Lon:        util.Float64Ptr(28.2833),
		Status:     model.HouseStatusListed,
	}

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 10})
	require.NoError(t, err)

	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4300, Lon: 28.2973},
	})
	require.NoError(t, err)

	update, err := svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4367, Lon: 28.2833},
	})
	require.NoError(t, err)

	require.Len(t, update.Alerts, 1)
	assert.Contains(t, update.Alerts[0], "Returning")

	session := store.sessions[started.SessionID]
	levels := make([]string, 0, 2)
	for _, a := range store.alerts[session.ID] {
		levels = append(levels, a.Level)
	}
	assert.Equal(t, []string{tracking.AlertLevelHard, tracking.AlertLevelReturn}, levels)
}

func TestResumeTripRebindsDestinationNotOrigin(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)
	houses := svc.houses.(*fakeHouses)
	houses.houses[9] = &model.BoardingHouse{
		ID:         9,
		Name:       "Kafue Rest",
		University: "UNZA",
		Lat:        util.Float64Ptr(-15.5367),
		Lon:        util.Float64Ptr(28.2833),
		Status:     model.HouseStatusListed,
	}

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		HouseID:  9,
		Position: &Position{Lat: -15.4667, Lon: 28.2833},
	})
	require.NoError(t, err)

	session := store.sessions[started.SessionID]
	assert.Equal(t, int64(9), session.HouseID)
	assert.InDelta(t, -15.5367, session.DestLat, 1e-9)
	// The corridor origin never moves.
	assert.InDelta(t, testOrigin.Lat, session.OriginLat, 1e-9)
}

func TestResumeTripPreconditions(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	_, err := svc.ResumeTrip(context.Background(), 1, "missing", &ResumeTripRequest{
		Position: &Position{Lat: -15.46, Lon: 28.28},
	})
	assert.ErrorIs(t, err, ErrTripNotFound)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	// Another user cannot touch the session.
	_, err = svc.ResumeTrip(context.Background(), 2, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.46, Lon: 28.28},
	})
	assert.ErrorIs(t, err, ErrNoPermission)

	require.NoError(t, svc.CancelTrip(context.Background(), 1, started.SessionID))

	session := store.sessions[started.SessionID]
	before := len(store.crumbs[session.ID])

	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.46, Lon: 28.28},
	})
	assert.ErrorIs(t, err, ErrTripNotActive)
	assert.Len(t, store.crumbs[session.ID], before)
}

func TestResumeTripRateLimit(t *testing.T) {
	svc, _, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	pos := &ResumeTripRequest{Position: &Position{Lat: -15.4667, Lon: 28.2833}}
	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, pos)
	require.NoError(t, err)
	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, pos)
	require.NoError(t, err)

	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, pos)
	assert.ErrorIs(t, err, ErrResumeRateLimited)
}

func TestResumeTripStoreConflict(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	store.failSave = repository.ErrVersionConflict
	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4667, Lon: 28.2833},
	})
	assert.ErrorIs(t, err, ErrStoreConflict)
}

func TestCompleteAndCancelTrip(t *testing.T) {
	svc, store, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteTrip(context.Background(), 1, started.SessionID))
	assert.Equal(t, model.TripStatusCompleted, store.sessions[started.SessionID].Status)

	// Terminal states accept no further transitions.
	err = svc.CancelTrip(context.Background(), 1, started.SessionID)
	assert.ErrorIs(t, err, ErrTripNotActive)
}

func TestGetTripHistory(t *testing.T) {
	svc, _, _ := newTestTrackingService(t)

	started, err := svc.StartTrip(context.Background(), 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)
	_, err = svc.ResumeTrip(context.Background(), 1, started.SessionID, &ResumeTripRequest{
		Position: &Position{Lat: -15.4667, Lon: 28.2973},
	})
	require.NoError(t, err)

	detail, err := svc.GetTrip(context.Background(), 1, started.SessionID)
	require.NoError(t, err)
	assert.Len(t, detail.Breadcrumbs, 2)
	assert.Len(t, detail.Alerts, 1)
	assert.NotEmpty(t, detail.BubbleEvents)

	_, err = svc.GetTrip(context.Background(), 2, started.SessionID)
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestCanWatch(t *testing.T) {
	svc, _, _ := newTestTrackingService(t)
	ctx := context.Background()

	started, err := svc.StartTrip(ctx, 1, &StartTripRequest{HouseID: 7})
	require.NoError(t, err)

	// Owner, admin, and the landlord of the destination house may watch.
	assert.NoError(t, svc.CanWatch(ctx, 1, model.RoleStudent, started.SessionID))
	assert.NoError(t, svc.CanWatch(ctx, 99, model.RoleAdmin, started.SessionID))
	assert.NoError(t, svc.CanWatch(ctx, 42, model.RoleLandlord, started.SessionID))

	assert.ErrorIs(t, svc.CanWatch(ctx, 43, model.RoleLandlord, started.SessionID), ErrNoPermission)
	assert.ErrorIs(t, svc.CanWatch(ctx, 2, model.RoleStudent, started.SessionID), ErrNoPermission)
	assert.ErrorIs(t, svc.CanWatch(ctx, 1, model.RoleStudent, "no-such-trip"), ErrTripNotFound)
}
