package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/pkg/util"
)

// fakeHouseCatalog serves listings from a map.
type fakeHouseCatalog struct {
	houses map[int64]*model.BoardingHouse
}

func (f *fakeHouseCatalog) GetByID(_ context.Context, id int64) (*model.BoardingHouse, error) {
	return f.houses[id], nil
}

func (f *fakeHouseCatalog) ListedByUniversity(_ context.Context, university string) ([]model.BoardingHouse, error) {
	var out []model.BoardingHouse
	for _, h := range f.houses {
		if h.University == university && h.Status == model.HouseStatusListed {
			out = append(out, *h)
		}
	}
	return out, nil
}

func newTestHouseService(t *testing.T) *HouseService {
	t.Helper()
	catalog := &fakeHouseCatalog{houses: map[int64]*model.BoardingHouse{
		// Distances from testOrigin: ~1.1 km, ~2.1 km, ~3.3 km.
		1: {
			ID: 1, Name: "Kalundu Lodge", University: "UNZA",
			Lat: util.Float64Ptr(-15.4267), Lon: util.Float64Ptr(28.2833),
			LowestPrice: util.Float64Ptr(1500), Rating: util.Float64Ptr(4.5),
			Status: model.HouseStatusListed,
		},
		2: {
			ID: 2, Name: "Chelstone Rest", University: "CHRESO",
			Lat: util.Float64Ptr(-15.4167), Lon: util.Float64Ptr(28.3033),
			Status: model.HouseStatusListed,
		},
		3: {
			ID: 3, Name: "Libala Hostel", University: "UNILUS",
			Lat: util.Float64Ptr(-15.4467), Lon: util.Float64Ptr(28.2833),
			Status: model.HouseStatusListed,
		},
		4: {
			ID: 4, Name: "No GPS Hostel", University: "UNZA",
			Status: model.HouseStatusListed,
		},
		// CUZ is outside the UNZA cluster and must never show up.
		5: {
			ID: 5, Name: "Makeni Villa", University: "CUZ",
			Lat: util.Float64Ptr(-15.4167), Lon: util.Float64Ptr(28.2843),
			Status: model.HouseStatusListed,
		},
		6: {
			ID: 6, Name: "Hidden House", University: "UNZA",
			Lat: util.Float64Ptr(-15.4187), Lon: util.Float64Ptr(28.2833),
			Status: model.HouseStatusUnlisted,
		},
	}}
	users := &fakeUsers{users: map[int64]*model.User{
		1: {
			ID: 1, Username: "chanda", University: "UNZA",
			Role: model.RoleStudent, Status: model.UserStatusActive,
			Lat: util.Float64Ptr(testOrigin.Lat), Lon: util.Float64Ptr(testOrigin.Lon),
		},
		2: {
			ID: 2, Username: "nolocation", University: "UNZA",
			Role: model.RoleStudent, Status: model.UserStatusActive,
		},
	}}
	return NewHouseService(catalog, users)
}

func TestNearbySortsByDistanceAcrossCluster(t *testing.T) {
	svc := newTestHouseService(t)

	result, err := svc.Nearby(context.Background(), 1, &NearbyRequest{MaxRadiusKm: 10})
	require.NoError(t, err)

	require.Len(t, result.Houses, 3)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []int64{1, 2, 3}, []int64{
		result.Houses[0].ID, result.Houses[1].ID, result.Houses[2].ID,
	})
	for i := 1; i < len(result.Houses); i++ {
		assert.LessOrEqual(t, result.Houses[i-1].DistanceKm, result.Houses[i].DistanceKm)
	}
	assert.InDelta(t, testOrigin.Lat, result.OriginLat, 1e-9)
}

func TestNearbyRadiusFilterAndPagination(t *testing.T) {
	svc := newTestHouseService(t)

	result, err := svc.Nearby(context.Background(), 1, &NearbyRequest{MaxRadiusKm: 1.5})
	require.NoError(t, err)
	require.Len(t, result.Houses, 1)
	assert.Equal(t, int64(1), result.Houses[0].ID)

	result, err = svc.Nearby(context.Background(), 1, &NearbyRequest{
		MaxRadiusKm: 10, Page: 2, PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Houses, 1)
	assert.Equal(t, int64(3), result.Houses[0].ID)
	assert.Equal(t, 2, result.TotalPages)
	assert.Equal(t, 2, result.CurrentPage)
}

func TestNearbyPositionErrors(t *testing.T) {
	svc := newTestHouseService(t)

	_, err := svc.Nearby(context.Background(), 2, &NearbyRequest{MaxRadiusKm: 10})
	assert.ErrorIs(t, err, ErrNoStoredLocation)

	_, err = svc.Nearby(context.Background(), 1, &NearbyRequest{
		MaxRadiusKm: 10,
		Position:    &Position{Lat: 120, Lon: 28.3},
	})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestNearbyRegionAnchorMovesOrigin(t *testing.T) {
	svc := newTestHouseService(t)

	// A position offset from the Lusaka anchor (-15.4167, 28.2833) but within
	// the drift limit gets pulled 5% toward it.
	pos := &Position{Lat: -15.4300, Lon: 28.2900}
	anchored, err := svc.Nearby(context.Background(), 1, &NearbyRequest{
		MaxRadiusKm: 10, Position: pos, Region: "lusaka", UseRegionAnchor: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "lusaka", anchored.Region)
	assert.NotEqual(t, pos.Lat, anchored.OriginLat)
	assert.InDelta(t, -15.4167+(-15.4300+15.4167)*0.95, anchored.OriginLat, 1e-9)
	assert.InDelta(t, 28.2833+(28.2900-28.2833)*0.95, anchored.OriginLon, 1e-9)
}

func TestGetHouse(t *testing.T) {
	svc := newTestHouseService(t)

	resp, err := svc.GetHouse(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Kalundu Lodge", resp.Name)
	assert.Equal(t, 1500.0, resp.LowestPrice)
	assert.Equal(t, 4.5, resp.Rating)

	// Listings with no price or rating yet render as zero.
	resp, err = svc.GetHouse(context.Background(), 4)
	require.NoError(t, err)
	assert.Zero(t, resp.LowestPrice)
	assert.Zero(t, resp.Rating)

	_, err = svc.GetHouse(context.Background(), 999)
	assert.ErrorIs(t, err, ErrHouseNotFound)
}

func TestNavigationLinks(t *testing.T) {
	svc := newTestHouseService(t)

	resp, err := svc.Navigation(context.Background(), 1, 1, nil, "", false)
	require.NoError(t, err)

	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&origin=-15.416700,28.283300&destination=-15.426700,28.283300&travelmode=driving",
		resp.GoogleMapsURL)
	assert.Equal(t,
		"yango://route?start-lat=-15.416700&start-lon=28.283300&end-lat=-15.426700&end-lon=28.283300&ref=kleno_app",
		resp.YangoURL)
	assert.Empty(t, resp.Region)
}

func TestNavigationPreconditions(t *testing.T) {
	svc := newTestHouseService(t)

	_, err := svc.Navigation(context.Background(), 1, 999, nil, "", false)
	assert.ErrorIs(t, err, ErrHouseNotFound)

	_, err = svc.Navigation(context.Background(), 1, 4, nil, "", false)
	assert.ErrorIs(t, err, ErrHouseNoCoordinates)

	_, err = svc.Navigation(context.Background(), 2, 1, nil, "", false)
	assert.ErrorIs(t, err, ErrNoStoredLocation)
}
