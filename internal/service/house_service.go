package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/klenoapp/kleno-server/internal/geo"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/tracking"
)

// HouseCatalog is the listing store surface the discovery features need.
// *repository.HouseRepository is the production implementation.
type HouseCatalog interface {
	GetByID(ctx context.Context, id int64) (*model.BoardingHouse, error)
	ListedByUniversity(ctx context.Context, university string) ([]model.BoardingHouse, error)
}

// HouseService handles boarding house discovery and navigation links.
type HouseService struct {
	houseRepo HouseCatalog
	userRepo  PositionSource
}

// NewHouseService creates a HouseService.
func NewHouseService(houseRepo HouseCatalog, userRepo PositionSource) *HouseService {
	return &HouseService{houseRepo: houseRepo, userRepo: userRepo}
}

// HouseResponse is the listing view.
type HouseResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	University  string   `json:"university"`
	Location    *string  `json:"location,omitempty"`
	Gender      string   `json:"gender"`
	LowestPrice float64  `json:"lowest_price"`
	Rating      float64  `json:"rating"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// NearbyHouseResponse adds the computed distance to the listing view.
type NearbyHouseResponse struct {
	HouseResponse
	DistanceKm float64 `json:"distance_km"`
}

// NearbyRequest controls the nearby search.
type NearbyRequest struct {
	Position        *Position
	Region          string
	UseRegionAnchor bool
	MaxRadiusKm     float64
	Page            int
	PageSize        int
}

// NearbyResult is one page of nearby houses plus the origin actually used.
type NearbyResult struct {
	Houses      []NearbyHouseResponse `json:"houses"`
	Total       int                   `json:"total"`
	TotalPages  int                   `json:"total_pages"`
	CurrentPage int                   `json:"current_page"`
	OriginLat   float64               `json:"origin_lat"`
	OriginLon   float64               `json:"origin_lon"`
	Region      string                `json:"region,omitempty"`
}

// Nearby returns listed houses within the radius across the student's
// university cluster, closest first. The origin is the supplied position or
// the student's stored location, optionally adjusted by a region anchor.
func (s *HouseService) Nearby(ctx context.Context, userID int64, req *NearbyRequest) (*NearbyResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	var origin geo.Point
	if req.Position != nil {
		origin = geo.Point{Lat: req.Position.Lat, Lon: req.Position.Lon}
		if err := origin.Validate(); err != nil {
			return nil, ErrInvalidCoordinates
		}
	} else {
		if user.Lat == nil || user.Lon == nil {
			return nil, ErrNoStoredLocation
		}
		origin = geo.Point{Lat: *user.Lat, Lon: *user.Lon}
	}

	region := req.Region
	if region == "" {
		region = user.University
	}
	if req.UseRegionAnchor {
		origin = recalculateOrigin(origin, region)
	}

	var candidates []NearbyHouseResponse
	for _, university := range clusterFor(user.University) {
		houses, err := s.houseRepo.ListedByUniversity(ctx, university)
		if err != nil {
			return nil, err
		}
		for i := range houses {
			lat, lon, ok := houses[i].Coordinates()
			if !ok {
				continue
			}
			distance := geo.HaversineKm(origin, geo.Point{Lat: lat, Lon: lon})
			if distance > req.MaxRadiusKm {
				continue
			}
			candidates = append(candidates, NearbyHouseResponse{
				HouseResponse: *toHouseResponse(&houses[i]),
				DistanceKm:    tracking.RoundKm(distance),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	total := len(candidates)
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	result := &NearbyResult{
		Houses:      candidates[start:end],
		Total:       total,
		TotalPages:  (total + pageSize - 1) / pageSize,
		CurrentPage: page,
		OriginLat:   origin.Lat,
		OriginLon:   origin.Lon,
	}
	if req.UseRegionAnchor {
		result.Region = region
	}
	if result.Houses == nil {
		result.Houses = []NearbyHouseResponse{}
	}
	return result, nil
}

// GetHouse returns one listing.
func (s *HouseService) GetHouse(ctx context.Context, houseID int64) (*HouseResponse, error) {
	house, err := s.houseRepo.GetByID(ctx, houseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, ErrHouseNotFound
	}
	return toHouseResponse(house), nil
}

// NavigationResponse carries deep links for external navigation apps.
type NavigationResponse struct {
	HouseID       int64   `json:"house_id"`
	OriginLat     float64 `json:"origin_lat"`
	OriginLon     float64 `json:"origin_lon"`
	DestLat       float64 `json:"dest_lat"`
	DestLon       float64 `json:"dest_lon"`
	Region        string  `json:"region,omitempty"`
	GoogleMapsURL string  `json:"google_maps_url"`
	YangoURL      string  `json:"yango_url"`
}

// Navigation builds Google Maps and Yango links from the user's position to
// a house, with optional region-anchor origin adjustment.
func (s *HouseService) Navigation(ctx context.Context, userID, houseID int64, pos *Position, region string, useRegionAnchor bool) (*NavigationResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	house, err := s.houseRepo.GetByID(ctx, houseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, ErrHouseNotFound
	}
	destLat, destLon, ok := house.Coordinates()
	if !ok {
		return nil, ErrHouseNoCoordinates
	}

	var origin geo.Point
	if pos != nil {
		origin = geo.Point{Lat: pos.Lat, Lon: pos.Lon}
		if err := origin.Validate(); err != nil {
			return nil, ErrInvalidCoordinates
		}
	} else {
		if user.Lat == nil || user.Lon == nil {
			return nil, ErrNoStoredLocation
		}
		origin = geo.Point{Lat: *user.Lat, Lon: *user.Lon}
	}

	if region == "" {
		region = user.University
	}
	if useRegionAnchor {
		origin = recalculateOrigin(origin, region)
	}

	resp := &NavigationResponse{
		HouseID:   houseID,
		OriginLat: origin.Lat,
		OriginLon: origin.Lon,
		DestLat:   destLat,
		DestLon:   destLon,
		GoogleMapsURL: fmt.Sprintf(
			"https://www.google.com/maps/dir/?api=1&origin=%f,%f&destination=%f,%f&travelmode=driving",
			origin.Lat, origin.Lon, destLat, destLon,
		),
		YangoURL: fmt.Sprintf(
			"yango://route?start-lat=%f&start-lon=%f&end-lat=%f&end-lon=%f&ref=kleno_app",
			origin.Lat, origin.Lon, destLat, destLon,
		),
	}
	if useRegionAnchor {
		resp.Region = region
	}
	return resp, nil
}

func toHouseResponse(house *model.BoardingHouse) *HouseResponse {
	resp := &HouseResponse{
		ID:         house.ID,
		Name:       house.Name,
		University: house.University,
		Location:   house.Location,
		Gender:     house.Gender,
	}
	// Listings without a price or rating yet render as zero.
	if house.LowestPrice != nil {
		resp.LowestPrice = *house.LowestPrice
	}
	if house.Rating != nil {
		resp.Rating = *house.Rating
	}
	if lat, lon, ok := house.Coordinates(); ok {
		resp.Lat = &lat
		resp.Lon = &lon
	}
	return resp
}
