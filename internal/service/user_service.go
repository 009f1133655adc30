package service

import (
	"context"
	"errors"
	"time"

	"github.com/klenoapp/kleno-server/internal/geo"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/repository"
)

// ErrInvalidCoordinates is returned when a supplied lat/lon pair is missing
// or out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// UserService handles profile and stored-location operations.
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService creates a UserService.
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// UserResponse is the profile view.
type UserResponse struct {
	ID                int64    `json:"id"`
	Username          string   `json:"username"`
	Email             *string  `json:"email,omitempty"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	University        string   `json:"university"`
	Role              string   `json:"role"`
	Premium           bool     `json:"premium"`
	Lat               *float64 `json:"lat,omitempty"`
	Lon               *float64 `json:"lon,omitempty"`
	LocationUpdatedAt *string  `json:"location_updated_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// GetProfile returns the user's profile.
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return toUserResponse(user), nil
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	Email      *string `json:"email" binding:"omitempty,email"`
	FirstName  *string `json:"first_name" binding:"omitempty,max=50"`
	LastName   *string `json:"last_name" binding:"omitempty,max=50"`
	University *string `json:"university" binding:"omitempty,max=80"`
}

// UpdateProfile applies partial profile updates.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.Email != nil {
		user.Email = req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.University != nil {
		user.University = *req.University
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// LocationResponse is the stored-location view.
type LocationResponse struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	UpdatedAt string  `json:"updated_at"`
}

// GetLocation returns the user's stored location.
// Fails with ErrNoStoredLocation when none has been saved yet.
func (s *UserService) GetLocation(ctx context.Context, userID int64) (*LocationResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Lat == nil || user.Lon == nil {
		return nil, ErrNoStoredLocation
	}

	resp := &LocationResponse{Lat: *user.Lat, Lon: *user.Lon}
	if user.LocationUpdatedAt != nil {
		resp.UpdatedAt = user.LocationUpdatedAt.Format(time.RFC3339)
	}
	return resp, nil
}

// UpdateLocationRequest carries a coordinate pair. Zero is a legal
// coordinate, so the fields carry no `required` binding; range checking is
// geo.Point.Validate's job.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// UpdateLocation validates and stores the user's last known position.
func (s *UserService) UpdateLocation(ctx context.Context, userID int64, req *UpdateLocationRequest) error {
	p := geo.Point{Lat: req.Lat, Lon: req.Lon}
	if err := p.Validate(); err != nil {
		return ErrInvalidCoordinates
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	return s.userRepo.UpdateLocation(ctx, userID, req.Lat, req.Lon)
}

func toUserResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		University: user.University,
		Role:       user.Role,
		Premium:    user.Premium,
		Lat:        user.Lat,
		Lon:        user.Lon,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
	}
	if user.LocationUpdatedAt != nil {
		formatted := user.LocationUpdatedAt.Format(time.RFC3339)
		resp.LocationUpdatedAt = &formatted
	}
	return resp
}
