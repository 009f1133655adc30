package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// UserHandler handles profile and stored-location requests.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile returns the caller's profile.
// @Summary Get profile
// @Tags users
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=service.UserResponse}
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.UserNotFound(c)
			return
		}
		response.InternalError(c, "failed to load profile")
		return
	}

	response.Success(c, profile)
}

// UpdateProfile applies partial profile updates.
// @Summary Update profile
// @Tags users
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.UpdateProfileRequest true "profile fields"
// @Success 200 {object} response.Response{data=service.UserResponse}
// @Router /api/v1/users/me [patch]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	profile, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.UserNotFound(c)
			return
		}
		response.InternalError(c, "failed to update profile")
		return
	}

	response.Success(c, profile)
}

// GetLocation returns the caller's stored location.
// @Summary Get stored location
// @Tags users
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=service.LocationResponse}
// @Router /api/v1/users/me/location [get]
func (h *UserHandler) GetLocation(c *gin.Context) {
	userID := middleware.GetUserID(c)

	location, err := h.userService.GetLocation(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.UserNotFound(c)
		case errors.Is(err, service.ErrNoStoredLocation):
			response.NoStoredLocation(c)
		default:
			response.InternalError(c, "failed to load location")
		}
		return
	}

	response.Success(c, location)
}

// UpdateLocation stores the caller's last known position.
// @Summary Update stored location
// @Tags users
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.UpdateLocationRequest true "coordinates"
// @Success 200 {object} response.Response
// @Router /api/v1/users/me/location [put]
func (h *UserHandler) UpdateLocation(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	if err := h.userService.UpdateLocation(c.Request.Context(), userID, &req); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.UserNotFound(c)
		case errors.Is(err, service.ErrInvalidCoordinates):
			response.BadRequest(c, "invalid coordinates")
		default:
			response.InternalError(c, "failed to update location")
		}
		return
	}

	response.SuccessWithMessage(c, "location updated", nil)
}
