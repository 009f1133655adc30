// Package handler provides the HTTP request handlers.
package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// TrackingHandler handles trip tracking requests.
type TrackingHandler struct {
	trackingService *service.TrackingService
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(trackingService *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{trackingService: trackingService}
}

// StartTrip starts a tracked trip toward a boarding house.
// @Summary Start a trip
// @Tags tracking
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.StartTripRequest true "trip parameters"
// @Success 201 {object} response.Response{data=service.TripResponse}
// @Router /api/v1/trips [post]
func (h *TrackingHandler) StartTrip(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.StartTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	trip, err := h.trackingService.StartTrip(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeTrackingError(c, err, "failed to start trip")
		return
	}

	response.Created(c, trip)
}

// ResumeTrip applies one position sample to an active trip.
// @Summary Resume a trip with a fresh position
// @Tags tracking
// @Security Bearer
// @Accept json
// @Produce json
// @Param session_id path string true "session ID"
// @Param body body service.ResumeTripRequest true "position sample"
// @Success 200 {object} response.Response{data=service.TripUpdate}
// @Router /api/v1/trips/{session_id}/resume [post]
func (h *TrackingHandler) ResumeTrip(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("session_id")
	if sessionID == "" {
		response.BadRequest(c, "missing session ID")
		return
	}

	var req service.ResumeTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	update, err := h.trackingService.ResumeTrip(c.Request.Context(), userID, sessionID, &req)
	if err != nil {
		h.writeTrackingError(c, err, "failed to resume trip")
		return
	}

	response.Success(c, update)
}

// GetTrip returns a trip with its full history.
// @Summary Get a trip
// @Tags tracking
// @Security Bearer
// @Produce json
// @Param session_id path string true "session ID"
// @Success 200 {object} response.Response{data=service.TripDetailResponse}
// @Router /api/v1/trips/{session_id} [get]
func (h *TrackingHandler) GetTrip(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("session_id")

	detail, err := h.trackingService.GetTrip(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.writeTrackingError(c, err, "failed to load trip")
		return
	}

	response.Success(c, detail)
}

// ListTrips pages through the caller's trips.
// @Summary List trips
// @Tags tracking
// @Security Bearer
// @Produce json
// @Param page query int false "page" default(1)
// @Param page_size query int false "page size" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/trips [get]
func (h *TrackingHandler) ListTrips(c *gin.Context) {
	userID := middleware.GetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	trips, total, err := h.trackingService.ListTrips(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, "failed to list trips")
		return
	}

	response.Success(c, gin.H{
		"trips":     trips,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CompleteTrip marks an active trip as completed.
// @Summary Complete a trip
// @Tags tracking
// @Security Bearer
// @Produce json
// @Param session_id path string true "session ID"
// @Success 200 {object} response.Response
// @Router /api/v1/trips/{session_id}/complete [post]
func (h *TrackingHandler) CompleteTrip(c *gin.Context) {
	h.endTrip(c, h.trackingService.CompleteTrip)
}

// CancelTrip marks an active trip as cancelled.
// @Summary Cancel a trip
// @Tags tracking
// @Security Bearer
// @Produce json
// @Param session_id path string true "session ID"
// @Success 200 {object} response.Response
// @Router /api/v1/trips/{session_id}/cancel [post]
func (h *TrackingHandler) CancelTrip(c *gin.Context) {
	h.endTrip(c, h.trackingService.CancelTrip)
}

func (h *TrackingHandler) endTrip(c *gin.Context, end func(ctx context.Context, userID int64, sessionID string) error) {
	userID := middleware.GetUserID(c)
	sessionID := c.Param("session_id")

	if err := end(c.Request.Context(), userID, sessionID); err != nil {
		h.writeTrackingError(c, err, "failed to end trip")
		return
	}
	response.SuccessWithMessage(c, "trip ended", nil)
}

// writeTrackingError maps service errors to response codes.
func (h *TrackingHandler) writeTrackingError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrTripNotFound):
		response.TripNotFound(c)
	case errors.Is(err, service.ErrTripNotActive):
		response.TripNotActive(c)
	case errors.Is(err, service.ErrHouseNotFound):
		response.HouseNotFound(c)
	case errors.Is(err, service.ErrHouseNoCoordinates):
		response.ErrorWithCode(c, 400, response.CodeNoCoordinates, "boarding house has no coordinates")
	case errors.Is(err, service.ErrNoStoredLocation):
		response.NoStoredLocation(c)
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, "no access to this trip")
	case errors.Is(err, service.ErrStoreConflict):
		response.Conflict(c, "trip was updated concurrently, retry with a fresh sample")
	case errors.Is(err, service.ErrResumeRateLimited):
		response.TooManyRequests(c, "too many updates, slow down")
	case errors.Is(err, service.ErrInvalidCoordinates):
		response.BadRequest(c, "invalid coordinates")
	default:
		response.InternalError(c, fallback)
	}
}
