package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// BroadcastHandler handles "looking for a room" broadcasts.
type BroadcastHandler struct {
	broadcastService *service.BroadcastService
}

// NewBroadcastHandler creates a BroadcastHandler.
func NewBroadcastHandler(broadcastService *service.BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{broadcastService: broadcastService}
}

// SendBroadcast fans an alert out to landlords across the caller's cluster.
// @Summary Broadcast a room request
// @Tags alerts
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.SendBroadcastRequest true "broadcast"
// @Success 200 {object} response.Response{data=service.SendBroadcastResponse}
// @Router /api/v1/alerts/broadcast [post]
func (h *BroadcastHandler) SendBroadcast(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.SendBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	resp, err := h.broadcastService.SendBroadcast(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.UserNotFound(c)
		case errors.Is(err, service.ErrPremiumOnly):
			response.PremiumOnly(c)
		case errors.Is(err, service.ErrBroadcastLimit):
			response.ErrorWithCode(c, 403, response.CodeAlertLimit, "daily broadcast limit reached")
		case errors.Is(err, service.ErrHouseNotFound):
			response.HouseNotFound(c)
		case errors.Is(err, service.ErrNoStoredLocation):
			response.NoStoredLocation(c)
		case errors.Is(err, service.ErrInvalidCoordinates):
			response.BadRequest(c, "invalid coordinates")
		default:
			response.InternalError(c, "failed to send broadcast")
		}
		return
	}

	response.Success(c, resp)
}

// RecentBroadcasts lists alerts targeting the caller's university.
// @Summary Recent broadcasts
// @Tags alerts
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/alerts/recent [get]
func (h *BroadcastHandler) RecentBroadcasts(c *gin.Context) {
	userID := middleware.GetUserID(c)

	alerts, err := h.broadcastService.RecentBroadcasts(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.UserNotFound(c)
			return
		}
		response.InternalError(c, "failed to list broadcasts")
		return
	}

	response.Success(c, gin.H{"alerts": alerts, "total": len(alerts)})
}
