package ws

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/jwt"
	"github.com/klenoapp/kleno-server/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Mobile clients connect from app webviews with no stable origin.
		return true
	},
}

// Handler terminates websocket upgrade requests for trip watching.
type Handler struct {
	hub       *Hub
	tracking  *service.TrackingService
	jwtSecret string
}

// NewHandler creates a websocket handler.
func NewHandler(hub *Hub, tracking *service.TrackingService, jwtSecret string) *Handler {
	return &Handler{
		hub:       hub,
		tracking:  tracking,
		jwtSecret: jwtSecret,
	}
}

// RegisterRoutes mounts the watch endpoint.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/watch", h.HandleWatchWS)
}

// HandleWatchWS upgrades a watcher connection for a single trip.
//
// Browsers cannot set headers on websocket upgrades, so the access token
// rides in the query string: /ws/watch?token=<jwt>&session_id=<id>
func (h *Handler) HandleWatchWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "missing token")
		return
	}
	claims, err := jwt.ParseUserToken(token, h.jwtSecret)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	if err := h.tracking.CanWatch(c.Request.Context(), claims.UserID, claims.Role, sessionID); err != nil {
		switch {
		case errors.Is(err, service.ErrTripNotFound):
			response.NotFound(c, "trip not found")
		case errors.Is(err, service.ErrNoPermission):
			response.Forbidden(c, "no access to this trip")
		default:
			response.InternalError(c, "failed to check trip access")
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ERROR] websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, sessionID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
