package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// AuthHandler handles registration, login and token management.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register creates a new account.
// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.RegisterRequest true "registration"
// @Success 201 {object} response.Response{data=service.RegisterResponse}
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.ErrorWithCode(c, 409, response.CodeUserExists, "username already taken")
			return
		}
		response.InternalError(c, "registration failed")
		return
	}

	response.Created(c, resp)
}

// Login verifies credentials and issues a token pair.
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "credentials"
// @Success 200 {object} response.Response{data=service.LoginResponse}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrPasswordWrong):
			// Same answer for both so usernames cannot be probed.
			response.Unauthorized(c, "wrong username or password")
		case errors.Is(err, service.ErrUserDisabled):
			response.Forbidden(c, "account is disabled")
		default:
			response.InternalError(c, "login failed")
		}
		return
	}

	response.Success(c, resp)
}

// RefreshRequest carries the refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a fresh pair.
// @Summary Refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param body body RefreshRequest true "refresh token"
// @Success 200 {object} response.Response{data=service.LoginResponse}
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			response.Unauthorized(c, "invalid refresh token")
		case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrUserDisabled):
			response.Unauthorized(c, "account unavailable")
		default:
			response.InternalError(c, "token refresh failed")
		}
		return
	}

	response.Success(c, resp)
}

// Logout blacklists the caller's access token.
// @Summary Logout
// @Tags auth
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.GetToken(c)
	if token == "" {
		response.Unauthorized(c, "authentication required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		response.InternalError(c, "logout failed")
		return
	}

	response.SuccessWithMessage(c, "logged out", nil)
}
