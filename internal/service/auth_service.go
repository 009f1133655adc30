package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/klenoapp/kleno-server/internal/cache"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/repository"
	"github.com/klenoapp/kleno-server/pkg/jwt"
	"github.com/klenoapp/kleno-server/pkg/util"
)

// Auth service errors.
var (
	ErrUserExists    = errors.New("username already taken")
	ErrUserNotFound  = errors.New("user not found")
	ErrPasswordWrong = errors.New("wrong password")
	ErrUserDisabled  = errors.New("account is disabled")
	ErrInvalidToken  = errors.New("invalid token")
)

// AuthService handles registration, login, token refresh and logout.
type AuthService struct {
	userRepo   *repository.UserRepository
	cache      *cache.RedisCache
	jwtService *jwt.JWTService
}

// NewAuthService creates an AuthService.
func NewAuthService(
	userRepo *repository.UserRepository,
	redisCache *cache.RedisCache,
	jwtService *jwt.JWTService,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		cache:      redisCache,
		jwtService: jwtService,
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=50"`
	Password   string `json:"password" binding:"required,min=6"`
	Email      string `json:"email" binding:"omitempty,email"`
	FirstName  string `json:"first_name" binding:"required,max=50"`
	LastName   string `json:"last_name" binding:"required,max=50"`
	University string `json:"university" binding:"required,max=80"`
	Role       string `json:"role" binding:"omitempty,oneof=student landlord"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Register creates a new account. Defaults to the student role.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	existing, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	passwordHash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = model.RoleStudent
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		University:   req.University,
		Role:         role,
		Status:       model.UserStatusActive,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return &RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
	}, nil
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the token pair and basic profile.
type LoginResponse struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	University   string `json:"university"`
	Role         string `json:"role"`
	Premium      bool   `json:"premium"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login verifies credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserDisabled
	}

	if !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrPasswordWrong
	}

	return s.issueTokens(user)
}

// RefreshToken exchanges a valid refresh token for a fresh pair. The profile
// fields baked into the new tokens are re-read from the database so role or
// premium changes take effect on refresh.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.cache.IsTokenBlacklisted(ctx, hashToken(refreshToken)) {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserDisabled
	}

	// Invalidate the old refresh token so it cannot be replayed.
	if claims.ExpiresAt != nil {
		_ = s.cache.BlacklistToken(ctx, hashToken(refreshToken), claims.ExpiresAt.Time)
	}

	return s.issueTokens(user)
}

// Logout blacklists the presented access token until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.jwtService.ValidateToken(accessToken)
	if err != nil {
		// Already invalid, nothing to revoke.
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.cache.BlacklistToken(ctx, hashToken(accessToken), claims.ExpiresAt.Time)
}

func (s *AuthService) issueTokens(user *model.User) (*LoginResponse, error) {
	in := jwt.TokenInput{
		UserID:     user.ID,
		Username:   user.Username,
		University: user.University,
		Role:       user.Role,
		Premium:    user.Premium,
	}

	accessToken, err := s.jwtService.GenerateAccessToken(in)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtService.GenerateRefreshToken(in)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		UserID:       user.ID,
		Username:     user.Username,
		University:   user.University,
		Role:         user.Role,
		Premium:      user.Premium,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.GetAccessExpire() / time.Second),
	}, nil
}

// hashToken hashes a token for blacklist storage so raw tokens never land
// in Redis.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
