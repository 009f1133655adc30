// Package jwt provides JWT token generation and validation for user
// authentication.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// UserClaims is the payload carried by user tokens. Role and premium flags
// travel in the token so middleware can gate premium features without a
// database lookup.
type UserClaims struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	University string `json:"university"`
	Role       string `json:"role"`
	Premium    bool   `json:"premium"`
	jwt.RegisteredClaims
}

// JWTService issues and validates tokens.
type JWTService struct {
	secret        []byte
	accessExpire  time.Duration
	refreshExpire time.Duration
}

// NewJWTService creates a JWTService.
// secret should be at least 32 characters.
func NewJWTService(secret string, accessExpire, refreshExpire time.Duration) *JWTService {
	return &JWTService{
		secret:        []byte(secret),
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
	}
}

// TokenInput bundles the identity fields baked into a token.
type TokenInput struct {
	UserID     int64
	Username   string
	University string
	Role       string
	Premium    bool
}

// GenerateAccessToken issues an access token for normal API requests.
func (s *JWTService) GenerateAccessToken(in TokenInput) (string, error) {
	return s.generate(in, "access", s.accessExpire)
}

// GenerateRefreshToken issues a refresh token.
func (s *JWTService) GenerateRefreshToken(in TokenInput) (string, error) {
	return s.generate(in, "refresh", s.refreshExpire)
}

func (s *JWTService) generate(in TokenInput, subject string, expire time.Duration) (string, error) {
	claims := UserClaims{
		UserID:     in.UserID,
		Username:   in.Username,
		University: in.University,
		Role:       in.Role,
		Premium:    in.Premium,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "kleno-server",
			// Subject distinguishes access from refresh tokens.
			Subject: subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and validates a user token.
func (s *JWTService) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Refuse tokens signed with anything but HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateRefreshToken validates a token and checks it is a refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*UserClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Subject != "refresh" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessExpire returns the access token lifetime.
func (s *JWTService) GetAccessExpire() time.Duration {
	return s.accessExpire
}

// GetRefreshExpire returns the refresh token lifetime.
func (s *JWTService) GetRefreshExpire() time.Duration {
	return s.refreshExpire
}

// ParseUserToken validates a user token with an explicit secret. Used by the
// websocket handler, which authenticates via query parameter before upgrade.
func ParseUserToken(tokenString, secret string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
