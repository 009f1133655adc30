// Package middleware provides HTTP middleware: JWT auth, CORS and request
// logging.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/cache"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/pkg/jwt"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// AuthMiddleware validates the Bearer token, checks the blacklist and puts
// the caller's identity into the request context.
func AuthMiddleware(jwtService *jwt.JWTService, redisCache *cache.RedisCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		if redisCache.IsTokenBlacklisted(c.Request.Context(), hashToken(tokenString)) {
			response.Unauthorized(c, "token has been revoked, please log in again")
			c.Abort()
			return
		}

		setIdentity(c, claims, tokenString)
		c.Next()
	}
}

// PremiumMiddleware gates premium-only features. Admins pass.
// Must run after AuthMiddleware.
func PremiumMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsPremium(c) && GetRole(c) != model.RoleAdmin {
			response.PremiumOnly(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RoleMiddleware restricts a route to the given roles.
// Must run after AuthMiddleware.
func RoleMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient role")
		c.Abort()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, claims *jwt.UserClaims, tokenString string) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("university", claims.University)
	c.Set("role", claims.Role)
	c.Set("premium", claims.Premium)
	// Kept for logout, which blacklists the presented token.
	c.Set("token", tokenString)
}

// hashToken hashes a token for blacklist lookups.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// GetUserID returns the authenticated user ID, or 0 when unauthenticated.
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0
	}
	return userID.(int64)
}

// GetUsername returns the authenticated username.
func GetUsername(c *gin.Context) string {
	username, exists := c.Get("username")
	if !exists {
		return ""
	}
	return username.(string)
}

// GetUniversity returns the caller's university claim.
func GetUniversity(c *gin.Context) string {
	university, exists := c.Get("university")
	if !exists {
		return ""
	}
	return university.(string)
}

// GetRole returns the caller's role claim.
func GetRole(c *gin.Context) string {
	role, exists := c.Get("role")
	if !exists {
		return ""
	}
	return role.(string)
}

// IsPremium reports whether the caller holds a premium claim.
func IsPremium(c *gin.Context) bool {
	premium, exists := c.Get("premium")
	if !exists {
		return false
	}
	return premium.(bool)
}

// GetToken returns the raw bearer token for the request.
func GetToken(c *gin.Context) string {
	token, exists := c.Get("token")
	if !exists {
		return ""
	}
	return token.(string)
}
