package middleware

import (
	"strings"

	"textreply/backend/pkg/errors"
	"textreply/backend/pkg/jwt"
	"textreply/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	ClaimsKey = "claims"
	UserIDKey = "userId"
)

// JWTAuthMiddleware requires a valid `Authorization: Bearer <token>` header and adds claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return authenticate(jwtService, log, false)
}

// JWTQueryAuthMiddleware also accepts the token in a `token` query parameter.
// Browsers cannot set headers on WebSocket upgrades.
func JWTQueryAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return authenticate(jwtService, log, true)
}

func authenticate(jwtService *jwt.Service, log *logger.Logger, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			_ = c.Error(errors.NewUnauthorizedError(errors.CodeAuthRequired, "No token provided"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error(), "path", c.Request.URL.Path)
			_ = c.Error(errors.NewUnauthorizedError(errors.CodeInvalidToken, "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)

		c.Next()
	}
}

// UserID returns the authenticated account id, or "" outside an authenticated route.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
