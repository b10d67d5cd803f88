package middleware

import (
	"net/http"
	"strings"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/jwt"
	"smartcampus/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth validates the bearer token and stores user_id and role in the context.
func JWTAuth(tokens *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Abort(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be: Bearer <token>")
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		if !domain.UserRole(claims.Role).Valid() {
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Unknown role in token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller. ok is false when JWTAuth did not run.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	userID := c.GetInt64(ctxUserID)
	role := c.GetString(ctxRole)
	if userID <= 0 || role == "" {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: userID, Role: domain.UserRole(role)}, true
}
