package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"salonbook/internal/pkg/identity"
	"salonbook/internal/pkg/jwt"
	"salonbook/internal/pkg/response"
)

const (
	ContextUserID     = "user_id"
	ContextRole       = "role"
	ContextProviderID = "provider_id"
)

// JWTAuth verifies the bearer token and stores the caller identity on the
// context. Identity issuance lives outside this service.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be: Bearer <token>")
			c.Abort()
			return
		}

		if !authenticate(c, jwtService, strings.TrimSpace(parts[1])) {
			return
		}
		c.Next()
	}
}

// QueryTokenAuth is JWTAuth for websocket upgrades, where browsers cannot
// set headers. The token comes from ?token=.
func QueryTokenAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "token query parameter is required")
			c.Abort()
			return
		}
		if !authenticate(c, jwtService, token) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, token string) bool {
	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		c.Abort()
		return false
	}
	actor := claims.Actor()
	if actor.UserID == 0 || actor.Role == identity.RoleSystem {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		c.Abort()
		return false
	}

	c.Set(ContextUserID, actor.UserID)
	c.Set(ContextRole, string(actor.Role))
	c.Set(ContextProviderID, actor.ProviderID)
	return true
}

// ActorFrom reads the identity stored by JWTAuth.
func ActorFrom(c *gin.Context) (identity.Actor, bool) {
	userID := c.GetInt64(ContextUserID)
	if userID == 0 {
		return identity.Actor{}, false
	}
	return identity.Actor{
		UserID:     userID,
		Role:       identity.Role(c.GetString(ContextRole)),
		ProviderID: c.GetInt64(ContextProviderID),
	}, true
}
