package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"salonbook/internal/pkg/identity"
	"salonbook/internal/pkg/response"
)

// RequireRole ensures that the authenticated user has one of the roles.
func RequireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			c.Abort()
			return
		}

		for _, r := range roles {
			if role.(string) == string(r) {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
		c.Abort()
	}
}

// AdminOnly middleware requires admin role
func AdminOnly() gin.HandlerFunc {
	return RequireRole(identity.RoleAdmin)
}

// ProviderOnly requires a provider token that names its provider.
func ProviderOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != string(identity.RoleProvider) || c.GetInt64(ContextProviderID) == 0 {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Provider account required")
			c.Abort()
			return
		}
		c.Next()
	}
}
