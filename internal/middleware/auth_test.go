package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salonbook/internal/pkg/identity"
	"salonbook/internal/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTAuth_ValidToken(t *testing.T) {
	jwtService := jwt.New("test-secret-123", 1*time.Hour)
	validToken, err := jwtService.GenerateToken(identity.Actor{UserID: 42, Role: identity.RoleProvider, ProviderID: 7})
	require.NoError(t, err)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"user_id":     actor.UserID,
			"role":        actor.Role,
			"provider_id": actor.ProviderID,
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+validToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
	assert.Contains(t, w.Body.String(), `"role":"provider"`)
	assert.Contains(t, w.Body.String(), `"provider_id":7`)
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	jwtService := jwt.New("wrong-secret", 1*time.Hour)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		t.Fatal("This handler should not be reached")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-jwt-here")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestJWTAuth_NoToken(t *testing.T) {
	jwtService := jwt.New("secret", 1*time.Hour)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		t.Fatal("Should not reach here")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_HEADER_MISSING")
}

func TestJWTAuth_WrongFormat(t *testing.T) {
	jwtService := jwt.New("secret", 1*time.Hour)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		t.Fatal("Should not reach here")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Basic dGVzdA==")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
}

func TestQueryTokenAuth(t *testing.T) {
	jwtService := jwt.New("secret", 1*time.Hour)
	token, err := jwtService.GenerateToken(identity.Actor{UserID: 5, Role: identity.RoleCustomer})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/ws", QueryTokenAuth(jwtService), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ws?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func withActor(actor identity.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, actor.UserID)
		c.Set(ContextRole, string(actor.Role))
		c.Set(ContextProviderID, actor.ProviderID)
		c.Next()
	}
}

func TestRequireRole(t *testing.T) {
	router := gin.New()
	router.GET("/admin", withActor(identity.Actor{UserID: 1, Role: identity.RoleCustomer}), AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/staff", withActor(identity.Actor{UserID: 1, Role: identity.RoleProvider}),
		RequireRole(identity.RoleProvider, identity.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/staff", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProviderOnlyNeedsProviderID(t *testing.T) {
	router := gin.New()
	router.GET("/p", withActor(identity.Actor{UserID: 1, Role: identity.RoleProvider}), ProviderOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/p", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zap.NewNop())

	router := gin.New()
	router.GET("/a", withActor(identity.Actor{UserID: 1, Role: identity.RoleCustomer}), rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/b", withActor(identity.Actor{UserID: 2, Role: identity.RoleCustomer}), rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/a", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/b", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLoggerRecoversPanic(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), RequestLogger(zap.NewNop()))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
