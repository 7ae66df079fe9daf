package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonbook/internal/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func setupRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := setupFixture(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User-ID"); userID != "" {
			id, _ := strconv.ParseInt(userID, 10, 64)
			pid, _ := strconv.ParseInt(c.GetHeader("X-Test-Provider-ID"), 10, 64)
			c.Set(middleware.ContextUserID, id)
			c.Set(middleware.ContextRole, c.GetHeader("X-Test-Role"))
			c.Set(middleware.ContextProviderID, pid)
		}
		c.Next()
	})
	v1 := r.Group("/api/v1")
	NewHandler(f.guard, f.service).RegisterRoutes(v1, v1.Group("/providers/me", middleware.ProviderOnly()))
	return r, f
}

type caller struct {
	userID     int64
	role       string
	providerID int64
}

func do(t *testing.T, r http.Handler, who caller, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User-ID", strconv.FormatInt(who.userID, 10))
	req.Header.Set("X-Test-Role", who.role)
	req.Header.Set("X-Test-Provider-ID", strconv.FormatInt(who.providerID, 10))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return rr.Code, env
}

func TestBookingHTTPFlow(t *testing.T) {
	r, f := setupRouter(t)
	customer := caller{userID: customerID, role: "customer"}
	owner := caller{userID: ownerID, role: "provider", providerID: f.provider.ID}

	body := map[string]any{
		"providerId":    f.provider.ID,
		"mode":          "SALON",
		"interval":      map[string]any{"start": "2024-06-03T10:00:00Z"},
		"items":         []map[string]any{{"providerServiceId": f.cut.ID}},
		"groupSize":     1,
		"paymentMethod": "card",
	}
	code, env := do(t, r, customer, http.MethodPost, "/api/v1/bookings", body)
	require.Equal(t, http.StatusCreated, code, string(env.Data))
	var created Booking
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, int64(100), created.Total)

	code, env = do(t, r, customer, http.MethodPost, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	code, _ = do(t, r, owner, http.MethodPost, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusForbidden, code)

	statusPath := fmt.Sprintf("/api/v1/bookings/%d/status", created.ID)
	code, env = do(t, r, customer, http.MethodPatch, statusPath, map[string]string{"action": "confirm"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, _ = do(t, r, owner, http.MethodPatch, statusPath, map[string]string{"action": "teleport"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, owner, http.MethodPatch, statusPath, map[string]string{"action": "start_service"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, env = do(t, r, owner, http.MethodPatch, statusPath, map[string]string{"action": "confirm"})
	require.Equal(t, http.StatusOK, code)
	var confirmed Booking
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	code, env = do(t, r, owner, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/payment", created.ID), map[string]string{"status": "PAID"})
	require.Equal(t, http.StatusOK, code)
	var paid Booking
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)

	code, env = do(t, r, customer, http.MethodGet, "/api/v1/bookings/me", nil)
	require.Equal(t, http.StatusOK, code)
	var mine struct {
		Bookings []Booking `json:"bookings"`
		Total    int64     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Equal(t, int64(1), mine.Total)

	code, _ = do(t, r, caller{userID: 8, role: "customer"}, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", created.ID), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = do(t, r, owner, http.MethodGet, "/api/v1/providers/me/bookings?status=CONFIRMED", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Equal(t, int64(1), mine.Total)

	code, _ = do(t, r, customer, http.MethodGet, "/api/v1/providers/me/bookings", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCreateBookingRejectsMalformedBody(t *testing.T) {
	r, f := setupRouter(t)
	customer := caller{userID: customerID, role: "customer"}

	code, env := do(t, r, customer, http.MethodPost, "/api/v1/bookings", map[string]any{
		"providerId": f.provider.ID,
		"mode":       "SPACE",
		"items":      []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, int64(0), f.countBookings(t))
}
