package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/provider"
	"salonbook/internal/pkg/identity"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

type harness struct {
	app      *App
	provider *provider.Provider
	service  provider.Service
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                    "test",
		JWTSecret:                 "test-secret",
		Currency:                  "USD",
		MinCancelHours:            2,
		CommissionPercent:         12,
		MinLeadTime:               time.Hour,
		SlotPolicy:                config.SlotPolicyAligned,
		ProviderMayCancel:         true,
		LockTTL:                   5 * time.Second,
		RateLimitRPS:              100,
		RateLimitBurst:            100,
		NotificationWorkers:       2,
		NotificationQueue:         16,
		NotificationRetentionDays: 30,
	}
}

func setup(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	dsn := fmt.Sprintf("file:app_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	providers := provider.NewRepository(db)
	p := &provider.Provider{OwnerUserID: 20, Name: "Glow", Timezone: "UTC", SalonCapacity: 1, HomeCapacity: 1}
	require.NoError(t, providers.Create(ctx, p))
	svc := provider.Service{ProviderID: p.ID, Name: "Manicure", Price: 100, DurationMin: 30, IsActive: true}
	require.NoError(t, providers.CreateService(ctx, &svc))

	rules := availability.NewRuleRepository(db)
	for day := 0; day < 7; day++ {
		require.NoError(t, rules.Create(ctx, &availability.Rule{
			ProviderID: p.ID, DayOfWeek: day, StartTime: "09:00", EndTime: "18:00", SlotSizeMin: 30, IsActive: true,
		}))
	}

	a := New(testConfig(), db, zap.NewNop(), Options{})
	t.Cleanup(a.Close)
	return &harness{app: a, provider: p, service: svc}
}

func (h *harness) token(t *testing.T, actor identity.Actor) string {
	t.Helper()
	tok, err := h.app.JWT.GenerateToken(actor)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, token, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.app.Router.ServeHTTP(rr, req)

	var env envelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr.Code, env
}

func TestBookingFlowOverHTTP(t *testing.T) {
	h := setup(t)
	customer := h.token(t, identity.Actor{UserID: 10, Role: identity.RoleCustomer})
	owner := h.token(t, identity.Actor{UserID: 20, Role: identity.RoleProvider, ProviderID: h.provider.ID})
	admin := h.token(t, identity.Actor{UserID: 1, Role: identity.RoleAdmin})

	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 2)
	date := day.Format("2006-01-02")

	code, env := h.do(t, "", http.MethodGet,
		fmt.Sprintf("/api/v1/availability?providerId=%d&from=%s&to=%s", h.provider.ID, date, date), nil)
	require.Equal(t, http.StatusOK, code)
	var slots []availability.Slot
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	require.Len(t, slots, 18)

	code, _ = h.do(t, admin, http.MethodPost, "/api/v1/admin/coupons", map[string]any{
		"code": "WELCOME", "type": "fixed", "value": 20, "maxUses": 5,
	})
	require.Equal(t, http.StatusCreated, code)

	start := day.Add(10 * time.Hour)
	code, env = h.do(t, customer, http.MethodPost, "/api/v1/bookings", map[string]any{
		"providerId":    h.provider.ID,
		"mode":          "SALON",
		"interval":      map[string]any{"start": start.Format(time.RFC3339)},
		"items":         []map[string]any{{"providerServiceId": h.service.ID}},
		"groupSize":     1,
		"paymentMethod": "card",
		"couponCode":    "welcome",
	})
	require.Equal(t, http.StatusCreated, code)
	var created struct {
		ID     int64  `json:"id"`
		Total  int64  `json:"total"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(80), created.Total)
	assert.Equal(t, "PENDING", created.Status)

	_, env = h.do(t, "", http.MethodGet,
		fmt.Sprintf("/api/v1/availability?providerId=%d&from=%s&to=%s", h.provider.ID, date, date), nil)
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	assert.Len(t, slots, 17)

	for _, action := range []string{"confirm", "start_trip", "start_service", "complete"} {
		code, env = h.do(t, owner, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/status", created.ID),
			map[string]string{"action": action})
		require.Equal(t, http.StatusOK, code, action)
	}

	code, env = h.do(t, owner, http.MethodGet, "/api/v1/wallet/20", nil)
	require.Equal(t, http.StatusOK, code)
	var statement struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &statement))
	// 80 after the coupon, less 12% commission.
	assert.Equal(t, int64(70), statement.Balance)

	code, env = h.do(t, admin, http.MethodGet, "/api/v1/admin/wallets/20/audit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"consistent":true`)

	require.Eventually(t, func() bool {
		code, env := h.do(t, owner, http.MethodGet, "/api/v1/notifications", nil)
		if code != http.StatusOK {
			return false
		}
		var list struct {
			Total int64 `json:"total"`
		}
		_ = json.Unmarshal(env.Data, &list)
		// booking_requested and wallet_credited
		return list.Total == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := setup(t)

	code, env := h.do(t, "", http.MethodGet, "/api/v1/bookings/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_HEADER_MISSING", env.Error.Code)

	customer := h.token(t, identity.Actor{UserID: 10, Role: identity.RoleCustomer})
	code, _ = h.do(t, customer, http.MethodPatch, "/api/v1/admin/settings", map[string]any{"commissionPercent": 5})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, customer, http.MethodGet, "/api/v1/providers/me/availability-rules", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(t, customer, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"commissionPercent":12`)
}

func TestHealth(t *testing.T) {
	h := setup(t)
	rr := httptest.NewRecorder()
	h.app.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
