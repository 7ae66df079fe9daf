package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
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

	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
)

// 2024-06-03 is a Monday.
var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return monday.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

type fakeBusy struct {
	mu    sync.Mutex
	busy  []Interval
	calls int
}

func (f *fakeBusy) ListBusy(_ context.Context, _ int64, from, to time.Time) ([]Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []Interval
	for _, b := range f.busy {
		if b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fixedSettings struct{ s settings.Settings }

func (f fixedSettings) Get(context.Context) (settings.Settings, error) { return f.s, nil }

type memoryCache struct {
	mu       sync.Mutex
	versions map[int64]int64
	entries  map[string][]Slot
}

func newMemoryCache() *memoryCache {
	return &memoryCache{versions: map[int64]int64{}, entries: map[string][]Slot{}}
}

func (m *memoryCache) Version(_ context.Context, providerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[providerID], nil
}

func (m *memoryCache) Get(_ context.Context, providerID, version int64, rangeKey string) ([]Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[slotsKey(providerID, version, rangeKey)]
	return s, ok, nil
}

func (m *memoryCache) Set(_ context.Context, providerID, version int64, rangeKey string, slots []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[slotsKey(providerID, version, rangeKey)] = slots
	return nil
}

func (m *memoryCache) Invalidate(_ context.Context, providerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[providerID]++
	return nil
}

type fixture struct {
	db       *gorm.DB
	provider *provider.Provider
	rules    *RuleRepository
	blocked  *BlockedRepository
	busy     *fakeBusy
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:availability_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&provider.Provider{}, &Rule{}, &BlockedTime{}))

	p := &provider.Provider{OwnerUserID: 1, Name: "Studio", Timezone: "UTC", SalonCapacity: 1}
	require.NoError(t, provider.NewRepository(db).Create(context.Background(), p))

	f := &fixture{
		db:       db,
		provider: p,
		rules:    NewRuleRepository(db),
		blocked:  NewBlockedRepository(db),
		busy:     &fakeBusy{},
	}
	require.NoError(t, f.rules.Create(context.Background(), &Rule{
		ProviderID: p.ID, DayOfWeek: int(time.Monday), StartTime: "09:00", EndTime: "18:00", SlotSizeMin: 30, IsActive: true,
	}))
	return f
}

func (f *fixture) resolver(now time.Time, lead int, opts ...ResolverOption) *Resolver {
	opts = append(opts, WithClock(func() time.Time { return now }))
	return NewResolver(
		provider.NewRepository(f.db), f.rules, f.blocked, f.busy,
		fixedSettings{settings.Settings{MinLeadMinutes: lead}},
		zap.NewNop(), opts...,
	)
}

func collect(t *testing.T, r *Resolver, from, to time.Time, providerID int64) []Slot {
	t.Helper()
	seq, err := r.ComputeOpenSlots(context.Background(), providerID, from, to)
	require.NoError(t, err)
	var out []Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}

func TestMondayGridSkipsBookedSlot(t *testing.T) {
	f := setupFixture(t)
	f.busy.busy = []Interval{{Start: at(10, 0), End: at(10, 30)}}
	r := f.resolver(monday.AddDate(0, 0, -7), 0)

	slots := collect(t, r, monday, monday, f.provider.ID)

	// 09:00 through 17:30 is 18 grid slots; 10:00 is taken.
	require.Len(t, slots, 17)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(9, 30), slots[1].Start)
	assert.Equal(t, at(10, 30), slots[2].Start)
	assert.Equal(t, at(17, 30), slots[16].Start)
	assert.Equal(t, at(18, 0), slots[16].End)
	for _, s := range slots {
		assert.False(t, s.Start.Equal(at(10, 0)))
	}
}

func TestBlockedTimeRemovesIntersectingSlots(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.blocked.Create(context.Background(), &BlockedTime{
		ProviderID: f.provider.ID, StartAt: at(12, 15), EndAt: at(13, 0), Reason: "lunch",
	}))
	r := f.resolver(monday.AddDate(0, 0, -7), 0)

	slots := collect(t, r, monday, monday, f.provider.ID)
	require.Len(t, slots, 16)
	for _, s := range slots {
		assert.False(t, s.Overlaps(at(12, 15), at(13, 0)), "slot %s overlaps blackout", s.Start)
	}
}

func TestOverlappingRulesAreUnioned(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.rules.Create(context.Background(), &Rule{
		ProviderID: f.provider.ID, DayOfWeek: int(time.Monday), StartTime: "17:00", EndTime: "19:00", SlotSizeMin: 60, IsActive: true,
	}))
	r := f.resolver(monday.AddDate(0, 0, -7), 0)

	slots := collect(t, r, monday, monday, f.provider.ID)

	// One block 09:00-19:00 on the 30 minute grid.
	require.Len(t, slots, 20)
	seen := map[time.Time]bool{}
	for i, s := range slots {
		assert.False(t, seen[s.Start], "duplicate slot %s", s.Start)
		seen[s.Start] = true
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
		if i > 0 {
			assert.True(t, slots[i-1].Start.Before(s.Start))
		}
	}
}

func TestInactiveRulesAndOtherDaysProduceNothing(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.rules.Create(context.Background(), &Rule{
		ProviderID: f.provider.ID, DayOfWeek: int(time.Tuesday), StartTime: "09:00", EndTime: "10:00", SlotSizeMin: 30, IsActive: false,
	}))
	r := f.resolver(monday.AddDate(0, 0, -7), 0)

	tuesday := monday.AddDate(0, 0, 1)
	assert.Empty(t, collect(t, r, tuesday, tuesday, f.provider.ID))
	// Range over a week only yields Monday.
	assert.Len(t, collect(t, r, monday, monday.AddDate(0, 0, 6), f.provider.ID), 18)
}

func TestLeadTimeFloor(t *testing.T) {
	f := setupFixture(t)
	r := f.resolver(at(9, 10), 60)

	slots := collect(t, r, monday, monday, f.provider.ID)
	require.NotEmpty(t, slots)
	assert.Equal(t, at(10, 30), slots[0].Start)
}

func TestProviderLeadTimeOverridesPlatform(t *testing.T) {
	f := setupFixture(t)
	lead := 0
	require.NoError(t, f.db.Model(f.provider).Update("min_lead_minutes", lead).Error)
	r := f.resolver(at(9, 0), 600)

	slots := collect(t, r, monday, monday, f.provider.ID)
	require.NotEmpty(t, slots)
	assert.Equal(t, at(9, 0), slots[0].Start)
}

func TestSequenceIsRestartable(t *testing.T) {
	f := setupFixture(t)
	r := f.resolver(monday.AddDate(0, 0, -7), 0)

	seq, err := r.ComputeOpenSlots(context.Background(), f.provider.ID, monday, monday)
	require.NoError(t, err)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 18, count())
	assert.Equal(t, 18, count())

	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestRangeValidation(t *testing.T) {
	f := setupFixture(t)
	r := f.resolver(monday, 0)

	_, err := r.ComputeOpenSlots(context.Background(), f.provider.ID, monday, monday.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = r.ComputeOpenSlots(context.Background(), f.provider.ID, monday, monday.AddDate(0, 0, MaxRangeDays+1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = r.ComputeOpenSlots(context.Background(), 999, monday, monday)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = r.ComputeOpenSlotsOnDates(context.Background(), f.provider.ID, "03/06/2024", "2024-06-03")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCacheServesUntilInvalidated(t *testing.T) {
	f := setupFixture(t)
	cache := newMemoryCache()
	r := f.resolver(monday.AddDate(0, 0, -7), 0, WithCache(cache))

	assert.Len(t, collect(t, r, monday, monday, f.provider.ID), 18)
	assert.Len(t, collect(t, r, monday, monday, f.provider.ID), 18)
	assert.Equal(t, 1, f.busy.calls)

	f.busy.busy = []Interval{{Start: at(9, 0), End: at(10, 0)}}
	r.Invalidate(context.Background(), f.provider.ID)

	assert.Len(t, collect(t, r, monday, monday, f.provider.ID), 16)
	assert.Equal(t, 2, f.busy.calls)
}

func TestCheckIntervalPolicies(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.blocked.Create(context.Background(), &BlockedTime{
		ProviderID: f.provider.ID, StartAt: at(15, 0), EndAt: at(16, 0),
	}))
	r := f.resolver(monday, 0)
	ctx := context.Background()
	p := f.provider

	assert.NoError(t, r.CheckInterval(ctx, p, at(10, 0), at(10, 30), PolicyExact))
	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(10, 0), at(11, 0), PolicyExact), ErrNotOnGrid)

	assert.NoError(t, r.CheckInterval(ctx, p, at(10, 0), at(11, 15), PolicyAligned))
	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(10, 15), at(10, 45), PolicyAligned), ErrNotOnGrid)

	assert.NoError(t, r.CheckInterval(ctx, p, at(10, 15), at(10, 40), PolicyFree))

	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(17, 30), at(18, 30), PolicyFree), ErrOutsideHours)
	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(8, 30), at(9, 0), PolicyFree), ErrOutsideHours)
	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(15, 30), at(16, 0), PolicyExact), ErrBlocked)
	assert.ErrorIs(t, r.CheckInterval(ctx, p, at(11, 0), at(11, 0), PolicyFree), ErrInvalidInterval)
}

func TestRuleValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	err := f.rules.Create(ctx, &Rule{ProviderID: 1, DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00", SlotSizeMin: 30})
	assert.ErrorIs(t, err, ErrInvalidRule)
	err = f.rules.Create(ctx, &Rule{ProviderID: 1, DayOfWeek: 1, StartTime: "10:00", EndTime: "09:00", SlotSizeMin: 30})
	assert.ErrorIs(t, err, ErrInvalidRule)
	err = f.rules.Create(ctx, &Rule{ProviderID: 1, DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", SlotSizeMin: 0})
	assert.ErrorIs(t, err, ErrInvalidRule)

	err = f.blocked.Create(ctx, &BlockedTime{ProviderID: 1, StartAt: at(10, 0), EndAt: at(10, 0)})
	assert.ErrorIs(t, err, ErrInvalidBlocked)
}

func TestGetAvailabilityHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := setupFixture(t)
	r := f.resolver(monday.AddDate(0, 0, -7), 0)
	h := NewHandler(r, NewService(f.rules, f.blocked, r))

	router := gin.New()
	h.RegisterRoutes(router.Group(""), router.Group("/providers/me"))

	w := httptest.NewRecorder()
	url := fmt.Sprintf("/availability?providerId=%d&from=2024-06-03&to=2024-06-03", f.provider.ID)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Data    []Slot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 18)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability?providerId=abc&from=x&to=y", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
