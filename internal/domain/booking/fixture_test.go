package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/coupon"
	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/domain/wallet"
	"salonbook/internal/pkg/identity"
	"salonbook/internal/pkg/keylock"
)

const (
	customerID = int64(7)
	ownerID    = int64(500)
)

// 2024-06-03 is a Monday.
var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return monday.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Dispatch(_ context.Context, ev notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) ofType(typ notification.Type) []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	clock    *clock
	notifier *recordingNotifier
	provider *provider.Provider
	cut      provider.Service
	color    provider.Service
	repo     *Repository
	resolver *availability.Resolver
	coupons  *coupon.Service
	wallets  *wallet.Service
	deps     Deps
	guard    *Guard
	service  *Service
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:booking_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&provider.Provider{}, &provider.Service{},
		&availability.Rule{}, &availability.BlockedTime{},
		&settings.Settings{}, &coupon.Coupon{},
		&wallet.Wallet{}, &wallet.Transaction{},
		&Booking{}, &Item{},
	))

	providers := provider.NewRepository(db)
	p := &provider.Provider{OwnerUserID: ownerID, Name: "Studio Nine", Timezone: "UTC", SalonCapacity: 2}
	require.NoError(t, providers.Create(ctx, p))
	cut := provider.Service{ProviderID: p.ID, Name: "Cut", Price: 100, DurationMin: 30, IsActive: true}
	color := provider.Service{ProviderID: p.ID, Name: "Color", Price: 200, DurationMin: 60, IsActive: true}
	require.NoError(t, providers.CreateService(ctx, &cut))
	require.NoError(t, providers.CreateService(ctx, &color))

	rules := availability.NewRuleRepository(db)
	require.NoError(t, rules.Create(ctx, &availability.Rule{
		ProviderID: p.ID, DayOfWeek: int(time.Monday), StartTime: "09:00", EndTime: "18:00", SlotSizeMin: 30, IsActive: true,
	}))

	// Saturday morning before the Monday under test.
	clk := &clock{t: monday.Add(-40 * time.Hour)}
	notifier := &recordingNotifier{}
	platform := settings.NewService(db, settings.Settings{MinCancelHours: 24, CommissionPercent: 12, MinLeadMinutes: 60})
	repo := NewRepository(db)
	resolver := availability.NewResolver(
		providers, rules, availability.NewBlockedRepository(db), repo, platform,
		zap.NewNop(), availability.WithClock(clk.Now),
	)
	coupons := coupon.NewService(db, keylock.NewKeyedMutex())
	wallets := wallet.NewService(db, "USD", notifier)

	deps := Deps{
		DB:        db,
		Repo:      repo,
		Providers: providers,
		Slots:     resolver,
		Settings:  platform,
		Coupons:   coupons,
		Ledger:    wallets,
		Locker:    keylock.NewKeyedMutex(),
		Notifier:  notifier,
		Now:       clk.Now,
	}
	return &fixture{
		db:       db,
		clock:    clk,
		notifier: notifier,
		provider: p,
		cut:      cut,
		color:    color,
		repo:     repo,
		resolver: resolver,
		coupons:  coupons,
		wallets:  wallets,
		deps:     deps,
		guard:    NewGuard(deps, availability.PolicyAligned, zap.NewNop()),
		service:  NewService(deps, NewStateMachine(true), zap.NewNop()),
	}
}

func (f *fixture) request(start time.Time, serviceIDs ...int64) ReserveRequest {
	return ReserveRequest{
		ProviderID:     f.provider.ID,
		CustomerUserID: customerID,
		Mode:           provider.ModeSalon,
		Start:          start,
		ServiceIDs:     serviceIDs,
		GroupSize:      1,
		PaymentMethod:  "cash",
	}
}

func (f *fixture) reserve(t *testing.T, start time.Time, serviceIDs ...int64) *Booking {
	t.Helper()
	b, err := f.guard.Reserve(context.Background(), f.request(start, serviceIDs...))
	require.NoError(t, err)
	return b
}

func (f *fixture) providerActor() identity.Actor {
	return identity.Actor{UserID: ownerID, Role: identity.RoleProvider, ProviderID: f.provider.ID}
}

func customerActor() identity.Actor {
	return identity.Actor{UserID: customerID, Role: identity.RoleCustomer}
}

func (f *fixture) countBookings(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Booking{}).Count(&n).Error)
	return n
}
