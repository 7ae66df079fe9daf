package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"salonbook/internal/config"
	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/booking"
	"salonbook/internal/domain/coupon"
	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/domain/wallet"
	"salonbook/internal/middleware"
	"salonbook/internal/pkg/jwt"
	"salonbook/internal/pkg/keylock"
)

// Options carries the optional infrastructure. Zero values fall back to
// in-process implementations.
type Options struct {
	Redis     *redis.Client
	Publisher notification.Publisher
	Now       func() time.Time
}

// App is the assembled service: the HTTP router plus the background workers
// the caller must start and stop.
type App struct {
	Router     *gin.Engine
	JWT        *jwt.Service
	Dispatcher *notification.Dispatcher
	Expirer    *booking.Expirer
	Cleaner    *notification.Cleaner
}

func New(cfg *config.Config, db *gorm.DB, log *zap.Logger, opts Options) *App {
	jwtService := jwt.New(cfg.JWTSecret, 24*time.Hour)

	var locker keylock.Locker = keylock.NewKeyedMutex()
	var resolverOpts []availability.ResolverOption
	if opts.Redis != nil {
		locker = keylock.NewRedisLocker(opts.Redis, cfg.LockTTL, log.Named("keylock"))
		resolverOpts = append(resolverOpts, availability.WithCache(availability.NewRedisSlotCache(opts.Redis, cfg.AvailabilityCacheTTL)))
	}
	if opts.Now != nil {
		resolverOpts = append(resolverOpts, availability.WithClock(opts.Now))
	}

	var dispatcherOpts []notification.DispatcherOption
	if opts.Publisher != nil {
		dispatcherOpts = append(dispatcherOpts, notification.WithPublisher(opts.Publisher))
	}
	notificationRepo := notification.NewRepository(db)
	dispatcher := notification.NewDispatcher(
		notificationRepo, notification.NewRegistry(), log.Named("notification"),
		cfg.NotificationWorkers, cfg.NotificationQueue, dispatcherOpts...,
	)

	providers := provider.NewRepository(db)
	platform := settings.NewService(db, settings.Settings{
		MinCancelHours:    cfg.MinCancelHours,
		CommissionPercent: cfg.CommissionPercent,
		MinLeadMinutes:    int(cfg.MinLeadTime / time.Minute),
	})
	rules := availability.NewRuleRepository(db)
	blocked := availability.NewBlockedRepository(db)
	bookings := booking.NewRepository(db)
	resolver := availability.NewResolver(providers, rules, blocked, bookings, platform, log.Named("availability"), resolverOpts...)

	coupons := coupon.NewService(db, locker)
	wallets := wallet.NewService(db, cfg.Currency, dispatcher)

	deps := booking.Deps{
		DB:        db,
		Repo:      bookings,
		Providers: providers,
		Slots:     resolver,
		Settings:  platform,
		Coupons:   coupons,
		Ledger:    wallets,
		Locker:    locker,
		Notifier:  dispatcher,
		Now:       opts.Now,
	}
	bookingLog := log.Named("booking")
	guard := booking.NewGuard(deps, availability.SlotPolicy(cfg.SlotPolicy), bookingLog)
	lifecycle := booking.NewService(deps, booking.NewStateMachine(cfg.ProviderMayCancel), bookingLog)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	protected := v1.Group("", middleware.JWTAuth(jwtService))
	providerGroup := protected.Group("/providers/me", middleware.ProviderOnly())
	admin := protected.Group("/admin", middleware.AdminOnly())
	ws := v1.Group("", middleware.QueryTokenAuth(jwtService))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log.Named("ratelimit"))

	availability.NewHandler(resolver, availability.NewService(rules, blocked, resolver)).RegisterRoutes(v1, providerGroup)
	booking.NewHandler(guard, lifecycle).RegisterRoutes(protected, providerGroup, limiter.Middleware())
	coupon.NewHandler(coupons).RegisterRoutes(protected, admin)
	wallet.NewHandler(wallets).RegisterRoutes(protected, admin)
	settings.NewHandler(platform).RegisterRoutes(protected, admin)
	notification.RegisterRoutes(protected, ws,
		notification.NewHandler(notificationRepo, dispatcher.Registry(), cfg.CORSAllowedOrigins, config.IsProdLike(cfg.AppEnv), log.Named("ws")))

	return &App{
		Router:     r,
		JWT:        jwtService,
		Dispatcher: dispatcher,
		Expirer:    booking.NewExpirer(deps, lifecycle, cfg.PendingExpiry, log.Named("expiry")),
		Cleaner:    notification.NewCleaner(notificationRepo, cfg.NotificationRetentionDays, log.Named("notification")),
	}
}

// Close drains pending notifications and closes live sessions.
func (a *App) Close() {
	a.Dispatcher.Close()
}
