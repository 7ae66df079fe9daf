package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/coupon"
	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/pkg/apperr"
	"salonbook/internal/pkg/keylock"
)

// ReserveRequest is a customer's slot selection. A zero End means the
// interval runs for the summed duration of the selected services.
type ReserveRequest struct {
	ProviderID      int64
	CustomerUserID  int64
	Mode            provider.Mode
	Start           time.Time
	End             time.Time
	ServiceIDs      []int64
	GroupSize       int
	PaymentMethod   string
	CouponCode      string
	CustomerAddress string
}

func (r ReserveRequest) validate() error {
	switch {
	case r.ProviderID <= 0:
		return apperr.Withf(ErrValidation, "providerId is required")
	case r.CustomerUserID <= 0:
		return apperr.Withf(ErrValidation, "customer is required")
	case !r.Mode.Valid():
		return apperr.Withf(ErrValidation, "mode must be HOME or SALON")
	case r.Start.IsZero():
		return apperr.Withf(ErrValidation, "interval start is required")
	case !r.End.IsZero() && !r.Start.Before(r.End):
		return apperr.Withf(ErrValidation, "interval start must be before end")
	case len(r.ServiceIDs) == 0:
		return apperr.Withf(ErrValidation, "at least one item is required")
	case r.GroupSize < 1:
		return apperr.Withf(ErrValidation, "groupSize must be at least 1")
	case strings.TrimSpace(r.PaymentMethod) == "":
		return apperr.Withf(ErrValidation, "paymentMethod is required")
	case r.Mode == provider.ModeHome && strings.TrimSpace(r.CustomerAddress) == "":
		return apperr.Withf(ErrValidation, "customerAddress is required for HOME bookings")
	}
	return nil
}

func providerLockKey(providerID int64) string {
	return "provider:" + strconv.FormatInt(providerID, 10)
}

// Guard turns a slot selection into a committed PENDING booking.
type Guard struct {
	deps   Deps
	policy availability.SlotPolicy
	log    *zap.Logger
}

func NewGuard(deps Deps, policy availability.SlotPolicy, log *zap.Logger) *Guard {
	return &Guard{deps: deps, policy: policy, log: log}
}

// Reserve validates the request against the provider's capacity, lead time
// and open hours, then checks for overlaps, redeems the coupon and inserts
// the booking in one transaction while holding the provider and coupon
// locks.
func (g *Guard) Reserve(ctx context.Context, req ReserveRequest) (*Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p, err := g.deps.Providers.GetByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	capacity := p.CapacityFor(req.Mode)
	if capacity == 0 {
		return nil, apperr.Withf(ErrModeUnavailable, "provider does not offer %s bookings", req.Mode)
	}
	if req.GroupSize > capacity {
		return nil, apperr.Withf(ErrCapacity, "group size %d exceeds %s capacity %d", req.GroupSize, req.Mode, capacity)
	}

	services, err := g.deps.Providers.GetServices(ctx, p.ID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}
	items, subtotal, duration := snapshot(services)

	start := req.Start.UTC()
	end := start.Add(duration)
	if !req.End.IsZero() {
		end = req.End.UTC()
		if end.Sub(start) < duration {
			return nil, apperr.Withf(ErrValidation, "interval is shorter than the selected services (%s)", duration)
		}
	}

	platform, err := g.deps.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if start.Before(g.deps.now().Add(p.LeadTime(platform.MinLeadTime()))) {
		return nil, ErrLeadTime
	}
	if err := g.deps.Slots.CheckInterval(ctx, p, start, end, g.policy); err != nil {
		return nil, err
	}

	keys := []string{providerLockKey(p.ID)}
	code := coupon.NormalizeCode(req.CouponCode)
	if code != "" {
		keys = append(keys, coupon.LockKey(code))
	}
	unlock, err := keylock.LockAll(ctx, g.deps.Locker, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := g.deps.now().UTC()
	b := &Booking{
		CustomerUserID: req.CustomerUserID,
		ProviderID:     p.ID,
		Mode:           req.Mode,
		ScheduledStart: start,
		ScheduledEnd:   end,
		Status:         StatusPending,
		Items:          items,
		Subtotal:       subtotal,
		GroupSize:      req.GroupSize,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if addr := strings.TrimSpace(req.CustomerAddress); addr != "" {
		b.CustomerAddress = &addr
	}

	err = g.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.deps.Repo.lockProviderTx(tx, p.ID); err != nil {
			return err
		}
		taken, err := g.deps.Repo.overlapsTx(tx, p.ID, start, end)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		if code != "" {
			discount, err := g.deps.Coupons.RedeemTx(tx, code, subtotal)
			if err != nil {
				return err
			}
			b.Discount = discount
			b.CouponCode = &code
		}
		b.Total = b.Subtotal - b.Discount
		return g.deps.Repo.createTx(tx, b)
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	g.deps.Slots.Invalidate(ctx, p.ID)
	g.log.Info("booking reserved",
		zap.Int64("booking_id", b.ID),
		zap.Int64("provider_id", p.ID),
		zap.Time("start", start),
		zap.Int64("total", b.Total),
	)

	pid := p.ID
	g.deps.Notifier.Dispatch(ctx, notification.Event{
		Type:       notification.TypeBookingRequested,
		UserID:     p.OwnerUserID,
		ProviderID: &pid,
		Title:      "New booking request",
		Body:       fmt.Sprintf("Booking #%d requested for %s", b.ID, start.In(p.Location()).Format("Mon 02 Jan 15:04")),
		Data: map[string]any{
			"booking_id": b.ID,
			"status":     b.Status,
		},
	})
	return b, nil
}
