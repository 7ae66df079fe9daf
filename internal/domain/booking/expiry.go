package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"salonbook/internal/pkg/identity"
)

const expiryBatch = 100

// Expirer rejects PENDING bookings nobody answered within the configured
// period, releasing their slots.
type Expirer struct {
	repo    *Repository
	service *Service
	after   time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewExpirer(deps Deps, service *Service, after time.Duration, log *zap.Logger) *Expirer {
	return &Expirer{repo: deps.Repo, service: service, after: after, now: deps.now, log: log}
}

// RunOnce expires one batch and returns how many bookings it rejected. A
// zero period disables expiry.
func (e *Expirer) RunOnce(ctx context.Context) (int, error) {
	if e.after <= 0 {
		return 0, nil
	}
	ids, err := e.repo.ListStalePending(ctx, e.now().Add(-e.after), expiryBatch)
	if err != nil {
		e.log.Error("pending expiry lookup failed", zap.Error(err))
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		_, err := e.service.ChangeStatus(ctx, identity.System(), id, ActionExpire)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConcurrentUpdate):
			// answered between the lookup and the transition
		default:
			e.log.Warn("pending expiry failed", zap.Int64("booking_id", id), zap.Error(err))
		}
	}
	if expired > 0 {
		e.log.Info("expired pending bookings", zap.Int("count", expired))
	}
	return expired, nil
}

// Schedule runs RunOnce every interval until ctx is done.
func (e *Expirer) Schedule(ctx context.Context, interval time.Duration) {
	if e.after <= 0 {
		e.log.Info("pending expiry disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _ = e.RunOnce(ctx)
			case <-ctx.Done():
				e.log.Info("pending expiry stopped")
				return
			}
		}
	}()
	e.log.Info("pending expiry scheduled",
		zap.Duration("after", e.after),
		zap.Duration("interval", interval),
	)
}
