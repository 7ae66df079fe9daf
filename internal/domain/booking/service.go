package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/domain/wallet"
	"salonbook/internal/pkg/identity"
)

var statusEvents = map[Status]notification.Type{
	StatusConfirmed: notification.TypeBookingConfirmed,
	StatusRejected:  notification.TypeBookingRejected,
	StatusOnTheWay:  notification.TypeBookingOnTheWay,
	StatusStarted:   notification.TypeBookingStarted,
	StatusCompleted: notification.TypeBookingCompleted,
	StatusCancelled: notification.TypeBookingCancelled,
}

func payoutRef(id int64) string   { return fmt.Sprintf("booking:%d:payout", id) }
func refundRef(id int64) string   { return fmt.Sprintf("booking:%d:refund", id) }
func reversalRef(id int64) string { return fmt.Sprintf("booking:%d:payout_reversal", id) }

// posting is a committed ledger entry to announce after the transaction.
type posting struct {
	owner int64
	txn   *wallet.Transaction
}

// Service drives bookings through their lifecycle and serves reads.
type Service struct {
	deps    Deps
	machine *StateMachine
	log     *zap.Logger
}

func NewService(deps Deps, machine *StateMachine, log *zap.Logger) *Service {
	return &Service{deps: deps, machine: machine, log: log}
}

func isProviderOf(actor identity.Actor, b *Booking) bool {
	return actor.Role == identity.RoleProvider && actor.ProviderID != 0 && actor.ProviderID == b.ProviderID
}

func isCustomerOf(actor identity.Actor, b *Booking) bool {
	return actor.Role == identity.RoleCustomer && actor.UserID == b.CustomerUserID
}

func canView(actor identity.Actor, b *Booking) bool {
	return actor.IsAdmin() || isProviderOf(actor, b) || isCustomerOf(actor, b)
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*Booking, error) {
	b, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) ListForCustomer(ctx context.Context, actor identity.Actor, limit, offset int) ([]Booking, int64, error) {
	return s.deps.Repo.ListByCustomer(ctx, actor.UserID, limit, offset)
}

func (s *Service) ListForProvider(ctx context.Context, actor identity.Actor, status Status, limit, offset int) ([]Booking, int64, error) {
	if actor.Role != identity.RoleProvider || actor.ProviderID == 0 {
		return nil, 0, ErrForbidden
	}
	return s.deps.Repo.ListByProvider(ctx, actor.ProviderID, status, limit, offset)
}

// ChangeStatus applies action to a booking as actor. The status change and
// any ledger postings commit together; notifications go out afterwards.
func (s *Service) ChangeStatus(ctx context.Context, actor identity.Actor, id int64, action Action) (*Booking, error) {
	current, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleSystem && !isProviderOf(actor, current) && !isCustomerOf(actor, current) {
		return nil, ErrForbidden
	}
	p, err := s.deps.Providers.GetByID(ctx, current.ProviderID)
	if err != nil {
		return nil, err
	}
	platform, err := s.deps.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var (
		b        *Booking
		from     Status
		postings []posting
	)
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = s.deps.Repo.getForUpdateTx(tx, id)
		if err != nil {
			return err
		}
		from = b.Status

		to, err := s.machine.Next(from, action, actor.Role)
		if err != nil {
			return err
		}
		now := s.deps.now()
		// Cancelling exactly at the deadline is allowed.
		if to == StatusCancelled && windowed(from) && now.After(b.ScheduledStart.Add(-platform.MinCancelWindow())) {
			return ErrCancellationWindow
		}

		ok, err := s.deps.Repo.transitionTx(tx, b.ID, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		b.Status = to
		b.UpdatedAt = now.UTC()

		postings, err = s.settleTx(tx, b, p, platform)
		return err
	})
	if err != nil {
		return nil, translateDBError(err)
	}

	s.log.Info("booking status changed",
		zap.Int64("booking_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
		zap.String("actor_role", string(actor.Role)),
	)
	if !b.Status.holdsSlot() {
		s.deps.Slots.Invalidate(ctx, b.ProviderID)
	}
	s.announce(ctx, actor, b, p, from)
	for _, posted := range postings {
		s.deps.Ledger.NotifyCredited(ctx, posted.owner, posted.txn)
	}
	return b, nil
}

// settleTx posts the ledger effects of entering b.Status: the provider
// payout on completion, and for paid bookings that end early a customer
// refund plus reversal of any payout already credited.
func (s *Service) settleTx(tx *gorm.DB, b *Booking, p *provider.Provider, platform settings.Settings) ([]posting, error) {
	switch b.Status {
	case StatusCompleted:
		amount := Payout(b.Total, platform.CommissionPercent)
		if amount <= 0 {
			return nil, nil
		}
		_, txn, err := s.deps.Ledger.PostTx(tx, wallet.PostRequest{
			OwnerUserID: p.OwnerUserID,
			Type:        wallet.TypeCredit,
			Amount:      amount,
			Ref:         payoutRef(b.ID),
			Note:        fmt.Sprintf("booking #%d payout after %.2f%% commission", b.ID, platform.CommissionPercent),
		})
		if err != nil {
			return nil, err
		}
		return []posting{{owner: p.OwnerUserID, txn: txn}}, nil

	case StatusCancelled, StatusRejected:
		if b.PaymentStatus != PaymentPaid || b.Total <= 0 {
			return nil, nil
		}
		_, refund, err := s.deps.Ledger.PostTx(tx, wallet.PostRequest{
			OwnerUserID:    b.CustomerUserID,
			Type:           wallet.TypeCredit,
			Amount:         b.Total,
			Ref:            refundRef(b.ID),
			Note:           fmt.Sprintf("refund for booking #%d", b.ID),
			AllowOverdraft: true,
		})
		if err != nil {
			return nil, err
		}
		out := []posting{{owner: b.CustomerUserID, txn: refund}}

		payout, err := s.deps.Ledger.FindRefTx(tx, p.OwnerUserID, payoutRef(b.ID))
		if err != nil {
			return nil, err
		}
		if payout != nil {
			_, _, err := s.deps.Ledger.PostTx(tx, wallet.PostRequest{
				OwnerUserID:    p.OwnerUserID,
				Type:           wallet.TypeDebit,
				Amount:         payout.Amount,
				Ref:            reversalRef(b.ID),
				Note:           fmt.Sprintf("payout reversal for booking #%d", b.ID),
				AllowOverdraft: true,
			})
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, nil
}

// announce tells the other side of the booking about the new status. System
// actions reach both sides.
func (s *Service) announce(ctx context.Context, actor identity.Actor, b *Booking, p *provider.Provider, from Status) {
	typ, ok := statusEvents[b.Status]
	if !ok {
		return
	}
	notifyCustomer := actor.Role != identity.RoleCustomer
	notifyProvider := actor.Role != identity.RoleProvider

	label := strings.ToLower(strings.ReplaceAll(string(b.Status), "_", " "))
	data := map[string]any{
		"booking_id":      b.ID,
		"status":          b.Status,
		"previous_status": from,
	}
	if notifyCustomer {
		s.deps.Notifier.Dispatch(ctx, notification.Event{
			Type:   typ,
			UserID: b.CustomerUserID,
			Title:  "Booking " + label,
			Body:   fmt.Sprintf("Your booking #%d with %s is now %s", b.ID, p.Name, label),
			Data:   data,
		})
	}
	if notifyProvider {
		pid := p.ID
		s.deps.Notifier.Dispatch(ctx, notification.Event{
			Type:       typ,
			UserID:     p.OwnerUserID,
			ProviderID: &pid,
			Title:      "Booking " + label,
			Body:       fmt.Sprintf("Booking #%d is now %s", b.ID, label),
			Data:       data,
		})
	}
}

// MarkPaid records payment. Only the booking's provider or an admin may do
// it; marking an already paid booking is a no-op.
func (s *Service) MarkPaid(ctx context.Context, actor identity.Actor, id int64) (*Booking, error) {
	b, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !isProviderOf(actor, b) {
		return nil, ErrForbidden
	}
	if b.PaymentStatus == PaymentPaid {
		return b, nil
	}

	ok, err := s.deps.Repo.MarkPaid(ctx, id, s.deps.now())
	if err != nil {
		return nil, err
	}
	b, err = s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && b.PaymentStatus != PaymentPaid {
		return nil, ErrNotPayable
	}
	return b, nil
}
