package booking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/domain/wallet"
	"salonbook/internal/pkg/keylock"
)

type ProviderCatalog interface {
	GetByID(ctx context.Context, id int64) (*provider.Provider, error)
	GetServices(ctx context.Context, providerID int64, ids []int64) ([]provider.Service, error)
}

// SlotChecker is the availability side of a reservation.
type SlotChecker interface {
	CheckInterval(ctx context.Context, p *provider.Provider, start, end time.Time, policy availability.SlotPolicy) error
	Invalidate(ctx context.Context, providerID int64)
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// CouponRedeemer consumes one coupon use inside the booking transaction.
type CouponRedeemer interface {
	RedeemTx(tx *gorm.DB, code string, subtotal int64) (int64, error)
}

type Ledger interface {
	PostTx(tx *gorm.DB, req wallet.PostRequest) (*wallet.Wallet, *wallet.Transaction, error)
	FindRefTx(tx *gorm.DB, ownerUserID int64, ref string) (*wallet.Transaction, error)
	NotifyCredited(ctx context.Context, ownerUserID int64, txn *wallet.Transaction)
}

type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

// Deps are the collaborators shared by Guard, Service and Expirer.
type Deps struct {
	DB        *gorm.DB
	Repo      *Repository
	Providers ProviderCatalog
	Slots     SlotChecker
	Settings  SettingsReader
	Coupons   CouponRedeemer
	Ledger    Ledger
	Locker    keylock.Locker
	Notifier  Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
