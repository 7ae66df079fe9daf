package database

import (
	"fmt"

	"gorm.io/gorm"

	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/booking"
	"salonbook/internal/domain/coupon"
	"salonbook/internal/domain/notification"
	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/domain/wallet"
)

func models() []any {
	return []any{
		&provider.Provider{},
		&provider.Service{},
		&availability.Rule{},
		&availability.BlockedTime{},
		&settings.Settings{},
		&coupon.Coupon{},
		&booking.Booking{},
		&booking.Item{},
		&wallet.Wallet{},
		&wallet.Transaction{},
		&notification.Notification{},
	}
}

// bookingsNoOverlap keeps two live bookings of one provider from
// overlapping even if a writer bypasses the application lock.
const bookingsNoOverlap = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
		ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
			provider_id WITH =,
			tstzrange(scheduled_start, scheduled_end, '[)') WITH &&
		) WHERE (status NOT IN ('CANCELLED', 'REJECTED'));
	END IF;
END $$;`

// Migrate creates or updates every table. On PostgreSQL it also installs
// the booking exclusion constraint.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`).Error; err != nil {
		return fmt.Errorf("enable btree_gist: %w", err)
	}
	if err := db.Exec(bookingsNoOverlap).Error; err != nil {
		return fmt.Errorf("bookings exclusion constraint: %w", err)
	}
	return nil
}
