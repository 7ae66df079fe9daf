package booking

import (
	"time"

	"salonbook/internal/domain/provider"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusRejected  Status = "REJECTED"
	StatusOnTheWay  Status = "ON_THE_WAY"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// releasedStatuses no longer hold their interval. COMPLETED still does.
var releasedStatuses = []Status{StatusCancelled, StatusRejected}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

func (s Status) holdsSlot() bool {
	return s != StatusCancelled && s != StatusRejected
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// Booking is a reservation of one provider's time. Prices, names and
// durations are snapshotted into Items when it is created.
type Booking struct {
	ID              int64         `json:"id" gorm:"primaryKey"`
	CustomerUserID  int64         `json:"customerUserId" gorm:"not null;index"`
	ProviderID      int64         `json:"providerId" gorm:"not null;index:idx_bookings_provider_start"`
	Mode            provider.Mode `json:"mode" gorm:"type:varchar(8);not null"`
	ScheduledStart  time.Time     `json:"scheduledStart" gorm:"not null;index:idx_bookings_provider_start"`
	ScheduledEnd    time.Time     `json:"scheduledEnd" gorm:"not null"`
	Status          Status        `json:"status" gorm:"type:varchar(16);not null;index"`
	Items           []Item        `json:"items" gorm:"foreignKey:BookingID"`
	Subtotal        int64         `json:"subtotal" gorm:"not null"`
	Discount        int64         `json:"discount" gorm:"not null"`
	Total           int64         `json:"total" gorm:"not null"`
	CouponCode      *string       `json:"couponCode,omitempty" gorm:"type:varchar(64)"`
	GroupSize       int           `json:"groupSize" gorm:"not null"`
	PaymentMethod   string        `json:"paymentMethod" gorm:"type:varchar(32);not null"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" gorm:"type:varchar(16);not null"`
	CustomerAddress *string       `json:"customerAddress,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (Booking) TableName() string { return "bookings" }

// Item is an immutable copy of a provider service at booking time.
type Item struct {
	ID                int64  `json:"-" gorm:"primaryKey"`
	BookingID         int64  `json:"-" gorm:"not null;index"`
	ProviderServiceID int64  `json:"providerServiceId" gorm:"not null"`
	NameSnapshot      string `json:"nameSnapshot" gorm:"not null"`
	PriceSnapshot     int64  `json:"priceSnapshot" gorm:"not null"`
	DurationSnapshot  int    `json:"durationSnapshot" gorm:"not null"`
}

func (Item) TableName() string { return "booking_items" }

// snapshot copies services into items and returns their summed price and
// duration.
func snapshot(services []provider.Service) ([]Item, int64, time.Duration) {
	items := make([]Item, 0, len(services))
	var (
		subtotal int64
		minutes  int
	)
	for _, s := range services {
		items = append(items, Item{
			ProviderServiceID: s.ID,
			NameSnapshot:      s.Name,
			PriceSnapshot:     s.Price,
			DurationSnapshot:  s.DurationMin,
		})
		subtotal += s.Price
		minutes += s.DurationMin
	}
	return items, subtotal, time.Duration(minutes) * time.Minute
}
