package notification

import (
	"encoding/json"
	"time"
)

// Type is the event kind carried by a notification.
type Type string

const (
	TypeBookingRequested Type = "booking_requested"
	TypeBookingConfirmed Type = "booking_confirmed"
	TypeBookingRejected  Type = "booking_rejected"
	TypeBookingOnTheWay  Type = "booking_on_the_way"
	TypeBookingStarted   Type = "booking_started"
	TypeBookingCompleted Type = "booking_completed"
	TypeBookingCancelled Type = "booking_cancelled"
	TypeWalletCredited   Type = "wallet_credited"
)

// Notification is the durable, append-only record of a dispatched event.
type Notification struct {
	ID         int64           `gorm:"primaryKey;column:id" json:"id"`
	UserID     *int64          `gorm:"column:user_id;index:idx_notifications_user_unread" json:"userId,omitempty"`
	ProviderID *int64          `gorm:"column:provider_id;index" json:"providerId,omitempty"`
	Type       Type            `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Title      string          `gorm:"column:title;not null" json:"title"`
	Body       string          `gorm:"column:body" json:"body"`
	Data       json.RawMessage `gorm:"column:data" json:"data,omitempty"`
	IsRead     bool            `gorm:"column:is_read;index:idx_notifications_user_unread" json:"isRead"`
	ReadAt     *time.Time      `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;index" json:"createdAt"`
}

// TableName specifies table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// Event is what producers hand to the Dispatcher. UserID is the recipient
// whose live sessions receive the push; ProviderID tags provider-facing
// events.
type Event struct {
	ID         string         `json:"eventId"`
	Type       Type           `json:"type"`
	UserID     int64          `json:"userId"`
	ProviderID *int64         `json:"providerId,omitempty"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
