package coupon

import (
	"time"
)

type Type string

const (
	TypeFixed   Type = "fixed"
	TypePercent Type = "percent"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Coupon is a global discount code. For fixed coupons Value is in minor
// currency units; for percent coupons it is whole percent points.
type Coupon struct {
	ID        int64      `json:"id" gorm:"primaryKey"`
	Code      string     `json:"code" gorm:"type:varchar(64);not null;uniqueIndex"`
	Type      Type       `json:"type" gorm:"type:varchar(16);not null"`
	Value     int64      `json:"value" gorm:"not null"`
	MinOrder  int64      `json:"minOrder" gorm:"not null"`
	MaxUses   int        `json:"maxUses" gorm:"not null"`
	UsedCount int        `json:"usedCount" gorm:"not null"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Status    Status     `json:"status" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Coupon) TableName() string { return "coupons" }

// Discount never exceeds subtotal. Percent discounts round half up.
func (c *Coupon) Discount(subtotal int64) int64 {
	var d int64
	switch c.Type {
	case TypeFixed:
		d = c.Value
	case TypePercent:
		d = (subtotal*c.Value + 50) / 100
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}
