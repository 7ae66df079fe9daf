package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonbook/internal/pkg/apperr"
	"salonbook/internal/pkg/keylock"
)

var (
	ErrNotFound      = apperr.New(apperr.NotFound, "coupon not found")
	ErrInactive      = apperr.New(apperr.CouponInvalid, "coupon is not active")
	ErrExpired       = apperr.New(apperr.CouponInvalid, "coupon has expired")
	ErrBelowMinimum  = apperr.New(apperr.CouponInvalid, "order subtotal is below the coupon minimum")
	ErrExhausted     = apperr.New(apperr.CouponInvalid, "coupon usage limit reached")
	ErrInvalidCoupon = apperr.New(apperr.Validation, "invalid coupon")
	ErrDuplicateCode = apperr.New(apperr.Conflict, "coupon code already exists")
)

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LockKey is the keylock key serializing redemptions of one code.
func LockKey(code string) string {
	return "coupon:" + NormalizeCode(code)
}

type Service struct {
	db     *gorm.DB
	locker keylock.Locker
	now    func() time.Time
}

func NewService(db *gorm.DB, locker keylock.Locker) *Service {
	return &Service{db: db, locker: locker, now: time.Now}
}

// check runs the redemption rules in order: active, not expired, minimum
// order, remaining uses.
func (s *Service) check(c *Coupon, subtotal int64) error {
	if c.Status != StatusActive {
		return ErrInactive
	}
	if c.ExpiresAt != nil && !s.now().Before(*c.ExpiresAt) {
		return ErrExpired
	}
	if subtotal < c.MinOrder {
		return ErrBelowMinimum
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return ErrExhausted
	}
	return nil
}

func (s *Service) find(tx *gorm.DB, code string, forUpdate bool) (*Coupon, error) {
	var c Coupon
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("code = ?", NormalizeCode(code)).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Apply computes the discount for subtotal without redeeming the coupon.
func (s *Service) Apply(ctx context.Context, code string, subtotal int64) (int64, error) {
	c, err := s.find(s.db.WithContext(ctx), code, false)
	if err != nil {
		return 0, err
	}
	if err := s.check(c, subtotal); err != nil {
		return 0, err
	}
	return c.Discount(subtotal), nil
}

// RedeemTx applies the coupon and consumes one use inside the caller's
// transaction, so the increment commits or rolls back with the booking.
// Callers should hold LockKey(code).
func (s *Service) RedeemTx(tx *gorm.DB, code string, subtotal int64) (int64, error) {
	c, err := s.find(tx, code, true)
	if err != nil {
		return 0, err
	}
	if err := s.check(c, subtotal); err != nil {
		return 0, err
	}

	res := tx.Model(&Coupon{}).
		Where("id = ? AND status = ?", c.ID, StatusActive).
		Where("max_uses = 0 OR used_count < max_uses").
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrExhausted
	}
	return c.Discount(subtotal), nil
}

// Redeem is RedeemTx in its own transaction.
func (s *Service) Redeem(ctx context.Context, code string, subtotal int64) (int64, error) {
	unlock, err := s.locker.Lock(ctx, LockKey(code))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var discount int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.RedeemTx(tx, code, subtotal)
		discount = d
		return err
	})
	if err != nil {
		return 0, err
	}
	return discount, nil
}

type CreateRequest struct {
	Code      string     `json:"code" validate:"required,min=3,max=64"`
	Type      Type       `json:"type" validate:"required,oneof=fixed percent"`
	Value     int64      `json:"value" validate:"required,gt=0"`
	MinOrder  int64      `json:"minOrder" validate:"gte=0"`
	MaxUses   int        `json:"maxUses" validate:"gte=0"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	if req.Type == TypePercent && req.Value > 100 {
		return nil, apperr.Withf(ErrInvalidCoupon, "percent value must be within (0,100]")
	}
	c := &Coupon{
		Code:      NormalizeCode(req.Code),
		Type:      req.Type,
		Value:     req.Value,
		MinOrder:  req.MinOrder,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Status:    StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) SetStatus(ctx context.Context, code string, status Status) (*Coupon, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, apperr.Withf(ErrInvalidCoupon, "status must be active or inactive")
	}
	res := s.db.WithContext(ctx).Model(&Coupon{}).
		Where("code = ?", NormalizeCode(code)).
		Updates(map[string]any{"status": status, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.find(s.db.WithContext(ctx), code, false)
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
