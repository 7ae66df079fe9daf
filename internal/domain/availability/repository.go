package availability

import (
	"context"
	"time"

	"gorm.io/gorm"

	"salonbook/internal/pkg/apperr"
)

var (
	ErrRuleNotFound    = apperr.New(apperr.NotFound, "availability rule not found")
	ErrBlockedNotFound = apperr.New(apperr.NotFound, "blocked time not found")
	ErrInvalidRule     = apperr.New(apperr.Validation, "invalid availability rule")
	ErrInvalidBlocked  = apperr.New(apperr.Validation, "invalid blocked time")
)

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *Rule) error {
	if err := rule.validate(); err != nil {
		return apperr.Withf(ErrInvalidRule, "%s", err.Error())
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *RuleRepository) ListByProvider(ctx context.Context, providerID int64) ([]Rule, error) {
	var rows []Rule
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("day_of_week, start_time").
		Find(&rows).Error
	return rows, err
}

// ListActive returns active rules grouped by weekday.
func (r *RuleRepository) ListActive(ctx context.Context, providerID int64) (map[time.Weekday][]Rule, error) {
	var rows []Rule
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND is_active = ?", providerID, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[time.Weekday][]Rule)
	for _, rule := range rows {
		day := time.Weekday(rule.DayOfWeek)
		out[day] = append(out[day], rule)
	}
	return out, nil
}

func (r *RuleRepository) Delete(ctx context.Context, providerID, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ? AND provider_id = ?", id, providerID).Delete(&Rule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type BlockedRepository struct {
	db *gorm.DB
}

func NewBlockedRepository(db *gorm.DB) *BlockedRepository {
	return &BlockedRepository{db: db}
}

func (r *BlockedRepository) Create(ctx context.Context, b *BlockedTime) error {
	if !b.StartAt.Before(b.EndAt) {
		return apperr.Withf(ErrInvalidBlocked, "start_at must be before end_at")
	}
	b.StartAt = b.StartAt.UTC()
	b.EndAt = b.EndAt.UTC()
	return r.db.WithContext(ctx).Create(b).Error
}

// ListOverlapping returns rows intersecting [from, to).
func (r *BlockedRepository) ListOverlapping(ctx context.Context, providerID int64, from, to time.Time) ([]BlockedTime, error) {
	var rows []BlockedTime
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("start_at < ? AND end_at > ?", to.UTC(), from.UTC()).
		Order("start_at").
		Find(&rows).Error
	return rows, err
}

func (r *BlockedRepository) Delete(ctx context.Context, providerID, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ? AND provider_id = ?", id, providerID).Delete(&BlockedTime{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBlockedNotFound
	}
	return nil
}
