package booking

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonbook/internal/domain/availability"
	"salonbook/internal/domain/provider"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func live(q *gorm.DB) *gorm.DB {
	return q.Where("status NOT IN ?", releasedStatuses)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListBusy returns the intervals held by live bookings of a provider that
// intersect [from, to), ordered by start.
func (r *Repository) ListBusy(ctx context.Context, providerID int64, from, to time.Time) ([]availability.Interval, error) {
	var rows []Booking
	err := live(r.db.WithContext(ctx).Model(&Booking{})).
		Select("scheduled_start", "scheduled_end").
		Where("provider_id = ?", providerID).
		Where("scheduled_start < ? AND scheduled_end > ?", to.UTC(), from.UTC()).
		Order("scheduled_start").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]availability.Interval, 0, len(rows))
	for _, b := range rows {
		out = append(out, availability.Interval{Start: b.ScheduledStart, End: b.ScheduledEnd})
	}
	return out, nil
}

// lockProviderTx takes a row lock on the provider so reservations for it
// serialize across processes. SQLite ignores the locking clause; its
// single writer gives the same effect.
func (r *Repository) lockProviderTx(tx *gorm.DB, providerID int64) error {
	var p provider.Provider
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&p, providerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return provider.ErrNotFound
	}
	return err
}

func (r *Repository) overlapsTx(tx *gorm.DB, providerID int64, start, end time.Time) (bool, error) {
	var n int64
	err := live(tx.Model(&Booking{})).
		Where("provider_id = ?", providerID).
		Where("scheduled_start < ? AND scheduled_end > ?", end.UTC(), start.UTC()).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) createTx(tx *gorm.DB, b *Booking) error {
	return tx.Create(b).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Booking, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *Repository) getForUpdateTx(tx *gorm.DB, id int64) (*Booking, error) {
	return r.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repository) get(q *gorm.DB, id int64) (*Booking, error) {
	var b Booking
	if err := q.Preload("Items").First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// transitionTx moves a booking from one status to another only if it is
// still in from. It reports false when another writer got there first.
func (r *Repository) transitionTx(tx *gorm.DB, id int64, from, to Status, now time.Time) (bool, error) {
	res := tx.Model(&Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now.UTC()})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) MarkPaid(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := live(r.db.WithContext(ctx).Model(&Booking{})).
		Where("id = ? AND payment_status = ?", id, PaymentPending).
		Updates(map[string]any{"payment_status": PaymentPaid, "updated_at": now.UTC()})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) ListByCustomer(ctx context.Context, customerUserID int64, limit, offset int) ([]Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&Booking{}).Where("customer_user_id = ?", customerUserID)
	return r.page(q, limit, offset)
}

// ListByProvider filters by status when one is given.
func (r *Repository) ListByProvider(ctx context.Context, providerID int64, status Status, limit, offset int) ([]Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&Booking{}).Where("provider_id = ?", providerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.page(q, limit, offset)
}

func (r *Repository) page(q *gorm.DB, limit, offset int) ([]Booking, int64, error) {
	limit, offset = clampPage(limit, offset)
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]Booking, 0)
	err := q.Preload("Items").
		Order("scheduled_start DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListStalePending returns ids of PENDING bookings created before cutoff,
// oldest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Booking{}).
		Where("status = ? AND created_at < ?", StatusPending, cutoff.UTC()).
		Order("created_at").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
