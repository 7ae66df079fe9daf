package provider

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"salonbook/internal/pkg/apperr"
)

var (
	ErrNotFound        = apperr.New(apperr.NotFound, "provider not found")
	ErrServiceNotFound = apperr.New(apperr.NotFound, "service not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *Provider) error {
	if err := p.Hours.Validate(); err != nil {
		return apperr.Wrap(apperr.New(apperr.Validation, "invalid opening hours"), err)
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) CreateService(ctx context.Context, s *Service) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Provider, error) {
	var p Provider
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByOwner is the lookup index from an owning user to the provider.
func (r *Repository) GetByOwner(ctx context.Context, ownerUserID int64) (*Provider, error) {
	var p Provider
	if err := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetServices loads the requested active services of one provider, in the
// order requested. Any missing or foreign id fails the whole lookup.
func (r *Repository) GetServices(ctx context.Context, providerID int64, ids []int64) ([]Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Service
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND id IN ? AND is_active = ?", providerID, ids, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Service, len(rows))
	for _, s := range rows {
		byID[s.ID] = s
	}
	out := make([]Service, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, apperr.Withf(ErrServiceNotFound, "service %d is not offered by this provider", id)
		}
		out = append(out, s)
	}
	return out, nil
}
