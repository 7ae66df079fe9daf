package settings

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonbook/internal/pkg/apperr"
)

const rowID = 1

var ErrInvalid = apperr.New(apperr.Validation, "invalid platform settings")

// Settings are platform-wide policy knobs editable by admins.
type Settings struct {
	ID                int64     `json:"-" gorm:"primaryKey"`
	MinCancelHours    float64   `json:"minCancelHours" gorm:"not null"`
	CommissionPercent float64   `json:"commissionPercent" gorm:"not null"`
	MinLeadMinutes    int       `json:"minLeadMinutes" gorm:"not null"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Settings) TableName() string { return "platform_settings" }

func (s Settings) MinCancelWindow() time.Duration {
	return time.Duration(s.MinCancelHours * float64(time.Hour))
}

func (s Settings) MinLeadTime() time.Duration {
	return time.Duration(s.MinLeadMinutes) * time.Minute
}

func (s Settings) validate() error {
	if s.MinCancelHours < 0 {
		return apperr.Withf(ErrInvalid, "min_cancel_hours must be >= 0")
	}
	if s.CommissionPercent < 0 || s.CommissionPercent > 100 {
		return apperr.Withf(ErrInvalid, "commission_percent must be within [0,100]")
	}
	if s.MinLeadMinutes < 0 {
		return apperr.Withf(ErrInvalid, "min_lead_minutes must be >= 0")
	}
	return nil
}

// Service returns the stored settings row, falling back to the defaults the
// process was configured with until an admin saves an override.
type Service struct {
	db       *gorm.DB
	defaults Settings
}

func NewService(db *gorm.DB, defaults Settings) *Service {
	defaults.ID = rowID
	return &Service{db: db, defaults: defaults}
}

func (s *Service) Get(ctx context.Context) (Settings, error) {
	var row Settings
	err := s.db.WithContext(ctx).First(&row, rowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return Settings{}, err
	}
	return row, nil
}

type UpdateRequest struct {
	MinCancelHours    *float64 `json:"minCancelHours"`
	CommissionPercent *float64 `json:"commissionPercent"`
	MinLeadMinutes    *int     `json:"minLeadMinutes"`
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	if req.MinCancelHours != nil {
		current.MinCancelHours = *req.MinCancelHours
	}
	if req.CommissionPercent != nil {
		current.CommissionPercent = *req.CommissionPercent
	}
	if req.MinLeadMinutes != nil {
		current.MinLeadMinutes = *req.MinLeadMinutes
	}
	if err := current.validate(); err != nil {
		return Settings{}, err
	}

	current.ID = rowID
	current.UpdatedAt = time.Now().UTC()
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&current).Error
	if err != nil {
		return Settings{}, err
	}
	return current, nil
}
