package provider

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Mode is where a service is performed.
type Mode string

const (
	ModeHome  Mode = "HOME"
	ModeSalon Mode = "SALON"
)

func (m Mode) Valid() bool { return m == ModeHome || m == ModeSalon }

// Provider is the read model of a beauty professional or salon. The owning
// user is referenced one way; users never point back at providers.
type Provider struct {
	ID            int64        `json:"id" gorm:"primaryKey"`
	OwnerUserID   int64        `json:"ownerUserId" gorm:"not null;uniqueIndex"`
	Name          string       `json:"name" gorm:"not null"`
	Timezone      string       `json:"timezone" gorm:"not null;default:'UTC'"`
	HomeCapacity  int          `json:"homeCapacity" gorm:"not null"`
	SalonCapacity int          `json:"salonCapacity" gorm:"not null"`
	// MinLeadMinutes overrides the platform lead time when set.
	MinLeadMinutes *int         `json:"minLeadMinutes,omitempty"`
	Hours          DisplayHours `json:"hours" gorm:"type:text"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (Provider) TableName() string { return "providers" }

// CapacityFor returns how many guests the provider serves at once in mode.
// Zero means the mode is not offered.
func (p *Provider) CapacityFor(m Mode) int {
	switch m {
	case ModeHome:
		return p.HomeCapacity
	case ModeSalon:
		return p.SalonCapacity
	default:
		return 0
	}
}

func (p *Provider) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LeadTime returns the provider override or fallback.
func (p *Provider) LeadTime(fallback time.Duration) time.Duration {
	if p.MinLeadMinutes == nil {
		return fallback
	}
	return time.Duration(*p.MinLeadMinutes) * time.Minute
}

// Service is a priced catalog entry. Bookings snapshot its fields.
type Service struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	ProviderID  int64     `json:"providerId" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"not null"`
	Price       int64     `json:"price" gorm:"not null"`
	DurationMin int       `json:"durationMin" gorm:"not null"`
	IsActive    bool      `json:"isActive" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Service) TableName() string { return "provider_services" }

type HoursKind string

const (
	HoursStructured HoursKind = "structured"
	HoursFreeText   HoursKind = "free_text"
)

// DisplayHours is the public opening-hours blurb. It holds either a weekly
// table or free text, selected by Kind.
type DisplayHours struct {
	Kind   HoursKind  `json:"kind,omitempty"`
	Weekly []DayHours `json:"weekly,omitempty"`
	Text   string     `json:"text,omitempty"`
}

type DayHours struct {
	Day   time.Weekday `json:"day"`
	Open  string       `json:"open"`
	Close string       `json:"close"`
}

func StructuredHours(days ...DayHours) DisplayHours {
	return DisplayHours{Kind: HoursStructured, Weekly: days}
}

func FreeTextHours(text string) DisplayHours {
	return DisplayHours{Kind: HoursFreeText, Text: text}
}

func (h DisplayHours) Validate() error {
	switch h.Kind {
	case "":
		if len(h.Weekly) > 0 || h.Text != "" {
			return errors.New("hours kind is required")
		}
	case HoursStructured:
		if h.Text != "" {
			return errors.New("structured hours must not carry text")
		}
	case HoursFreeText:
		if len(h.Weekly) > 0 {
			return errors.New("free text hours must not carry a weekly table")
		}
	default:
		return fmt.Errorf("unknown hours kind %q", h.Kind)
	}
	return nil
}

func (h DisplayHours) Value() (driver.Value, error) {
	if h.Kind == "" {
		return "", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *DisplayHours) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = DisplayHours{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported hours column type %T", src)
	}
	if len(raw) == 0 {
		*h = DisplayHours{}
		return nil
	}
	return json.Unmarshal(raw, h)
}
