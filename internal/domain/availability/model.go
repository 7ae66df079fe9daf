package availability

import (
	"fmt"
	"time"
)

// Rule is one recurring weekly block of open hours, in provider-local time.
type Rule struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	ProviderID  int64     `json:"providerId" gorm:"not null;index"`
	DayOfWeek   int       `json:"dayOfWeek" gorm:"not null"`
	StartTime   string    `json:"startTime" gorm:"type:varchar(5);not null"`
	EndTime     string    `json:"endTime" gorm:"type:varchar(5);not null"`
	SlotSizeMin int       `json:"slotSizeMin" gorm:"not null"`
	IsActive    bool      `json:"isActive" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Rule) TableName() string { return "availability_rules" }

// BlockedTime is an absolute interval during which nothing may be offered.
type BlockedTime struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ProviderID int64     `json:"providerId" gorm:"not null;index"`
	StartAt    time.Time `json:"startAt" gorm:"not null;index"`
	EndAt      time.Time `json:"endAt" gorm:"not null"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (BlockedTime) TableName() string { return "blocked_times" }

// Slot is a half-open interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Interval is an occupied range, such as a live booking.
type Interval struct {
	Start time.Time
	End   time.Time
}

// clockMinutes parses "HH:MM" into minutes after midnight.
func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (r Rule) validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be within [0,6]")
	}
	if r.SlotSizeMin <= 0 {
		return fmt.Errorf("slot_size_min must be > 0")
	}
	start, err := clockMinutes(r.StartTime)
	if err != nil {
		return err
	}
	end, err := clockMinutes(r.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}
