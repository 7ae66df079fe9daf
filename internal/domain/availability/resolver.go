package availability

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"salonbook/internal/domain/provider"
	"salonbook/internal/domain/settings"
	"salonbook/internal/pkg/apperr"
)

// MaxRangeDays bounds a single availability query.
const MaxRangeDays = 62

// SlotPolicy decides which intervals a reservation may request.
type SlotPolicy string

const (
	// PolicyExact accepts only intervals equal to an emitted grid slot.
	PolicyExact SlotPolicy = "exact"
	// PolicyAligned requires a grid-aligned start; the end may span several
	// slots inside the same block (multi-service combos).
	PolicyAligned SlotPolicy = "aligned"
	// PolicyFree accepts any interval inside open hours.
	PolicyFree SlotPolicy = "free"
)

var (
	ErrInvalidRange    = apperr.New(apperr.Validation, "invalid availability range")
	ErrInvalidInterval = apperr.New(apperr.Validation, "interval start must be before end")
	ErrOutsideHours    = apperr.New(apperr.Validation, "interval is outside the provider's open hours")
	ErrNotOnGrid       = apperr.New(apperr.Validation, "interval does not match the provider's slot grid")
	ErrBlocked         = apperr.New(apperr.Conflict, "interval overlaps a provider blackout")
)

type ProviderLookup interface {
	GetByID(ctx context.Context, id int64) (*provider.Provider, error)
}

// BusyLister returns intervals held by live (non-terminal) bookings.
type BusyLister interface {
	ListBusy(ctx context.Context, providerID int64, from, to time.Time) ([]Interval, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Resolver struct {
	providers ProviderLookup
	rules     *RuleRepository
	blocked   *BlockedRepository
	busy      BusyLister
	settings  SettingsReader
	cache     SlotCache
	group     singleflight.Group
	log       *zap.Logger
	now       func() time.Time
}

type ResolverOption func(*Resolver)

// WithCache enables the shared slot cache.
func WithCache(c SlotCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(
	providers ProviderLookup,
	rules *RuleRepository,
	blocked *BlockedRepository,
	busy BusyLister,
	settings SettingsReader,
	log *zap.Logger,
	opts ...ResolverOption,
) *Resolver {
	r := &Resolver{
		providers: providers,
		rules:     rules,
		blocked:   blocked,
		busy:      busy,
		settings:  settings,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ComputeOpenSlots returns the open slots of every provider-local day from
// the date of from through the date of to, in start order. The sequence can
// be ranged over repeatedly. Results may be slightly stale; reservations are
// checked again at commit time.
func (r *Resolver) ComputeOpenSlots(ctx context.Context, providerID int64, from, to time.Time) (iter.Seq[Slot], error) {
	p, err := r.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := p.Location()
	return r.openSlots(ctx, p, localDate(from, loc), localDate(to, loc))
}

// ComputeOpenSlotsOnDates is ComputeOpenSlots for YYYY-MM-DD bounds, which
// are read as calendar days in the provider's timezone.
func (r *Resolver) ComputeOpenSlotsOnDates(ctx context.Context, providerID int64, from, to string) (iter.Seq[Slot], error) {
	p, err := r.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := p.Location()
	first, err := time.ParseInLocation(time.DateOnly, from, loc)
	if err != nil {
		return nil, apperr.Withf(ErrInvalidRange, "from must be YYYY-MM-DD")
	}
	last, err := time.ParseInLocation(time.DateOnly, to, loc)
	if err != nil {
		return nil, apperr.Withf(ErrInvalidRange, "to must be YYYY-MM-DD")
	}
	return r.openSlots(ctx, p, first, last)
}

func (r *Resolver) openSlots(ctx context.Context, p *provider.Provider, first, last time.Time) (iter.Seq[Slot], error) {
	providerID := p.ID
	if last.Before(first) {
		return nil, apperr.Withf(ErrInvalidRange, "to must not be before from")
	}
	if last.Sub(first) > MaxRangeDays*24*time.Hour {
		return nil, apperr.Withf(ErrInvalidRange, "range must not exceed %d days", MaxRangeDays)
	}

	slots, err := r.candidates(ctx, providerID, first, last)
	if err != nil {
		return nil, err
	}

	platform, err := r.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	floor := r.now().Add(p.LeadTime(platform.MinLeadTime()))

	return func(yield func(Slot) bool) {
		for _, s := range slots {
			if s.Start.Before(floor) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}

// candidates returns the grid minus blackouts and live bookings, before the
// lead-time cut, which depends on the clock and so is never cached.
func (r *Resolver) candidates(ctx context.Context, providerID int64, first, last time.Time) ([]Slot, error) {
	if r.cache == nil {
		return r.compute(ctx, providerID, first, last)
	}

	rangeKey := first.Format("20060102") + "-" + last.Format("20060102")
	version, err := r.cache.Version(ctx, providerID)
	if err != nil {
		r.log.Warn("availability cache version lookup failed", zap.Int64("provider_id", providerID), zap.Error(err))
		return r.compute(ctx, providerID, first, last)
	}
	if cached, ok, err := r.cache.Get(ctx, providerID, version, rangeKey); err != nil {
		r.log.Warn("availability cache read failed", zap.Int64("provider_id", providerID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	flightKey := fmt.Sprintf("%d:%d:%s", providerID, version, rangeKey)
	v, err, _ := r.group.Do(flightKey, func() (any, error) {
		slots, err := r.compute(ctx, providerID, first, last)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(ctx, providerID, version, rangeKey, slots); err != nil {
			r.log.Warn("availability cache write failed", zap.Int64("provider_id", providerID), zap.Error(err))
		}
		return slots, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Slot), nil
}

func (r *Resolver) compute(ctx context.Context, providerID int64, first, last time.Time) ([]Slot, error) {
	rules, err := r.rules.ListActive(ctx, providerID)
	if err != nil {
		return nil, err
	}
	windowStart, windowEnd := first, last.AddDate(0, 0, 1)

	blocked, err := r.blocked.ListOverlapping(ctx, providerID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	busy, err := r.busy.ListBusy(ctx, providerID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	taken := make([]Interval, 0, len(blocked)+len(busy))
	for _, b := range blocked {
		taken = append(taken, Interval{Start: b.StartAt, End: b.EndAt})
	}
	taken = append(taken, busy...)
	sort.Slice(taken, func(i, j int) bool { return taken[i].Start.Before(taken[j].Start) })

	slots := slices.Collect(gridSlots(first, last, rules, taken))
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// CheckInterval reports whether [start, end) is reservable for p under
// policy. Live bookings and lead time are the caller's concern.
func (r *Resolver) CheckInterval(ctx context.Context, p *provider.Provider, start, end time.Time, policy SlotPolicy) error {
	if !start.Before(end) {
		return ErrInvalidInterval
	}
	rules, err := r.rules.ListActive(ctx, p.ID)
	if err != nil {
		return err
	}

	// The block holding start anchors the grid; touching blocks after it
	// extend how far the interval may run.
	day := localDate(start, p.Location())
	blocks := dayBlocks(day, rules[day.Weekday()])
	var host *block
	reach := start
	for i := range blocks {
		if host == nil {
			if !start.Before(blocks[i].start) && start.Before(blocks[i].end) {
				host = &blocks[i]
				reach = blocks[i].end
			}
			continue
		}
		if !end.After(reach) || !blocks[i].start.Equal(reach) {
			break
		}
		reach = blocks[i].end
	}
	if host == nil || end.After(reach) {
		return ErrOutsideHours
	}

	offset := start.Sub(host.start) % host.size
	switch policy {
	case PolicyExact:
		if offset != 0 || end.Sub(start) != host.size {
			return ErrNotOnGrid
		}
	case PolicyFree:
	default:
		if offset != 0 {
			return ErrNotOnGrid
		}
	}

	blocked, err := r.blocked.ListOverlapping(ctx, p.ID, start, end)
	if err != nil {
		return err
	}
	if len(blocked) > 0 {
		return ErrBlocked
	}
	return nil
}

// Invalidate drops cached grids for a provider. Failures only cost
// staleness, so they are logged.
func (r *Resolver) Invalidate(ctx context.Context, providerID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, providerID); err != nil {
		r.log.Warn("availability cache invalidate failed", zap.Int64("provider_id", providerID), zap.Error(err))
	}
}
