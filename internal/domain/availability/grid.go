package availability

import (
	"iter"
	"sort"
	"time"
)

// block is a merged stretch of open hours on one local day. Its grid is
// anchored at start and stepped by size.
type block struct {
	start time.Time
	end   time.Time
	size  time.Duration
}

type minuteRange struct {
	start, end, size int
}

// dayBlocks unions the day's rules. Overlapping rules collapse into one block
// that keeps the slot size of the earliest-starting rule, so no grid slot is
// produced twice. Rules that merely touch stay separate and keep their grid.
func dayBlocks(day time.Time, rules []Rule) []block {
	ranges := make([]minuteRange, 0, len(rules))
	for _, r := range rules {
		start, err := clockMinutes(r.StartTime)
		if err != nil {
			continue
		}
		end, err := clockMinutes(r.EndTime)
		if err != nil || start >= end || r.SlotSizeMin <= 0 {
			continue
		}
		ranges = append(ranges, minuteRange{start: start, end: end, size: r.SlotSizeMin})
	}
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].start != ranges[j].start {
			return ranges[i].start < ranges[j].start
		}
		return ranges[i].size < ranges[j].size
	})

	merged := []minuteRange{ranges[0]}
	for _, cur := range ranges[1:] {
		last := &merged[len(merged)-1]
		if cur.start < last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}

	y, m, d := day.Date()
	loc := day.Location()
	out := make([]block, 0, len(merged))
	for _, r := range merged {
		out = append(out, block{
			start: time.Date(y, m, d, 0, r.start, 0, 0, loc),
			end:   time.Date(y, m, d, 0, r.end, 0, 0, loc),
			size:  time.Duration(r.size) * time.Minute,
		})
	}
	return out
}

// gridSlots lazily walks every local day in [first, last], yielding grid slots
// that do not intersect any taken interval. taken must be sorted by start.
func gridSlots(first, last time.Time, rules map[time.Weekday][]Rule, taken []Interval) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			for _, b := range dayBlocks(day, rules[day.Weekday()]) {
				for start := b.start; !start.Add(b.size).After(b.end); start = start.Add(b.size) {
					s := Slot{Start: start, End: start.Add(b.size)}
					if isTaken(s, taken) {
						continue
					}
					if !yield(s) {
						return
					}
				}
			}
		}
	}
}

func isTaken(s Slot, taken []Interval) bool {
	for _, t := range taken {
		if !t.Start.Before(s.End) {
			return false
		}
		if s.Overlaps(t.Start, t.End) {
			return true
		}
	}
	return false
}

// localDate truncates t to midnight of its calendar day in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
