package scheduler

import (
	"sort"
	"time"

	"github.com/tazhate/medremind/internal/domain"
)

// NextFireTime returns the first slot instant strictly after now, or the
// earliest slot tomorrow when none remain today. It reports false for an
// empty (or entirely invalid) slot list; nothing should be armed then.
func NextFireTime(slots []string, now time.Time) (time.Time, bool) {
	_, at, ok := NextSlot(slots, now)
	return at, ok
}

// NextSlot is NextFireTime that also returns which slot fires.
func NextSlot(slots []string, now time.Time) (string, time.Time, bool) {
	ordered := orderedSlots(slots)
	if len(ordered) == 0 {
		return "", time.Time{}, false
	}
	for _, s := range ordered {
		at, _ := domain.SlotAt(now, s)
		if at.After(now) {
			return s, at, true
		}
	}
	tomorrow := domain.StartOfDay(now).AddDate(0, 0, 1)
	at, _ := domain.SlotAt(tomorrow, ordered[0])
	return ordered[0], at, true
}

// NextWeeklySlot is NextSlot restricted to one weekday.
func NextWeeklySlot(slots []string, now time.Time, weekday time.Weekday) (string, time.Time, bool) {
	ordered := orderedSlots(slots)
	if len(ordered) == 0 {
		return "", time.Time{}, false
	}
	day := domain.StartOfDay(now)
	for i := 0; i <= 7; i++ {
		d := day.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		for _, s := range ordered {
			at, _ := domain.SlotAt(d, s)
			if at.After(now) {
				return s, at, true
			}
		}
	}
	// Unreachable: day+7 always has the weekday and every slot after now.
	return "", time.Time{}, false
}

// NextOccurrence picks the right rule for the medicine's frequency. Weekly
// medicines repeat on the weekday they were created.
func NextOccurrence(m *domain.Medicine, now time.Time) (string, time.Time, bool) {
	if m.Frequency == domain.FrequencyWeekly && !m.CreatedAt.IsZero() {
		return NextWeeklySlot(m.TimeSlots, now, m.CreatedAt.In(now.Location()).Weekday())
	}
	return NextSlot(m.TimeSlots, now)
}

// orderedSlots drops unparsable slots and sorts the rest chronologically.
// "HH:MM" sorts correctly as a string.
func orderedSlots(slots []string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, _, err := domain.ParseSlot(s); err == nil {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
