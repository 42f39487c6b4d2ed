// Package calendar renders medicine schedules as iCalendar data.
package calendar

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/medremind/internal/domain"
)

const (
	ProductID = "-//MedRemind//Medicine Schedule//EN"
	// AlarmBefore matches the early reminder.
	AlarmBefore = 15 * time.Minute
	doseLength  = 15 * time.Minute
)

// UID identifies the event of one dose slot.
func UID(medicineID, slot string) string {
	return fmt.Sprintf("%s-%s@medremind", medicineID, strings.ReplaceAll(slot, ":", ""))
}

// Events builds one recurring VEVENT per dose slot. Recurrence is daily, or
// weekly on the medicine's start weekday, until the expiry date.
func Events(m *domain.Medicine, loc *time.Location, now time.Time) []*ical.Event {
	if loc == nil {
		loc = time.UTC
	}
	start := m.CreatedAt
	if start.IsZero() {
		start = now
	}
	day := domain.StartOfDay(start.In(loc))

	rule := "FREQ=DAILY"
	if m.Frequency == domain.FrequencyWeekly {
		rule = "FREQ=WEEKLY"
	}
	if expiry, ok := m.Expiry(loc); ok {
		until := expiry.Add(24*time.Hour - time.Second).UTC()
		rule += ";UNTIL=" + until.Format("20060102T150405Z")
	}

	slots := append([]string(nil), m.TimeSlots...)
	sort.Strings(slots)

	events := make([]*ical.Event, 0, len(slots))
	for _, slot := range slots {
		at, err := domain.SlotAt(day, slot)
		if err != nil {
			continue
		}

		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, UID(m.ID, slot))
		ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, at)
		ev.Props.SetDateTime(ical.PropDateTimeEnd, at.Add(doseLength))
		ev.Props.SetText(ical.PropSummary, fmt.Sprintf("💊 %s %s", m.Name, m.Dosage))
		if desc := description(m); desc != "" {
			ev.Props.SetText(ical.PropDescription, desc)
		}

		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = rule
		ev.Props.Set(rrule)

		ev.Children = append(ev.Children, alarm(m))
		events = append(events, ev)
	}
	return events
}

func description(m *domain.Medicine) string {
	var parts []string
	if note := m.FoodNote(); note != "" {
		parts = append(parts, note)
	}
	if m.Instructions != "" {
		parts = append(parts, m.Instructions)
	}
	return strings.Join(parts, "\n")
}

func alarm(m *domain.Medicine) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	a.Props.SetText(ical.PropAction, "DISPLAY")
	a.Props.SetText(ical.PropDescription, fmt.Sprintf("Reminder: %s in %d minutes", m.Name, int(AlarmBefore/time.Minute)))
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "-PT15M"
	a.Props.Set(trigger)
	return a
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	return cal
}

// Medicine returns a calendar with every slot of a medicine.
func Medicine(m *domain.Medicine, loc *time.Location, now time.Time) *ical.Calendar {
	cal := newCalendar()
	for _, ev := range Events(m, loc, now) {
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// Slots returns one single-event calendar per slot keyed by UID, as CalDAV
// stores one event per resource.
func Slots(m *domain.Medicine, loc *time.Location, now time.Time) map[string]*ical.Calendar {
	out := make(map[string]*ical.Calendar, len(m.TimeSlots))
	for _, ev := range Events(m, loc, now) {
		cal := newCalendar()
		cal.Children = append(cal.Children, ev.Component)
		uid, _ := ev.Props.Text(ical.PropUID)
		out[uid] = cal
	}
	return out
}

// Encode serializes a calendar.
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
