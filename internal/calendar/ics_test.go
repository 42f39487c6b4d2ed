package calendar

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/medremind/internal/domain"
)

func metformin() *domain.Medicine {
	return &domain.Medicine{
		ID:         "med-1",
		Name:       "Metformin",
		Dosage:     "500mg",
		Frequency:  domain.FrequencyTwiceDaily,
		TimeSlots:  []string{"20:00", "08:00"},
		ExpiryDate: "2027-06-30",
		FoodTiming: domain.FoodAfter,
		CreatedAt:  time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC),
	}
}

func TestMedicineCalendar(t *testing.T) {
	now := time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)
	data, err := Encode(Medicine(metformin(), time.UTC, now))
	require.NoError(t, err)

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	first := events[0]
	uid, err := first.Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "med-1-0800@medremind", uid)

	start, err := first.DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), start)

	rule := first.Props.Get(ical.PropRecurrenceRule)
	require.NotNil(t, rule)
	assert.Equal(t, "FREQ=DAILY;UNTIL=20270630T235959Z", rule.Value)

	summary, _ := first.Props.Text(ical.PropSummary)
	assert.Equal(t, "💊 Metformin 500mg", summary)
	desc, _ := first.Props.Text(ical.PropDescription)
	assert.Equal(t, "Take after food", desc)

	require.Len(t, first.Children, 1)
	assert.Equal(t, ical.CompAlarm, first.Children[0].Name)
	assert.Equal(t, "-PT15M", first.Children[0].Props.Get(ical.PropTrigger).Value)
}

func TestWeeklyAndSlots(t *testing.T) {
	m := metformin()
	m.Frequency = domain.FrequencyWeekly
	m.TimeSlots = []string{"09:00"}
	now := time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)

	slots := Slots(m, time.UTC, now)
	require.Len(t, slots, 1)
	cal, ok := slots["med-1-0900@medremind"]
	require.True(t, ok)

	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20270630T235959Z", events[0].Props.Get(ical.PropRecurrenceRule).Value)
}

func TestEvents_TimezoneAndUntil(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	m := metformin()
	m.TimeSlots = []string{"08:00"}

	events := Events(m, ist, time.Now())
	require.Len(t, events, 1)

	until := events[0].Props.Get(ical.PropRecurrenceRule).Value
	// End of 30 June in IST is 18:29:59 UTC.
	assert.Equal(t, "FREQ=DAILY;UNTIL=20270630T182959Z", until)
}
