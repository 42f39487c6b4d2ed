package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates such as the expiry date.
const DateLayout = "2006-01-02"

type Frequency string

const (
	FrequencyOnceDaily      Frequency = "once_daily"
	FrequencyTwiceDaily     Frequency = "twice_daily"
	FrequencyThriceDaily    Frequency = "thrice_daily"
	FrequencyFourTimesDaily Frequency = "four_times_daily"
	FrequencyWeekly         Frequency = "weekly"
	FrequencyAsNeeded       Frequency = "as_needed"
	FrequencyCustom         Frequency = "custom"
)

// SlotCount returns the canonical number of dose slots, or -1 when any
// number is allowed.
func (f Frequency) SlotCount() int {
	switch f {
	case FrequencyOnceDaily, FrequencyWeekly:
		return 1
	case FrequencyTwiceDaily:
		return 2
	case FrequencyThriceDaily:
		return 3
	case FrequencyFourTimesDaily:
		return 4
	case FrequencyAsNeeded, FrequencyCustom:
		return -1
	default:
		return 0
	}
}

func (f Frequency) Valid() bool {
	return f.SlotCount() != 0
}

// IntervalDays is the distance between two scheduled days.
func (f Frequency) IntervalDays() int {
	if f == FrequencyWeekly {
		return 7
	}
	return 1
}

type FoodTiming string

const (
	FoodBefore  FoodTiming = "before"
	FoodAfter   FoodTiming = "after"
	FoodWith    FoodTiming = "with"
	FoodAnytime FoodTiming = "anytime"
)

func (f FoodTiming) Valid() bool {
	switch f {
	case FoodBefore, FoodAfter, FoodWith, FoodAnytime:
		return true
	}
	return false
}

// Medicine is one prescribed medicine and its schedule metadata.
type Medicine struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Dosage          string     `json:"dosage"`
	Frequency       Frequency  `json:"frequency"`
	TimeSlots       []string   `json:"timeSlots"`
	StockDays       int        `json:"stockDays"`
	ExpiryDate      string     `json:"expiryDate"`
	FoodTiming      FoodTiming `json:"foodTiming"`
	Instructions    string     `json:"instructions"`
	ElderlyUserID   string     `json:"elderlyUserId"`
	AdherenceStreak int        `json:"adherenceStreak"`
	LastTaken       *time.Time `json:"lastTaken,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Normalize trims free text and fills defaults before validation.
func (m *Medicine) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Dosage = strings.TrimSpace(m.Dosage)
	m.Instructions = strings.TrimSpace(m.Instructions)
	m.ExpiryDate = strings.TrimSpace(m.ExpiryDate)
	if m.FoodTiming == "" {
		m.FoodTiming = FoodAnytime
	}
	for i, s := range m.TimeSlots {
		m.TimeSlots[i] = strings.TrimSpace(s)
	}
}

// Validate checks the record invariants. The expiry date is only checked
// against today on creation; see ValidateNew.
func (m *Medicine) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: medicine name cannot be empty", ErrValidation)
	}
	if m.ElderlyUserID == "" {
		return fmt.Errorf("%w: medicine must belong to an elderly user", ErrValidation)
	}
	if !m.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrValidation, m.Frequency)
	}
	if !m.FoodTiming.Valid() {
		return fmt.Errorf("%w: unknown food timing %q", ErrValidation, m.FoodTiming)
	}
	if m.StockDays < 0 {
		return fmt.Errorf("%w: stock days cannot be negative", ErrValidation)
	}
	if m.AdherenceStreak < 0 {
		return fmt.Errorf("%w: adherence streak cannot be negative", ErrValidation)
	}

	seen := make(map[string]bool, len(m.TimeSlots))
	for _, s := range m.TimeSlots {
		if _, _, err := ParseSlot(s); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate time slot %s", ErrValidation, s)
		}
		seen[s] = true
	}
	if n := m.Frequency.SlotCount(); n > 0 && n != len(m.TimeSlots) {
		return fmt.Errorf("%w: frequency %s needs %d time slots, got %d", ErrValidation, m.Frequency, n, len(m.TimeSlots))
	}

	if m.ExpiryDate == "" {
		return fmt.Errorf("%w: expiry date is required", ErrValidation)
	}
	if _, err := time.Parse(DateLayout, m.ExpiryDate); err != nil {
		return fmt.Errorf("%w: expiry date must be YYYY-MM-DD", ErrValidation)
	}
	return nil
}

// ValidateNew validates a medicine about to be created. It additionally
// rejects an expiry date earlier than today in now's location.
func (m *Medicine) ValidateNew(now time.Time) error {
	if err := m.Validate(); err != nil {
		return err
	}
	expiry, _ := time.ParseInLocation(DateLayout, m.ExpiryDate, now.Location())
	today := StartOfDay(now)
	if expiry.Before(today) {
		return fmt.Errorf("%w: expiry date %s is in the past", ErrValidation, m.ExpiryDate)
	}
	return nil
}

// Expiry returns the expiry date at midnight in loc.
func (m *Medicine) Expiry(loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout, m.ExpiryDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysUntilExpiry counts whole days from today until the expiry date.
// Zero or negative means expired.
func (m *Medicine) DaysUntilExpiry(now time.Time) int {
	expiry, ok := m.Expiry(now.Location())
	if !ok {
		return 0
	}
	return int(expiry.Sub(StartOfDay(now)).Hours() / 24)
}

// HasSchedule reports whether automatic reminders apply to this medicine.
func (m *Medicine) HasSchedule() bool {
	return len(m.TimeSlots) > 0
}

// IsLowStock reports whether the remaining supply is at or under threshold days.
func (m *Medicine) IsLowStock(threshold int) bool {
	return m.StockDays <= threshold
}

// FoodNote returns a short English hint about meals, empty for anytime.
func (m *Medicine) FoodNote() string {
	switch m.FoodTiming {
	case FoodBefore:
		return "Take before food"
	case FoodAfter:
		return "Take after food"
	case FoodWith:
		return "Take with food"
	default:
		return ""
	}
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
