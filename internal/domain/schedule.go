package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSlot parses a "HH:MM" dose slot.
func ParseSlot(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time slot %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time slot %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time slot %q", s)
	}
	return hour, minute, nil
}

// SlotAt returns the instant of slot s on the calendar day of day.
func SlotAt(day time.Time, s string) (time.Time, error) {
	h, m, err := ParseSlot(s)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), nil
}

// FormatSlot renders a slot for display, e.g. "08:00" -> "8:00 AM".
func FormatSlot(s string) string {
	h, m, err := ParseSlot(s)
	if err != nil {
		return s
	}
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("3:04 PM")
}
