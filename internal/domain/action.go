package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the user's response to a delivered reminder. Exactly one of
// Taken, Snoozed, Skipped implements it.
type Action interface {
	Medicine() string
	Kind() string
}

type Taken struct {
	MedicineID string
}

type Snoozed struct {
	MedicineID string
	Minutes    int
}

type Skipped struct {
	MedicineID string
}

func (a Taken) Medicine() string   { return a.MedicineID }
func (a Snoozed) Medicine() string { return a.MedicineID }
func (a Skipped) Medicine() string { return a.MedicineID }

func (Taken) Kind() string   { return ActionTaken }
func (Snoozed) Kind() string { return ActionSnooze }
func (Skipped) Kind() string { return ActionSkip }

// Wire names of notification actions.
const (
	ActionTaken       = "taken"
	ActionSnooze      = "snooze"
	ActionSkip        = "skip"
	ActionAcknowledge = "acknowledge"
	ActionReplace     = "replace"
)

// MaxSnoozeMinutes bounds a single snooze; repeated snoozes are not capped.
const MaxSnoozeMinutes = 24 * 60

// ParseAction validates a raw action name and converts it to its variant.
// minutes is only read for snooze; zero selects defaultMinutes.
func ParseAction(name, medicineID string, minutes, defaultMinutes int) (Action, error) {
	if strings.TrimSpace(medicineID) == "" {
		return nil, fmt.Errorf("%w: medicine id is required", ErrValidation)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ActionTaken:
		return Taken{MedicineID: medicineID}, nil
	case ActionSkip, "skipped":
		return Skipped{MedicineID: medicineID}, nil
	case ActionSnooze, "snoozed":
		if minutes == 0 {
			minutes = defaultMinutes
		}
		if minutes <= 0 || minutes > MaxSnoozeMinutes {
			return nil, fmt.Errorf("%w: snooze minutes must be between 1 and %d", ErrValidation, MaxSnoozeMinutes)
		}
		return Snoozed{MedicineID: medicineID, Minutes: minutes}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, name)
	}
}

// CallbackData encodes a reminder action for an inline keyboard button:
// act:<reminderID>:<action>[:<minutes>].
func CallbackData(reminderID, action string, minutes int) string {
	if action == ActionSnooze && minutes > 0 {
		return "act:" + reminderID + ":" + action + ":" + strconv.Itoa(minutes)
	}
	return "act:" + reminderID + ":" + action
}

// ParseCallbackData is the inverse of CallbackData.
func ParseCallbackData(data string) (reminderID, action string, minutes int, err error) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[0] != "act" || parts[1] == "" {
		return "", "", 0, fmt.Errorf("%w: malformed callback %q", ErrValidation, data)
	}
	if len(parts) > 3 {
		minutes, err = strconv.Atoi(parts[3])
		if err != nil {
			return "", "", 0, fmt.Errorf("%w: bad snooze minutes in %q", ErrValidation, data)
		}
	}
	return parts[1], parts[2], minutes, nil
}
