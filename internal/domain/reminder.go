package domain

import "time"

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderDelivered ReminderStatus = "delivered"
	ReminderTaken     ReminderStatus = "taken"
	ReminderSkipped   ReminderStatus = "skipped"
	ReminderSnoozed   ReminderStatus = "snoozed"
	ReminderExpired   ReminderStatus = "expired"
	ReminderCancelled ReminderStatus = "cancelled" // superseded by a medicine edit or delete
)

// Open reports whether the user can still act on the reminder.
func (s ReminderStatus) Open() bool {
	return s == ReminderPending || s == ReminderDelivered
}

// Timing is the stage of a two-stage reminder.
type Timing string

const (
	TimingEarly Timing = "early"
	TimingNow   Timing = "now"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelVoice Channel = "voice"
)

// Reminder is one scheduled firing for a medicine slot on a given day.
// It lives only in the scheduler and is not persisted.
type Reminder struct {
	ID         string         `json:"id"`
	MedicineID string         `json:"medicineId"`
	UserID     string         `json:"userId"`
	Slot       string         `json:"slot,omitempty"`
	FireAt     time.Time      `json:"fireAt"`
	Channels   []Channel      `json:"channels"`
	Status     ReminderStatus `json:"status"`

	// RootID is the reminder a snooze chain started from; equal to ID for
	// regular reminders.
	RootID      string `json:"rootId"`
	SnoozeCount int    `json:"snoozeCount"`

	CreatedAt   time.Time  `json:"createdAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// IsSnooze reports whether the reminder was produced by a snooze action.
func (r *Reminder) IsSnooze() bool {
	return r.SnoozeCount > 0
}

func (r *Reminder) HasChannel(c Channel) bool {
	for _, ch := range r.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// DoseLog is the persisted history of what happened to a reminder.
type DoseLog struct {
	ID            string         `json:"id"`
	MedicineID    string         `json:"medicineId"`
	UserID        string         `json:"userId"`
	ReminderID    string         `json:"reminderId,omitempty"`
	Action        ReminderStatus `json:"action"`
	At            time.Time      `json:"at"`
	SnoozeMinutes int            `json:"snoozeMinutes,omitempty"`
}
