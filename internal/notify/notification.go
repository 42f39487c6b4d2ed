package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tazhate/medremind/internal/domain"
)

const Icon = "/icon.svg"

type Kind string

const (
	KindReminder  Kind = "reminder"
	KindExpiry    Kind = "expiry"
	KindStock     Kind = "stock"
	KindMissed    Kind = "missed"
	KindEmergency Kind = "emergency"
)

// Action is a button on a notification. TargetID is the reminder id for
// dose actions and the medicine id for expiry actions.
type Action struct {
	ID       string `json:"action"`
	Title    string `json:"title"`
	TargetID string `json:"targetId"`
	Minutes  int    `json:"minutes,omitempty"`
}

type Notification struct {
	Kind               Kind     `json:"kind"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions,omitempty"`
	UserID             string   `json:"userId"`
	MedicineID         string   `json:"medicineId,omitempty"`
	ReminderID         string   `json:"reminderId,omitempty"`
}

// ActionIDs lists the action names, for the broadcast payload.
func (n Notification) ActionIDs() []string {
	out := make([]string, len(n.Actions))
	for i, a := range n.Actions {
		out[i] = a.ID
	}
	return out
}

// ReminderNotification renders a dose reminder. The early stage names the
// minutes actually left, which is less than the warning window when the
// early stage was clamped.
func ReminderNotification(m *domain.Medicine, r domain.Reminder, timing domain.Timing, now time.Time, snoozeMinutes int) Notification {
	title := fmt.Sprintf("Time to take %s!", m.Name)
	if timing == domain.TimingEarly {
		left := int(math.Ceil(r.FireAt.Sub(now).Minutes()))
		if left < 1 {
			left = 1
		}
		unit := "minutes"
		if left == 1 {
			unit = "minute"
		}
		title = fmt.Sprintf("Reminder: %s in %d %s", m.Name, left, unit)
	}

	body := fmt.Sprintf("%s - Don't forget to take your medicine", m.Dosage)
	if note := m.FoodNote(); note != "" {
		body += "\n" + note
	}
	if m.Instructions != "" {
		body += "\n" + m.Instructions
	}

	actions := []Action{{ID: domain.ActionTaken, Title: "✅ Taken", TargetID: r.ID}}
	if !r.IsSnooze() {
		actions = append(actions, Action{
			ID:       domain.ActionSnooze,
			Title:    fmt.Sprintf("⏰ Snooze %dmin", snoozeMinutes),
			TargetID: r.ID,
			Minutes:  snoozeMinutes,
		})
	}
	actions = append(actions, Action{ID: domain.ActionSkip, Title: "❌ Skip", TargetID: r.ID})

	return Notification{
		Kind:               KindReminder,
		Title:              title,
		Body:               body,
		Icon:               Icon,
		Badge:              Icon,
		Tag:                "medicine-" + m.ID,
		RequireInteraction: true,
		Actions:            actions,
		UserID:             m.ElderlyUserID,
		MedicineID:         m.ID,
		ReminderID:         r.ID,
	}
}

// ExpiryNotification warns about an expired or soon expiring medicine.
func ExpiryNotification(m *domain.Medicine, now time.Time) Notification {
	days := m.DaysUntilExpiry(now)
	body := fmt.Sprintf("%s has expired. Please replace it immediately.", m.Name)
	if days > 0 {
		body = fmt.Sprintf("%s expires in %d %s.", m.Name, days, plural(days, "day"))
	}
	return Notification{
		Kind:               KindExpiry,
		Title:              fmt.Sprintf("⚠️ %s expiring soon!", m.Name),
		Body:               body,
		Icon:               Icon,
		Badge:              Icon,
		Tag:                "expiry-" + m.ID,
		RequireInteraction: true,
		Actions: []Action{
			{ID: domain.ActionAcknowledge, Title: "✅ Acknowledged", TargetID: m.ID},
			{ID: domain.ActionReplace, Title: "🛒 Order Replacement", TargetID: m.ID},
		},
		UserID:     m.ElderlyUserID,
		MedicineID: m.ID,
	}
}

func StockNotification(m *domain.Medicine) Notification {
	return Notification{
		Kind:       KindStock,
		Title:      fmt.Sprintf("💊 %s running low", m.Name),
		Body:       fmt.Sprintf("Only %d %s of %s left. Time to buy more.", m.StockDays, plural(m.StockDays, "day"), m.Name),
		Icon:       Icon,
		Badge:      Icon,
		Tag:        "stock-" + m.ID,
		Actions:    []Action{{ID: domain.ActionReplace, Title: "🛒 Order Replacement", TargetID: m.ID}},
		UserID:     m.ElderlyUserID,
		MedicineID: m.ID,
	}
}

// MissedNotification tells caretakers a reminder went unanswered.
func MissedNotification(m *domain.Medicine, r domain.Reminder, elderName string) Notification {
	return Notification{
		Kind:       KindMissed,
		Title:      fmt.Sprintf("❗ %s missed %s", elderName, m.Name),
		Body:       fmt.Sprintf("The %s dose (%s) was not confirmed.", domain.FormatSlot(r.Slot), m.Dosage),
		Icon:       Icon,
		Badge:      Icon,
		Tag:        "missed-" + r.ID,
		UserID:     m.ElderlyUserID,
		MedicineID: m.ID,
		ReminderID: r.ID,
	}
}

// EmergencyNotification confirms to the user that contacts were alerted.
func EmergencyNotification(userID string, contacts []domain.EmergencyContact) Notification {
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.Name
	}
	return Notification{
		Kind:               KindEmergency,
		Title:              "🆘 Emergency Alert Sent!",
		Body:               fmt.Sprintf("Emergency contacts (%s) have been notified of your emergency.", strings.Join(names, ", ")),
		Icon:               Icon,
		Badge:              Icon,
		Tag:                "emergency-alert",
		RequireInteraction: true,
		UserID:             userID,
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
