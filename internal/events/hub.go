// Package events fans out state changes to open UI sessions so in-app state
// follows actions taken in background channels.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	Notification    Type = "NOTIFICATION"
	MedicineTaken   Type = "MEDICINE_TAKEN"
	MedicineSnoozed Type = "MEDICINE_SNOOZED"
	MedicineSkipped Type = "MEDICINE_SKIPPED"
	ReminderExpired Type = "REMINDER_EXPIRED"
	MedicineChanged Type = "MEDICINE_CHANGED"
	EmergencyAlert  Type = "EMERGENCY_ALERT"
)

// Event is broadcast to every session watching UserID (the elderly owner).
type Event struct {
	Type          Type      `json:"type"`
	UserID        string    `json:"userId"`
	MedicineID    string    `json:"medicineId,omitempty"`
	ReminderID    string    `json:"reminderId,omitempty"`
	SnoozeMinutes int       `json:"snoozeMinutes,omitempty"`
	Title         string    `json:"title,omitempty"`
	Body          string    `json:"body,omitempty"`
	Actions       []string  `json:"actions,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(e Event)
}

type subscriber struct {
	ch    chan Event
	users map[string]bool
}

// Hub delivers events without blocking publishers; a subscriber that cannot
// keep up loses events.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]*subscriber)}
}

// Subscribe registers interest in the given users' events.
func (h *Hub) Subscribe(buffer int, userIDs ...string) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{ch: make(chan Event, buffer), users: make(map[string]bool, len(userIDs))}
	for _, id := range userIDs {
		s.users[id] = true
	}
	h.mu.Lock()
	h.subs[s.ch] = s
	h.mu.Unlock()
	return s.ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.users[e.UserID] {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of open sessions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
