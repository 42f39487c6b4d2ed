package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmergencyContact is reached when the owner triggers an SOS alert.
type EmergencyContact struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Relationship   string    `json:"relationship"`
	PhoneNumber    string    `json:"phoneNumber"`
	Email          string    `json:"email,omitempty"`
	IsPrimary      bool      `json:"isPrimary"`
	TelegramChatID int64     `json:"telegramChatId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (c *EmergencyContact) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	if c.Name == "" {
		return fmt.Errorf("%w: contact name cannot be empty", ErrValidation)
	}
	if c.PhoneNumber == "" {
		return fmt.Errorf("%w: contact phone number is required", ErrValidation)
	}
	if !validPhone(c.PhoneNumber) {
		return fmt.Errorf("%w: invalid phone number %q", ErrValidation, c.PhoneNumber)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, c.Email)
	}
	return nil
}

func validPhone(p string) bool {
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// MapsURL links the location on Google Maps.
func (l Location) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%g,%g", l.Latitude, l.Longitude)
}

type EmergencyAlert struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	Location          *Location   `json:"location,omitempty"`
	Message           string      `json:"message"`
	Timestamp         time.Time   `json:"timestamp"`
	Status            AlertStatus `json:"status"`
	RespondedContacts []string    `json:"respondedContacts"`
}
