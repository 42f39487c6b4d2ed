package domain

import (
	"fmt"
	"strings"
	"time"
)

type UserRole string

const (
	RoleElderly   UserRole = "elderly"
	RoleCaretaker UserRole = "caretaker"
)

// Permission mirrors the browser notification permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type VoiceLanguage string

const (
	VoiceHindi   VoiceLanguage = "hi-IN"
	VoiceEnglish VoiceLanguage = "en-IN"
)

type VoiceSettings struct {
	Enabled       bool          `json:"enabled"`
	Language      VoiceLanguage `json:"language"`
	EmergencyOnly bool          `json:"emergencyOnly"`
	QuietStart    string        `json:"quietStart"` // "HH:MM", empty disables quiet hours
	QuietEnd      string        `json:"quietEnd"`
}

// DefaultVoiceSettings are applied to new elderly users.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Enabled:    true,
		Language:   VoiceHindi,
		QuietStart: "22:00",
		QuietEnd:   "06:00",
	}
}

// InQuietHours reports whether t falls in the quiet window. The window may
// wrap past midnight.
func (v VoiceSettings) InQuietHours(t time.Time) bool {
	if v.QuietStart == "" || v.QuietEnd == "" {
		return false
	}
	sh, sm, err1 := ParseSlot(v.QuietStart)
	eh, em, err2 := ParseSlot(v.QuietEnd)
	if err1 != nil || err2 != nil {
		return false
	}
	start, end := sh*60+sm, eh*60+em
	cur := t.Hour()*60 + t.Minute()
	if start == end {
		return false
	}
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

type User struct {
	ID                     string        `json:"id"`
	Name                   string        `json:"name"`
	Role                   UserRole      `json:"role"`
	PhoneNumber            string        `json:"phoneNumber,omitempty"`
	TelegramChatID         int64         `json:"telegramChatId,omitempty"`
	NotificationPermission Permission    `json:"notificationPermission"`
	Voice                  VoiceSettings `json:"voice"`
	Language               string        `json:"language"`
	ElderlyUserIDs         []string      `json:"elderlyUserIds,omitempty"`
	EmergencyMessage       string        `json:"emergencyMessage,omitempty"`
	CreatedAt              time.Time     `json:"createdAt"`
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: user name cannot be empty", ErrValidation)
	}
	switch u.Role {
	case RoleElderly:
		if len(u.ElderlyUserIDs) > 0 {
			return fmt.Errorf("%w: only caretakers can reference elderly users", ErrValidation)
		}
	case RoleCaretaker:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	switch u.NotificationPermission {
	case PermissionDefault, PermissionGranted, PermissionDenied:
	default:
		return fmt.Errorf("%w: unknown notification permission %q", ErrValidation, u.NotificationPermission)
	}
	return nil
}

// VoiceActive reports whether reminders should also be spoken to this user.
// Only elderly users in self mode get voice reminders.
func (u *User) VoiceActive() bool {
	return u.Role == RoleElderly && u.Voice.Enabled
}

// CanManage reports whether u may read and change medicines of elderlyID.
func (u *User) CanManage(elderlyID string) bool {
	if u.ID == elderlyID {
		return true
	}
	if u.Role != RoleCaretaker {
		return false
	}
	for _, id := range u.ElderlyUserIDs {
		if id == elderlyID {
			return true
		}
	}
	return false
}
