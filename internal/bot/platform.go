package bot

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/notify"
	"github.com/tazhate/medremind/internal/voice"
)

// RequestPermission returns the stored permission. An undecided user with a
// linked chat is asked once per process run.
func (b *Bot) RequestPermission(ctx context.Context, user *domain.User) (domain.Permission, error) {
	if user.TelegramChatID == 0 {
		return domain.PermissionDefault, nil
	}
	if user.NotificationPermission != domain.PermissionDefault {
		return user.NotificationPermission, nil
	}

	b.mu.Lock()
	asked := b.prompted[user.ID]
	b.prompted[user.ID] = true
	b.mu.Unlock()
	if asked {
		return domain.PermissionDefault, nil
	}

	text := fmt.Sprintf("🔔 <b>%s</b>, may MedRemind send you medicine reminders here?", html.EscapeString(user.Name))
	if err := b.SendMessageWithKeyboard(user.TelegramChatID, text, permissionKeyboard()); err != nil {
		b.mu.Lock()
		delete(b.prompted, user.ID)
		b.mu.Unlock()
		return domain.PermissionDefault, fmt.Errorf("send permission prompt: %w", err)
	}
	return domain.PermissionDefault, nil
}

// Show delivers a notification as a chat message with its actions as
// inline buttons.
func (b *Bot) Show(ctx context.Context, user *domain.User, n notify.Notification) error {
	if user.TelegramChatID == 0 {
		return fmt.Errorf("user %s has no linked chat", user.ID)
	}
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(n.Title), html.EscapeString(n.Body))
	if len(n.Actions) == 0 {
		return b.SendMessage(user.TelegramChatID, text)
	}
	return b.SendMessageWithKeyboard(user.TelegramChatID, text, actionKeyboard(n.Actions))
}

// Synthesizer turns text into OGG/Opus audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string, rate, volume float64) ([]byte, error)
}

// VoiceNotes speaks utterances by sending synthesized voice notes.
type VoiceNotes struct {
	api API
	tts Synthesizer
}

func (b *Bot) VoiceNotes(tts Synthesizer) *VoiceNotes {
	return &VoiceNotes{api: b.api, tts: tts}
}

func (v *VoiceNotes) Speak(ctx context.Context, u voice.Utterance) error {
	if u.ChatID == 0 {
		return fmt.Errorf("user %s has no linked chat", u.UserID)
	}
	audio, err := v.tts.Synthesize(ctx, u.Text, string(u.Language), u.Rate, u.Volume)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	note := tgbotapi.NewVoice(u.ChatID, tgbotapi.FileBytes{Name: "reminder.ogg", Bytes: audio})
	note.Caption = u.Text
	note.DisableNotification = u.Priority == voice.PriorityLow
	if _, err := v.api.Send(note); err != nil {
		return fmt.Errorf("send voice note: %w", err)
	}
	return nil
}

func (v *VoiceNotes) Languages() []domain.VoiceLanguage {
	return []domain.VoiceLanguage{domain.VoiceHindi, domain.VoiceEnglish}
}
