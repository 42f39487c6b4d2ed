package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/medremind/internal/domain"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	user, err := b.users.ByChat(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("get user by chat")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, user)
		return
	}
	if user == nil {
		b.SendMessage(chatID, notLinkedText)
		return
	}
	b.SendMessage(chatID, "Use the buttons on a reminder, or /help for commands.")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	user, err := b.users.ByChat(ctx, chatID)
	if err != nil || user == nil {
		b.answer(cb.ID, "Chat is not linked. Send /start <user id>.")
		return
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, "act:"):
		reply, err := b.doseAction(ctx, user, data)
		if err != nil {
			b.answer(cb.ID, errorText(err))
			if errors.Is(err, domain.ErrNotPending) || errors.Is(err, domain.ErrNotFound) {
				b.clearButtons(chatID, msgID)
			}
			return
		}
		b.answer(cb.ID, reply)
		b.clearButtons(chatID, msgID)

	case strings.HasPrefix(data, prefixMedicine+":"):
		medID, action, ok := parseMedicineCallback(data)
		if !ok {
			b.answer(cb.ID, "Unknown action")
			return
		}
		m, err := b.medicines.Get(ctx, user, medID)
		if err != nil {
			b.answer(cb.ID, errorText(err))
			return
		}
		switch action {
		case domain.ActionAcknowledge:
			b.answer(cb.ID, "👍 Noted")
		case domain.ActionReplace:
			b.answer(cb.ID, "🛒 Replacement noted")
			b.SendMessage(chatID, fmt.Sprintf("🛒 Remember to buy <b>%s %s</b>.", html.EscapeString(m.Name), html.EscapeString(m.Dosage)))
		default:
			b.answer(cb.ID, "Unknown action")
			return
		}
		b.clearButtons(chatID, msgID)

	case strings.HasPrefix(data, prefixPermission+":"):
		perm := domain.PermissionDenied
		reply := "🔕 Reminders stay off. Send /start to change your mind."
		if data == prefixPermission+":allow" {
			perm = domain.PermissionGranted
			reply = "🔔 Reminders are on."
		}
		if _, err := b.users.SetPermission(ctx, user.ID, perm); err != nil {
			b.answer(cb.ID, errorText(err))
			return
		}
		b.answer(cb.ID, reply)
		b.clearButtons(chatID, msgID)
		b.SendMessage(chatID, reply)

	default:
		b.answer(cb.ID, "Unknown action")
	}
}

// doseAction resolves the reminder behind an act: callback.
func (b *Bot) doseAction(ctx context.Context, user *domain.User, data string) (string, error) {
	reminderID, name, minutes, err := domain.ParseCallbackData(data)
	if err != nil {
		return "", err
	}
	r, ok := b.reminders.Get(reminderID)
	if !ok {
		return "", fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
	}
	if !user.CanManage(r.UserID) {
		return "", domain.ErrForbidden
	}
	action, err := domain.ParseAction(name, r.MedicineID, minutes, b.reminders.SnoozeDefault())
	if err != nil {
		return "", err
	}
	m, err := b.reminders.HandleAction(ctx, reminderID, action)
	if err != nil {
		return "", err
	}

	switch a := action.(type) {
	case domain.Taken:
		if m.AdherenceStreak > 1 {
			return fmt.Sprintf("✅ %s taken. %d day streak!", m.Name, m.AdherenceStreak), nil
		}
		return fmt.Sprintf("✅ %s taken", m.Name), nil
	case domain.Snoozed:
		return fmt.Sprintf("⏰ Reminding again in %d min", a.Minutes), nil
	default:
		return fmt.Sprintf("❌ %s skipped", m.Name), nil
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug().Err(err).Msg("answer callback")
	}
}

func (b *Bot) clearButtons(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, doneMarkup())
	if _, err := b.api.Request(edit); err != nil {
		b.log.Debug().Err(err).Msg("clear buttons")
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotPending):
		return "Already answered"
	case errors.Is(err, domain.ErrNotFound):
		return "This reminder is no longer active"
	case errors.Is(err, domain.ErrForbidden):
		return "⛔ Not allowed"
	case errors.Is(err, domain.ErrValidation):
		return "Invalid action"
	}
	return "Something went wrong, please try again"
}
