package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/service"
)

const notLinkedText = "👋 This chat is not linked yet.\nSend <code>/start &lt;your user id&gt;</code> from the MedRemind app."

const helpText = `<b>MedRemind</b>

/today - today's medicines
/meds - all medicines with stock and expiry
/sos - alert your emergency contacts
/stop - pause reminders in this chat
/start &lt;user id&gt; - link this chat

Reminders come with ✅ Taken, ⏰ Snooze and ❌ Skip buttons.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	if cmd == "start" {
		b.cmdStart(ctx, chatID, user, args)
		return
	}
	if cmd == "help" {
		b.SendMessage(chatID, helpText)
		return
	}
	if user == nil {
		b.SendMessage(chatID, notLinkedText)
		return
	}

	switch cmd {
	case "today":
		b.cmdToday(ctx, chatID, user)
	case "meds":
		b.cmdMeds(ctx, chatID, user)
	case "sos":
		b.cmdSOS(ctx, chatID, user)
	case "stop":
		b.cmdStop(ctx, chatID, user)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list")
	}
}

func (b *Bot) cmdStart(ctx context.Context, chatID int64, user *domain.User, userID string) {
	if userID == "" {
		if user == nil {
			b.SendMessage(chatID, notLinkedText)
			return
		}
		b.SendMessage(chatID, fmt.Sprintf("👋 Welcome back, %s!", html.EscapeString(user.Name)))
		if user.NotificationPermission != domain.PermissionGranted {
			b.SendMessageWithKeyboard(chatID, "🔔 Turn reminders on?", permissionKeyboard())
		}
		return
	}

	linked, err := b.users.LinkChat(ctx, userID, chatID)
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("link chat")
		b.SendMessage(chatID, "❌ No user with that id.")
		return
	}
	b.log.Info().Str("user_id", linked.ID).Int64("chat_id", chatID).Msg("chat linked")
	b.SendMessage(chatID, fmt.Sprintf("✅ Linked to <b>%s</b>.", html.EscapeString(linked.Name)))
	b.SendMessageWithKeyboard(chatID, "🔔 May MedRemind send you medicine reminders here?", permissionKeyboard())
}

// cmdToday sends the day's plan for the user, or for each elder a
// caretaker looks after.
func (b *Bot) cmdToday(ctx context.Context, chatID int64, user *domain.User) {
	for _, elder := range b.elders(ctx, user) {
		meds, err := b.medicines.List(ctx, user, elder.ID)
		if err != nil {
			b.SendMessage(chatID, errorText(err))
			continue
		}
		b.SendMessage(chatID, service.BriefingText(elder, meds, b.now().In(b.cfg.Timezone)))
	}
}

func (b *Bot) cmdMeds(ctx context.Context, chatID int64, user *domain.User) {
	for _, elder := range b.elders(ctx, user) {
		meds, err := b.medicines.List(ctx, user, elder.ID)
		if err != nil {
			b.SendMessage(chatID, errorText(err))
			continue
		}
		b.SendMessage(chatID, medicineListText(elder, meds))
	}
}

func medicineListText(elder *domain.User, meds []*domain.Medicine) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 <b>%s's medicines</b>\n\n", html.EscapeString(elder.Name))
	if len(meds) == 0 {
		sb.WriteString("No medicines yet.")
		return sb.String()
	}
	for _, m := range meds {
		fmt.Fprintf(&sb, "💊 <b>%s</b> %s\n", html.EscapeString(m.Name), html.EscapeString(m.Dosage))
		if len(m.TimeSlots) > 0 {
			slots := make([]string, len(m.TimeSlots))
			for i, s := range m.TimeSlots {
				slots[i] = domain.FormatSlot(s)
			}
			fmt.Fprintf(&sb, "   ⏰ %s\n", strings.Join(slots, ", "))
		}
		fmt.Fprintf(&sb, "   📦 %d days left · expires %s\n", m.StockDays, m.ExpiryDate)
		if m.AdherenceStreak > 0 {
			fmt.Fprintf(&sb, "   🔥 %d day streak\n", m.AdherenceStreak)
		}
	}
	return sb.String()
}

func (b *Bot) cmdSOS(ctx context.Context, chatID int64, user *domain.User) {
	if b.sos == nil {
		b.SendMessage(chatID, "SOS is not available.")
		return
	}
	alert, err := b.sos.Trigger(ctx, user.ID, nil)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", user.ID).Msg("sos from chat")
		b.SendMessage(chatID, "❌ Could not send the alert. Please call for help directly.")
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🆘 Alert sent to your contacts.\n<i>%s</i>", html.EscapeString(alert.Message)))
}

func (b *Bot) cmdStop(ctx context.Context, chatID int64, user *domain.User) {
	if _, err := b.users.SetPermission(ctx, user.ID, domain.PermissionDenied); err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}
	b.SendMessage(chatID, "🔕 Reminders paused. Send /start to turn them back on.")
}

// elders returns the users whose medicines user sees.
func (b *Bot) elders(ctx context.Context, user *domain.User) []*domain.User {
	if user.Role == domain.RoleElderly {
		return []*domain.User{user}
	}
	var out []*domain.User
	for _, id := range user.ElderlyUserIDs {
		elder, err := b.users.Get(ctx, id)
		if err != nil {
			b.log.Warn().Err(err).Str("user_id", id).Msg("get elder")
			continue
		}
		out = append(out, elder)
	}
	return out
}
