// Package bot is the Telegram front end: it delivers notifications and
// voice notes and takes dose actions from inline buttons.
package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/config"
	"github.com/tazhate/medremind/internal/service"
)

// WebhookPathFor is where Telegram posts updates for a bot token. The path
// is derived from the token so forged updates need the token too.
func WebhookPathFor(token string) string {
	sum := sha256.Sum256([]byte("medremind-webhook:" + token))
	return "/bot/" + hex.EncodeToString(sum[:16])
}

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api       API
	raw       *tgbotapi.BotAPI
	cfg       *config.Config
	users     *service.UserService
	medicines *service.MedicineService
	reminders *service.ReminderService
	sos       *service.SOSService
	now       func() time.Time
	log       zerolog.Logger

	mu       sync.Mutex
	prompted map[string]bool
}

func New(cfg *config.Config, users *service.UserService, medicines *service.MedicineService, reminders *service.ReminderService, sos *service.SOSService, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := NewWithAPI(api, cfg, users, medicines, reminders, sos, log)
	b.raw = api
	b.log.Info().Str("username", api.Self.UserName).Msg("authorized")

	// Set bot commands (menu button)
	b.setCommands()
	return b, nil
}

// NewWithAPI builds a bot on an existing API client.
func NewWithAPI(api API, cfg *config.Config, users *service.UserService, medicines *service.MedicineService, reminders *service.ReminderService, sos *service.SOSService, log zerolog.Logger) *Bot {
	return &Bot{
		api:       api,
		cfg:       cfg,
		users:     users,
		medicines: medicines,
		reminders: reminders,
		sos:       sos,
		now:       time.Now,
		log:       log.With().Str("component", "bot").Logger(),
		prompted:  make(map[string]bool),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "today", Description: "💊 Today's medicines"},
		{Command: "meds", Description: "📋 All medicines"},
		{Command: "sos", Description: "🆘 Alert emergency contacts"},
		{Command: "stop", Description: "🔕 Pause notifications"},
		{Command: "help", Description: "❓ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Warn().Err(err).Msg("failed to set commands")
	}
}

// SetupWebhook registers WebhookURL with Telegram.
func (b *Bot) SetupWebhook() error {
	webhookURL := strings.TrimSuffix(b.cfg.WebhookURL, "/") + b.WebhookPath()

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	if b.raw != nil {
		info, err := b.raw.GetWebhookInfo()
		if err != nil {
			return fmt.Errorf("get webhook info: %w", err)
		}
		if info.LastErrorDate != 0 {
			b.log.Warn().Str("error", info.LastErrorMessage).Msg("webhook last error")
		}
	}

	b.log.Info().Str("url", webhookURL).Msg("webhook set")
	return nil
}

// WebhookPath is the route the webhook handler must be mounted on.
func (b *Bot) WebhookPath() string {
	return WebhookPathFor(b.cfg.TelegramToken)
}

// WebhookHandler decodes updates posted by Telegram.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		go b.handleUpdate(context.WithoutCancel(r.Context()), update)
		w.WriteHeader(http.StatusOK)
	}
}

// Poll reads updates with long polling until ctx is done. It is used when
// no webhook URL is configured.
func (b *Bot) Poll(ctx context.Context) error {
	if b.raw == nil {
		return fmt.Errorf("polling needs a telegram client")
	}
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.log.Warn().Err(err).Msg("delete webhook")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.raw.GetUpdatesChan(u)
	defer b.raw.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

// SendMessage sends an HTML message.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}
