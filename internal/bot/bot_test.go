package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/medremind/config"
	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/notify"
	"github.com/tazhate/medremind/internal/scheduler"
	"github.com/tazhate/medremind/internal/service"
	"github.com/tazhate/medremind/internal/storage"
	"github.com/tazhate/medremind/internal/voice"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) answers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(context.Context, *domain.Medicine, domain.Reminder, domain.Timing) bool {
	return true
}

func (noopNotifier) DispatchMissed(context.Context, *domain.Medicine, domain.Reminder) bool {
	return true
}

type testBot struct {
	*Bot
	api       *fakeAPI
	ctx       context.Context
	medicines *service.MedicineService
	reminders *service.ReminderService
	users     *service.UserService
	elder     *domain.User
}

const chatID int64 = 4242

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	repo := storage.NewRepository(storage.NewMemoryStore())
	sched := scheduler.New(scheduler.Options{EarlyWarning: 15 * time.Minute}, nil, log)

	reminders := service.NewReminderService(repo, sched, noopNotifier{}, nil, time.UTC, 10*time.Minute, log)
	sched.SetHandler(reminders)
	medicines := service.NewMedicineService(repo, reminders, nil, nil, time.UTC, log)
	users := service.NewUserService(repo, log)

	elder, err := users.Register(ctx, &domain.User{Name: "Dadi", Role: domain.RoleElderly})
	require.NoError(t, err)

	api := &fakeAPI{}
	b := NewWithAPI(api, &config.Config{Timezone: time.UTC}, users, medicines, reminders, nil, log)
	return &testBot{Bot: b, api: api, ctx: ctx, medicines: medicines, reminders: reminders, users: users, elder: elder}
}

func (tb *testBot) link(t *testing.T, perm domain.Permission) {
	t.Helper()
	_, err := tb.users.LinkChat(tb.ctx, tb.elder.ID, chatID)
	require.NoError(t, err)
	u, err := tb.users.SetPermission(tb.ctx, tb.elder.ID, perm)
	require.NoError(t, err)
	tb.elder = u
}

func (tb *testBot) command(text string) {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	tb.handleUpdate(tb.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}})
}

func (tb *testBot) callback(data string) {
	tb.handleUpdate(tb.ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}},
	}})
}

func (tb *testBot) metformin(t *testing.T) (*domain.Medicine, domain.Reminder) {
	t.Helper()
	m, err := tb.medicines.Create(tb.ctx, tb.elder, &domain.Medicine{
		Name:       "Metformin",
		Dosage:     "500mg",
		Frequency:  domain.FrequencyTwiceDaily,
		TimeSlots:  []string{"08:00", "20:00"},
		StockDays:  30,
		ExpiryDate: "2099-12-31",
		FoodTiming: domain.FoodAfter,
	})
	require.NoError(t, err)
	pending := tb.reminders.Pending(tb.elder.ID)
	require.Len(t, pending, 1)
	return m, pending[0]
}

func TestStart_LinksChat(t *testing.T) {
	tb := newTestBot(t)

	tb.command("/start " + tb.elder.ID)

	u, err := tb.users.ByChat(tb.ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, tb.elder.ID, u.ID)

	texts := tb.api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Linked to <b>Dadi</b>")
	assert.Contains(t, texts[1], "medicine reminders")
}

func TestStart_UnknownUser(t *testing.T) {
	tb := newTestBot(t)
	tb.command("/start nobody")
	assert.Equal(t, []string{"❌ No user with that id."}, tb.api.texts())
}

func TestCommands_NeedLinkedChat(t *testing.T) {
	tb := newTestBot(t)
	tb.command("/today")
	assert.Equal(t, []string{notLinkedText}, tb.api.texts())
}

func TestPermissionCallback(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionDefault)

	tb.callback("perm:allow")

	u, err := tb.users.Get(tb.ctx, tb.elder.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, u.NotificationPermission)
	assert.Equal(t, []string{"🔔 Reminders are on."}, tb.api.answers())

	tb.command("/stop")
	u, _ = tb.users.Get(tb.ctx, tb.elder.ID)
	assert.Equal(t, domain.PermissionDenied, u.NotificationPermission)
}

func TestRequestPermission(t *testing.T) {
	tb := newTestBot(t)

	perm, err := tb.RequestPermission(tb.ctx, tb.elder)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, perm)
	assert.Empty(t, tb.api.texts(), "no chat, nothing to prompt")

	tb.link(t, domain.PermissionDefault)
	for i := 0; i < 2; i++ {
		perm, err = tb.RequestPermission(tb.ctx, tb.elder)
		require.NoError(t, err)
		assert.Equal(t, domain.PermissionDefault, perm)
	}
	assert.Len(t, tb.api.texts(), 1, "prompted once")

	tb.link(t, domain.PermissionGranted)
	perm, err = tb.RequestPermission(tb.ctx, tb.elder)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, perm)
}

func TestShow_ReminderButtons(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionGranted)
	m, r := tb.metformin(t)

	n := notify.ReminderNotification(m, r, domain.TimingNow, time.Now(), 10)
	require.NoError(t, tb.Show(tb.ctx, tb.elder, n))

	require.Len(t, tb.api.sent, 1)
	msg := tb.api.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "<b>Time to take Metformin!</b>")

	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 1)
	var data []string
	for _, btn := range kb.InlineKeyboard[0] {
		data = append(data, *btn.CallbackData)
	}
	assert.Equal(t, []string{
		"act:" + r.ID + ":taken",
		"act:" + r.ID + ":snooze:10",
		"act:" + r.ID + ":skip",
	}, data)
}

func TestShow_ExpiryButtonsTargetMedicine(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionGranted)
	m, _ := tb.metformin(t)

	require.NoError(t, tb.Show(tb.ctx, tb.elder, notify.ExpiryNotification(m, time.Now())))
	kb := tb.api.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "med:"+m.ID+":acknowledge", *kb.InlineKeyboard[0][0].CallbackData)

	tb.callback("med:" + m.ID + ":replace")
	assert.Equal(t, []string{"🛒 Replacement noted"}, tb.api.answers())
	assert.Contains(t, tb.api.texts()[1], "Remember to buy <b>Metformin 500mg</b>")
}

func TestShow_NoChat(t *testing.T) {
	tb := newTestBot(t)
	err := tb.Show(tb.ctx, tb.elder, notify.Notification{Title: "x"})
	assert.Error(t, err)
}

func TestDoseCallback_Taken(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionGranted)
	m, r := tb.metformin(t)

	tb.callback(domain.CallbackData(r.ID, domain.ActionTaken, 0))

	assert.Equal(t, []string{"✅ Metformin taken"}, tb.api.answers())
	got, err := tb.medicines.Get(tb.ctx, tb.elder, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AdherenceStreak)
	assert.NotNil(t, got.LastTaken)

	tb.callback(domain.CallbackData(r.ID, domain.ActionTaken, 0))
	assert.Equal(t, "Already answered", tb.api.answers()[1])
}

func TestDoseCallback_Snooze(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionGranted)
	_, r := tb.metformin(t)

	tb.callback(domain.CallbackData(r.ID, domain.ActionSnooze, 15))
	assert.Equal(t, []string{"⏰ Reminding again in 15 min"}, tb.api.answers())
}

func TestDoseCallback_OtherUsersReminder(t *testing.T) {
	tb := newTestBot(t)
	_, r := tb.metformin(t)

	other, err := tb.users.Register(tb.ctx, &domain.User{Name: "Stranger", Role: domain.RoleCaretaker})
	require.NoError(t, err)
	_, err = tb.users.LinkChat(tb.ctx, other.ID, chatID)
	require.NoError(t, err)

	tb.callback(domain.CallbackData(r.ID, domain.ActionTaken, 0))
	assert.Equal(t, []string{"⛔ Not allowed"}, tb.api.answers())
}

func TestMedsCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.link(t, domain.PermissionGranted)
	tb.metformin(t)

	tb.command("/meds")
	texts := tb.api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "💊 <b>Metformin</b> 500mg")
	assert.Contains(t, texts[0], "30 days left")
}

type fakeTTS struct {
	lang string
	err  error
}

func (f *fakeTTS) Synthesize(_ context.Context, _ string, language string, _, _ float64) ([]byte, error) {
	f.lang = language
	return []byte("ogg"), f.err
}

func TestVoiceNotes(t *testing.T) {
	tb := newTestBot(t)
	tts := &fakeTTS{}
	engine := tb.VoiceNotes(tts)

	err := engine.Speak(tb.ctx, voice.Utterance{UserID: "u1", ChatID: chatID, Text: "दवा का समय", Language: domain.VoiceHindi, Priority: voice.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", tts.lang)

	require.Len(t, tb.api.sent, 1)
	note := tb.api.sent[0].(tgbotapi.VoiceConfig)
	assert.Equal(t, chatID, note.ChatID)
	assert.Equal(t, "दवा का समय", note.Caption)

	assert.Error(t, engine.Speak(tb.ctx, voice.Utterance{UserID: "u1", Text: "x"}))

	tts.err = errors.New("tts down")
	assert.Error(t, engine.Speak(tb.ctx, voice.Utterance{UserID: "u1", ChatID: chatID, Text: "x"}))
}

func TestSetupWebhook_SecretPath(t *testing.T) {
	tb := newTestBot(t)
	tb.cfg.TelegramToken = "123456:AAE-secret"
	tb.cfg.WebhookURL = "https://meds.example.com/"
	require.NoError(t, tb.SetupWebhook())

	path := tb.WebhookPath()
	assert.True(t, strings.HasPrefix(path, "/bot/"))
	assert.Len(t, path, len("/bot/")+32)
	assert.NotContains(t, path, "AAE-secret")
	assert.Equal(t, path, WebhookPathFor("123456:AAE-secret"))
	assert.NotEqual(t, path, WebhookPathFor("654321:other"))

	var hook *tgbotapi.WebhookConfig
	for _, c := range tb.api.requests {
		if wh, ok := c.(tgbotapi.WebhookConfig); ok {
			hook = &wh
		}
	}
	require.NotNil(t, hook)
	assert.Equal(t, "https://meds.example.com"+path, hook.URL.String())
}
