package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/medremind/internal/domain"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent map[string]string
	fail map[string]bool
}

func (f *fakeSMS) Send(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[phone] {
		return errors.New("gateway rejected")
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[phone] = text
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func TestEmergencyText(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	text := EmergencyText(at, &domain.Location{Latitude: 28.6139, Longitude: 77.209, Accuracy: 15}, "I live alone, door code 4512")
	assert.Contains(t, text, "🆘 EMERGENCY ALERT 🆘")
	assert.Contains(t, text, "Time: 14 Oct 2026, 09:30 UTC")
	assert.Contains(t, text, "Location: https://maps.google.com/maps?q=28.6139,77.209")
	assert.Contains(t, text, "Accuracy: ±15m")
	assert.Contains(t, text, "I live alone, door code 4512")

	text = EmergencyText(at, nil, "")
	assert.Contains(t, text, "Location: Unable to determine")
	assert.NotContains(t, text, "Accuracy")
}

func TestSOSTrigger(t *testing.T) {
	e := newEnv(t)
	contacts := NewContactService(e.repo)
	son, err := contacts.Add(e.ctx, e.elder, &domain.EmergencyContact{Name: "Rahul", PhoneNumber: "9876543210", TelegramChatID: 501})
	require.NoError(t, err)
	_, err = contacts.Add(e.ctx, e.elder, &domain.EmergencyContact{Name: "Neighbour", PhoneNumber: "9876500000"})
	require.NoError(t, err)

	carer, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker, ElderlyUserIDs: []string{e.elder.ID}})
	require.NoError(t, err)
	_, err = e.users.LinkChat(e.ctx, carer.ID, 777)
	require.NoError(t, err)

	sms := &fakeSMS{fail: map[string]bool{"9876500000": true}}
	sender := &fakeSender{}
	svc := NewSOSService(e.repo, sms, sender, e.notifier, e.hub, time.UTC, zerolog.Nop())
	svc.now = e.clock.Now

	alert, err := svc.Trigger(e.ctx, e.elder.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertActive, alert.Status)
	assert.Contains(t, alert.Message, "Location: Unable to determine")

	assert.Len(t, sms.sent, 1)
	assert.Equal(t, alert.Message, sms.sent["9876543210"])
	assert.Equal(t, []string{alert.Message}, sender.sent[501])
	require.Len(t, sender.sent[777], 1)
	assert.Contains(t, sender.sent[777][0], "From: Dadi")

	// Only the contact that got a message is reported back.
	require.Len(t, e.notifier.reached, 1)
	require.Len(t, e.notifier.reached[0], 1)
	assert.Equal(t, son.ID, e.notifier.reached[0][0].ID)

	stored, err := svc.List(e.ctx, e.elder, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, alert.ID, stored[0].ID)
}

func TestSOSTrigger_EscapesTelegramHTML(t *testing.T) {
	e := newEnv(t)
	elder, err := e.users.Register(e.ctx, &domain.User{Name: "Ram & Sita", Role: domain.RoleElderly, EmergencyMessage: "BP <140/90> diabetic"})
	require.NoError(t, err)
	contacts := NewContactService(e.repo)
	_, err = contacts.Add(e.ctx, elder, &domain.EmergencyContact{Name: "Rahul", PhoneNumber: "9876543210", TelegramChatID: 501})
	require.NoError(t, err)
	carer, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker, ElderlyUserIDs: []string{elder.ID}})
	require.NoError(t, err)
	_, err = e.users.LinkChat(e.ctx, carer.ID, 777)
	require.NoError(t, err)

	sms := &fakeSMS{}
	sender := &fakeSender{}
	svc := NewSOSService(e.repo, sms, sender, nil, nil, time.UTC, zerolog.Nop())

	alert, err := svc.Trigger(e.ctx, elder.ID, nil)
	require.NoError(t, err)

	// SMS and the stored alert keep the plain text.
	assert.Contains(t, alert.Message, "BP <140/90> diabetic")
	assert.Equal(t, alert.Message, sms.sent["9876543210"])

	require.Len(t, sender.sent[501], 1)
	assert.Contains(t, sender.sent[501][0], "BP &lt;140/90&gt; diabetic")
	assert.NotContains(t, sender.sent[501][0], "<140")

	require.Len(t, sender.sent[777], 1)
	assert.Contains(t, sender.sent[777][0], "From: Ram &amp; Sita")
	assert.Contains(t, sender.sent[777][0], "BP &lt;140/90&gt;")
}

func TestSOSTrigger_NoChannels(t *testing.T) {
	e := newEnv(t)
	svc := NewSOSService(e.repo, nil, nil, e.notifier, nil, time.UTC, zerolog.Nop())

	alert, err := svc.Trigger(e.ctx, e.elder.ID, &domain.Location{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.NotNil(t, alert.Location)
	require.Len(t, e.notifier.reached, 1)
	assert.Empty(t, e.notifier.reached[0])

	_, err = svc.Trigger(e.ctx, "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSOSAcknowledgeAndResolve(t *testing.T) {
	e := newEnv(t)
	contacts := NewContactService(e.repo)
	son, err := contacts.Add(e.ctx, e.elder, &domain.EmergencyContact{Name: "Rahul", PhoneNumber: "9876543210"})
	require.NoError(t, err)

	svc := NewSOSService(e.repo, &fakeSMS{}, nil, nil, nil, time.UTC, zerolog.Nop())
	alert, err := svc.Trigger(e.ctx, e.elder.ID, nil)
	require.NoError(t, err)

	got, err := svc.Acknowledge(e.ctx, alert.ID, son.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{son.ID}, got.RespondedContacts)

	got, err = svc.Acknowledge(e.ctx, alert.ID, son.ID)
	require.NoError(t, err)
	assert.Len(t, got.RespondedContacts, 1)

	_, err = svc.Acknowledge(e.ctx, alert.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stranger, err := e.users.Register(e.ctx, &domain.User{Name: "Stranger", Role: domain.RoleCaretaker})
	require.NoError(t, err)
	_, err = svc.Resolve(e.ctx, stranger, alert.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err = svc.Resolve(e.ctx, e.elder, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, got.Status)
}
