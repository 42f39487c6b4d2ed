package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/medremind/internal/domain"
)

func TestRegister(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, domain.PermissionDefault, e.elder.NotificationPermission)
	assert.Equal(t, domain.DefaultVoiceSettings(), e.elder.Voice)
	assert.Equal(t, "hi", e.elder.Language)

	_, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker, ElderlyUserIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.users.Register(e.ctx, &domain.User{Name: "Bad", Role: "admin"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	carer, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker})
	require.NoError(t, err)
	assert.False(t, carer.Voice.Enabled)
}

func TestLinkChat(t *testing.T) {
	e := newEnv(t)
	carer, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker})
	require.NoError(t, err)

	u, err := e.users.LinkChat(e.ctx, e.elder.ID, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), u.TelegramChatID)

	_, err = e.users.SetPermission(e.ctx, e.elder.ID, domain.PermissionGranted)
	require.NoError(t, err)

	// Relinking the same chat keeps the answer.
	u, err = e.users.LinkChat(e.ctx, e.elder.ID, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, u.NotificationPermission)

	// Moving the chat to someone else unlinks the previous owner.
	_, err = e.users.LinkChat(e.ctx, carer.ID, 1001)
	require.NoError(t, err)

	prev, err := e.users.Get(e.ctx, e.elder.ID)
	require.NoError(t, err)
	assert.Zero(t, prev.TelegramChatID)
	assert.Equal(t, domain.PermissionDefault, prev.NotificationPermission)

	byChat, err := e.users.ByChat(e.ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, byChat)
	assert.Equal(t, carer.ID, byChat.ID)
}

func TestSetPermission_Unknown(t *testing.T) {
	e := newEnv(t)
	_, err := e.users.SetPermission(e.ctx, e.elder.ID, "maybe")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.users.SetPermission(e.ctx, "ghost", domain.PermissionGranted)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateVoice(t *testing.T) {
	e := newEnv(t)

	u, err := e.users.UpdateVoice(e.ctx, e.elder.ID, domain.VoiceSettings{Enabled: true, QuietStart: "23:00", QuietEnd: "05:30"})
	require.NoError(t, err)
	assert.Equal(t, domain.VoiceHindi, u.Voice.Language)

	_, err = e.users.UpdateVoice(e.ctx, e.elder.ID, domain.VoiceSettings{Language: "fr-FR"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.users.UpdateVoice(e.ctx, e.elder.ID, domain.VoiceSettings{QuietStart: "25:00"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLinkElderly(t *testing.T) {
	e := newEnv(t)
	carer, err := e.users.Register(e.ctx, &domain.User{Name: "Riya", Role: domain.RoleCaretaker})
	require.NoError(t, err)

	got, err := e.users.LinkElderly(e.ctx, carer.ID, e.elder.ID)
	require.NoError(t, err)
	assert.True(t, got.CanManage(e.elder.ID))

	got, err = e.users.LinkElderly(e.ctx, carer.ID, e.elder.ID)
	require.NoError(t, err)
	assert.Len(t, got.ElderlyUserIDs, 1)

	_, err = e.users.LinkElderly(e.ctx, e.elder.ID, carer.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	carers, err := e.users.Caretakers(e.ctx, e.elder.ID)
	require.NoError(t, err)
	require.Len(t, carers, 1)
	assert.Equal(t, carer.ID, carers[0].ID)
}
