package notify

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
	"github.com/tazhate/medremind/internal/events"
)

type shown struct {
	userID string
	n      Notification
}

type fakePlatform struct {
	mu      sync.Mutex
	perms   map[string]domain.Permission
	asked   []string
	shown   []shown
	showErr error
}

func (p *fakePlatform) RequestPermission(_ context.Context, u *domain.User) (domain.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, u.ID)
	if perm, ok := p.perms[u.ID]; ok {
		return perm, nil
	}
	return domain.PermissionDefault, nil
}

func (p *fakePlatform) Show(_ context.Context, u *domain.User, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.showErr != nil {
		return p.showErr
	}
	p.shown = append(p.shown, shown{userID: u.ID, n: n})
	return nil
}

type fakeUsers map[string]*domain.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	return f[id], nil
}

func (f fakeUsers) ListCaretakersOf(_ context.Context, elderlyID string) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range f {
		if u.Role == domain.RoleCaretaker && u.CanManage(elderlyID) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeVoice struct {
	mu    sync.Mutex
	calls []string
}

func (v *fakeVoice) add(s string) {
	v.mu.Lock()
	v.calls = append(v.calls, s)
	v.mu.Unlock()
}

func (v *fakeVoice) SpeakMedicineReminder(context.Context, *domain.User, *domain.Medicine) error {
	v.add("reminder")
	return errors.New("engine down")
}

func (v *fakeVoice) SpeakStockReminder(context.Context, *domain.User, *domain.Medicine) error {
	v.add("stock")
	return nil
}

func (v *fakeVoice) SpeakEmergency(context.Context, *domain.User) error {
	v.add("emergency")
	return nil
}

var now = time.Date(2026, 10, 14, 7, 50, 0, 0, time.UTC)

func metformin() *domain.Medicine {
	return &domain.Medicine{
		ID:            "m1",
		Name:          "Metformin",
		Dosage:        "500mg",
		Frequency:     domain.FrequencyTwiceDaily,
		TimeSlots:     []string{"08:00", "20:00"},
		StockDays:     3,
		ExpiryDate:    "2026-10-17",
		FoodTiming:    domain.FoodAfter,
		ElderlyUserID: "e1",
	}
}

func setup(perm domain.Permission) (*Dispatcher, *fakePlatform, *fakeVoice, chan events.Event) {
	users := fakeUsers{
		"e1": {ID: "e1", Name: "Dadi", Role: domain.RoleElderly},
		"c1": {ID: "c1", Name: "Asha", Role: domain.RoleCaretaker, ElderlyUserIDs: []string{"e1"}},
	}
	platform := &fakePlatform{perms: map[string]domain.Permission{"e1": perm, "c1": domain.PermissionGranted}}
	hub := events.NewHub()
	sub := hub.Subscribe(8, "e1")
	v := &fakeVoice{}
	d := New(Options{SnoozeMinutes: 10}, platform, users, v, hub, zerolog.Nop())
	d.now = func() time.Time { return now }
	return d, platform, v, sub
}

func TestDispatch_DeniedReturnsFalse(t *testing.T) {
	d, platform, v, sub := setup(domain.PermissionDenied)
	r := domain.Reminder{ID: "r1", FireAt: now.Add(10 * time.Minute), Channels: []domain.Channel{domain.ChannelPush, domain.ChannelVoice}}

	ok := d.Dispatch(context.Background(), metformin(), r, domain.TimingNow)
	d.Wait()

	assert.False(t, ok)
	assert.Equal(t, []string{"e1"}, platform.asked)
	assert.Empty(t, platform.shown)
	assert.Empty(t, v.calls)
	assert.Len(t, sub, 0)
}

func TestDispatch_UndecidedReachesAppOnly(t *testing.T) {
	d, platform, v, sub := setup(domain.PermissionDefault)
	r := domain.Reminder{ID: "r1", FireAt: now, Channels: []domain.Channel{domain.ChannelPush, domain.ChannelVoice}}

	ok := d.Dispatch(context.Background(), metformin(), r, domain.TimingNow)
	d.Wait()

	assert.False(t, ok)
	assert.Empty(t, platform.shown)
	assert.Empty(t, v.calls)
	require.Len(t, sub, 1)
	ev := <-sub
	assert.Equal(t, events.Notification, ev.Type)
	assert.Equal(t, "Time to take Metformin!", ev.Title)
}

func TestDispatch_DueStage(t *testing.T) {
	d, platform, v, sub := setup(domain.PermissionGranted)
	r := domain.Reminder{ID: "r1", FireAt: now, Channels: []domain.Channel{domain.ChannelPush, domain.ChannelVoice}}

	require.True(t, d.Dispatch(context.Background(), metformin(), r, domain.TimingNow))
	d.Wait()

	require.Len(t, platform.shown, 1)
	n := platform.shown[0].n
	assert.Equal(t, "Time to take Metformin!", n.Title)
	assert.Equal(t, "500mg - Don't forget to take your medicine\nTake after food", n.Body)
	assert.Equal(t, "/icon.svg", n.Icon)
	assert.Equal(t, "medicine-m1", n.Tag)
	assert.Equal(t, []string{"taken", "snooze", "skip"}, n.ActionIDs())
	assert.Equal(t, 10, n.Actions[1].Minutes)

	assert.Equal(t, []string{"reminder"}, v.calls, "voice failure does not fail dispatch")

	ev := <-sub
	assert.Equal(t, events.Notification, ev.Type)
	assert.Equal(t, "r1", ev.ReminderID)
}

func TestDispatch_EarlyStageTitle(t *testing.T) {
	d, platform, v, _ := setup(domain.PermissionGranted)
	m := metformin()

	r := domain.Reminder{ID: "r1", FireAt: now.Add(15 * time.Minute), Channels: []domain.Channel{domain.ChannelVoice}}
	require.True(t, d.Dispatch(context.Background(), m, r, domain.TimingEarly))
	r.FireAt = now.Add(10 * time.Minute)
	require.True(t, d.Dispatch(context.Background(), m, r, domain.TimingEarly))
	d.Wait()

	require.Len(t, platform.shown, 2)
	assert.Equal(t, "Reminder: Metformin in 15 minutes", platform.shown[0].n.Title)
	assert.Equal(t, "Reminder: Metformin in 10 minutes", platform.shown[1].n.Title)
	assert.Empty(t, v.calls, "early stage is not spoken")
}

func TestDispatch_SnoozeHasNoSnoozeAction(t *testing.T) {
	d, platform, _, _ := setup(domain.PermissionGranted)
	r := domain.Reminder{ID: "r2", FireAt: now, SnoozeCount: 1}

	require.True(t, d.Dispatch(context.Background(), metformin(), r, domain.TimingNow))
	assert.Equal(t, []string{"taken", "skip"}, platform.shown[0].n.ActionIDs())
}

func TestDispatch_ShowErrorReturnsFalse(t *testing.T) {
	d, platform, _, sub := setup(domain.PermissionGranted)
	platform.showErr = errors.New("telegram down")

	assert.False(t, d.Dispatch(context.Background(), metformin(), domain.Reminder{ID: "r1", FireAt: now}, domain.TimingNow))
	// Open app sessions still get it.
	assert.Len(t, sub, 1)
}

func TestDispatchExpiryAndStock(t *testing.T) {
	d, platform, v, _ := setup(domain.PermissionGranted)
	m := metformin()

	require.True(t, d.DispatchExpiry(context.Background(), m))
	require.True(t, d.DispatchStock(context.Background(), m))
	d.Wait()

	require.Len(t, platform.shown, 4, "owner and caretaker each get both")
	exp := platform.shown[0].n
	assert.Equal(t, "⚠️ Metformin expiring soon!", exp.Title)
	assert.Equal(t, "Metformin expires in 3 days.", exp.Body)
	assert.Equal(t, []string{"acknowledge", "replace"}, exp.ActionIDs())
	assert.Equal(t, "Only 3 days of Metformin left. Time to buy more.", platform.shown[2].n.Body)
	assert.Equal(t, []string{"stock"}, v.calls)
}

func TestExpiryNotification_Expired(t *testing.T) {
	m := metformin()
	m.ExpiryDate = "2026-10-14"
	n := ExpiryNotification(m, now)
	assert.Equal(t, "Metformin has expired. Please replace it immediately.", n.Body)

	m.ExpiryDate = "2026-10-15"
	assert.Equal(t, "Metformin expires in 1 day.", ExpiryNotification(m, now).Body)
}

func TestDispatchEmergencyAndMissed(t *testing.T) {
	d, platform, v, _ := setup(domain.PermissionGranted)
	elder := &domain.User{ID: "e1", Name: "Dadi", Role: domain.RoleElderly}
	contacts := []domain.EmergencyContact{{Name: "Ravi"}, {Name: "Meera"}}

	require.True(t, d.DispatchEmergency(context.Background(), elder, contacts))
	d.Wait()
	require.Len(t, platform.shown, 1)
	assert.Equal(t, "🆘 Emergency Alert Sent!", platform.shown[0].n.Title)
	assert.Equal(t, "Emergency contacts (Ravi, Meera) have been notified of your emergency.", platform.shown[0].n.Body)
	assert.Equal(t, []string{"emergency"}, v.calls)

	r := domain.Reminder{ID: "r9", Slot: "08:00", FireAt: now}
	require.True(t, d.DispatchMissed(context.Background(), metformin(), r))
	require.Len(t, platform.shown, 2)
	assert.Equal(t, "c1", platform.shown[1].userID)
	assert.Equal(t, "❗ Dadi missed Metformin", platform.shown[1].n.Title)
	assert.Contains(t, platform.shown[1].n.Body, "8:00 AM")
}

func TestDispatch_NoPlatform(t *testing.T) {
	d, platform, _, sub := setup(domain.PermissionGranted)
	d.SetPlatform(nil)

	r := domain.Reminder{ID: "r1", FireAt: now, Channels: []domain.Channel{domain.ChannelPush}}
	assert.False(t, d.Dispatch(context.Background(), metformin(), r, domain.TimingNow))
	assert.Empty(t, platform.asked)
	require.Len(t, sub, 1)
	assert.Equal(t, "r1", (<-sub).ReminderID)

	assert.False(t, d.DispatchExpiry(context.Background(), metformin()))
	assert.Len(t, sub, 1)
	<-sub

	d.SetPlatform(platform)
	assert.True(t, d.Dispatch(context.Background(), metformin(), r, domain.TimingNow))
}

func TestDispatch_NoPlatformStoredDenial(t *testing.T) {
	users := fakeUsers{"e1": {ID: "e1", Name: "Dadi", Role: domain.RoleElderly, NotificationPermission: domain.PermissionDenied}}
	hub := events.NewHub()
	sub := hub.Subscribe(8, "e1")
	d := New(Options{}, nil, users, nil, hub, zerolog.Nop())

	r := domain.Reminder{ID: "r1", FireAt: now}
	assert.False(t, d.Dispatch(context.Background(), metformin(), r, domain.TimingNow))
	assert.Len(t, sub, 0)
}
