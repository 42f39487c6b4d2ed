// Package notify renders reminders and delivers them to the push platform,
// the voice channel and open in-app sessions.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/metrics"
)

const voiceTimeout = 2 * time.Minute

// Platform is the push notification backend.
type Platform interface {
	// RequestPermission returns the user's current permission, prompting
	// the user when it is still undecided.
	RequestPermission(ctx context.Context, user *domain.User) (domain.Permission, error)
	Show(ctx context.Context, user *domain.User, n Notification) error
}

type Users interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListCaretakersOf(ctx context.Context, elderlyID string) ([]*domain.User, error)
}

type Voice interface {
	SpeakMedicineReminder(ctx context.Context, user *domain.User, m *domain.Medicine) error
	SpeakStockReminder(ctx context.Context, user *domain.User, m *domain.Medicine) error
	SpeakEmergency(ctx context.Context, user *domain.User) error
}

type Options struct {
	SnoozeMinutes int
}

type Dispatcher struct {
	platform Platform
	users    Users
	voice    Voice
	hub      events.Publisher
	opts     Options
	now      func() time.Time
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// New builds a dispatcher. voice and hub may be nil, and so may platform
// until SetPlatform is called; without one notifications reach the hub only.
func New(opts Options, platform Platform, users Users, voice Voice, hub events.Publisher, log zerolog.Logger) *Dispatcher {
	if opts.SnoozeMinutes <= 0 {
		opts.SnoozeMinutes = 10
	}
	return &Dispatcher{
		platform: platform,
		users:    users,
		voice:    voice,
		hub:      hub,
		opts:     opts,
		now:      time.Now,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// SetPlatform sets the push backend. Call it before the scheduler runs.
func (d *Dispatcher) SetPlatform(p Platform) {
	d.platform = p
}

// Dispatch shows a reminder to the medicine's owner. It returns false when
// the owner has not granted push notifications or delivery failed. Open app
// sessions get the reminder on the hub unless the owner denied
// notifications. Voice runs in the background and never affects the result.
func (d *Dispatcher) Dispatch(ctx context.Context, m *domain.Medicine, r domain.Reminder, timing domain.Timing) bool {
	log := d.log.With().Str("medicine_id", m.ID).Str("reminder_id", r.ID).Str("timing", string(timing)).Logger()

	user, err := d.users.GetUser(ctx, m.ElderlyUserID)
	if err != nil || user == nil {
		log.Warn().Err(err).Msg("reminder owner not found")
		metrics.DispatchTotal.WithLabelValues(string(timing), "no_user").Inc()
		return false
	}

	n := ReminderNotification(m, r, timing, d.now(), d.opts.SnoozeMinutes)
	perm, pushed := d.show(ctx, user, n)
	if perm == domain.PermissionDenied {
		log.Debug().Msg("notifications denied")
		metrics.DispatchTotal.WithLabelValues(string(timing), "denied").Inc()
		return false
	}
	d.publish(n)

	if !pushed {
		result := "error"
		switch {
		case perm != domain.PermissionGranted:
			result = "not_granted"
		case d.platform == nil:
			result = "no_platform"
		}
		log.Debug().Str("result", result).Msg("reminder not pushed")
		metrics.DispatchTotal.WithLabelValues(string(timing), result).Inc()
		return false
	}
	metrics.DispatchTotal.WithLabelValues(string(timing), "ok").Inc()

	if timing == domain.TimingNow && r.HasChannel(domain.ChannelVoice) && d.voice != nil {
		d.background(ctx, "medicine reminder", func(ctx context.Context) error {
			return d.voice.SpeakMedicineReminder(ctx, user, m)
		})
	}
	return true
}

// DispatchExpiry warns the owner and caretakers about an expired or soon
// expiring medicine.
func (d *Dispatcher) DispatchExpiry(ctx context.Context, m *domain.Medicine) bool {
	return d.toFamily(ctx, m.ElderlyUserID, ExpiryNotification(m, d.now()))
}

// DispatchStock warns about low stock and speaks the stock message to the
// owner.
func (d *Dispatcher) DispatchStock(ctx context.Context, m *domain.Medicine) bool {
	ok := d.toFamily(ctx, m.ElderlyUserID, StockNotification(m))
	if d.voice != nil {
		if user, err := d.users.GetUser(ctx, m.ElderlyUserID); err == nil && user != nil {
			d.background(ctx, "stock reminder", func(ctx context.Context) error {
				return d.voice.SpeakStockReminder(ctx, user, m)
			})
		}
	}
	return ok
}

// DispatchMissed tells caretakers that a reminder expired unanswered.
func (d *Dispatcher) DispatchMissed(ctx context.Context, m *domain.Medicine, r domain.Reminder) bool {
	elder, err := d.users.GetUser(ctx, m.ElderlyUserID)
	if err != nil || elder == nil {
		return false
	}
	carers, err := d.users.ListCaretakersOf(ctx, elder.ID)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", elder.ID).Msg("list caretakers")
		return false
	}
	n := MissedNotification(m, r, elder.Name)
	sent, inApp := false, false
	for _, c := range carers {
		perm, ok := d.show(ctx, c, n)
		sent = ok || sent
		inApp = inApp || perm != domain.PermissionDenied
	}
	if inApp {
		d.publish(n)
	}
	return sent
}

// DispatchEmergency confirms an SOS to the user who raised it and speaks
// the emergency message.
func (d *Dispatcher) DispatchEmergency(ctx context.Context, user *domain.User, contacts []domain.EmergencyContact) bool {
	if d.voice != nil {
		d.background(ctx, "emergency", func(ctx context.Context) error {
			return d.voice.SpeakEmergency(ctx, user)
		})
	}
	n := EmergencyNotification(user.ID, contacts)
	perm, ok := d.show(ctx, user, n)
	if perm != domain.PermissionDenied {
		d.publish(n)
	}
	return ok
}

// Wait blocks until background voice work is done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) toFamily(ctx context.Context, elderlyID string, n Notification) bool {
	sent, inApp := false, false
	if elder, err := d.users.GetUser(ctx, elderlyID); err == nil && elder != nil {
		var perm domain.Permission
		perm, sent = d.show(ctx, elder, n)
		inApp = perm != domain.PermissionDenied
	}
	carers, err := d.users.ListCaretakersOf(ctx, elderlyID)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", elderlyID).Msg("list caretakers")
	}
	for _, c := range carers {
		_, ok := d.show(ctx, c, n)
		sent = ok || sent
	}
	if sent || inApp {
		d.publish(n)
	}
	return sent
}

// show pushes n to user when notifications are granted. It returns the
// permission it found and whether the push went out.
func (d *Dispatcher) show(ctx context.Context, user *domain.User, n Notification) (domain.Permission, bool) {
	perm := d.permission(ctx, user)
	if perm != domain.PermissionGranted || d.platform == nil {
		return perm, false
	}
	if err := d.platform.Show(ctx, user, n); err != nil {
		d.log.Error().Err(err).Str("user_id", user.ID).Str("kind", string(n.Kind)).Msg("show notification")
		return perm, false
	}
	return perm, true
}

// permission asks the platform, or falls back to the stored choice when
// there is no platform.
func (d *Dispatcher) permission(ctx context.Context, user *domain.User) domain.Permission {
	if d.platform == nil {
		return user.NotificationPermission
	}
	perm, err := d.platform.RequestPermission(ctx, user)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("request permission")
		return domain.PermissionDefault
	}
	return perm
}

func (d *Dispatcher) publish(n Notification) {
	if d.hub == nil {
		return
	}
	d.hub.Publish(events.Event{
		Type:       events.Notification,
		UserID:     n.UserID,
		MedicineID: n.MedicineID,
		ReminderID: n.ReminderID,
		Title:      n.Title,
		Body:       n.Body,
		Actions:    n.ActionIDs(),
	})
}

func (d *Dispatcher) background(ctx context.Context, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), voiceTimeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Debug().Err(err).Str("what", what).Msg("voice failed")
		}
	}()
}
