package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/metrics"
	"github.com/tazhate/medremind/internal/scheduler"
	"github.com/tazhate/medremind/internal/storage"
)

// Reminders due this soon can be answered from the app before they fire.
const actionWindow = 30 * time.Minute

// Notifier delivers reminder notifications.
type Notifier interface {
	Dispatch(ctx context.Context, m *domain.Medicine, r domain.Reminder, timing domain.Timing) bool
	DispatchMissed(ctx context.Context, m *domain.Medicine, r domain.Reminder) bool
}

// ReminderService arms reminders for medicines and applies the user's
// response to them. It is the scheduler's fire handler.
type ReminderService struct {
	repo          *storage.Repository
	sched         *scheduler.Scheduler
	notifier      Notifier
	hub           events.Publisher
	timezone      *time.Location
	snoozeDefault int
	now           func() time.Time
	log           zerolog.Logger
}

func NewReminderService(repo *storage.Repository, sched *scheduler.Scheduler, notifier Notifier, hub events.Publisher, tz *time.Location, snoozeDefault time.Duration, log zerolog.Logger) *ReminderService {
	if tz == nil {
		tz = time.UTC
	}
	minutes := int(snoozeDefault / time.Minute)
	if minutes <= 0 {
		minutes = 10
	}
	return &ReminderService{
		repo:          repo,
		sched:         sched,
		notifier:      notifier,
		hub:           hub,
		timezone:      tz,
		snoozeDefault: minutes,
		now:           time.Now,
		log:           log.With().Str("component", "reminders").Logger(),
	}
}

// SnoozeDefault is the snooze length in minutes when none is given.
func (s *ReminderService) SnoozeDefault() int {
	return s.snoozeDefault
}

func (s *ReminderService) clock() time.Time {
	return s.now().In(s.timezone)
}

// ArmNext arms the next occurrence of a medicine unless one is already
// pending. Medicines without time slots get nothing.
func (s *ReminderService) ArmNext(ctx context.Context, m *domain.Medicine) (*domain.Reminder, error) {
	return s.armAfter(ctx, m, s.clock(), "")
}

// Rearm drops a medicine's pending reminders and arms its next occurrence.
// Used after the schedule changed.
func (s *ReminderService) Rearm(ctx context.Context, m *domain.Medicine) (*domain.Reminder, error) {
	s.sched.CancelMedicine(m.ID)
	return s.ArmNext(ctx, m)
}

// Cancel drops every pending reminder of a medicine.
func (s *ReminderService) Cancel(medicineID string) int {
	return s.sched.CancelMedicine(medicineID)
}

func (s *ReminderService) armAfter(ctx context.Context, m *domain.Medicine, after time.Time, exclude string) (*domain.Reminder, error) {
	if !m.HasSchedule() {
		return nil, nil
	}
	for _, open := range s.sched.OpenForMedicine(m.ID) {
		if open.ID != exclude && !open.IsSnooze() && open.FireAt.After(after) {
			return &open, nil
		}
	}

	slot, at, ok := scheduler.NextOccurrence(m, after)
	if !ok {
		return nil, nil
	}

	channels := []domain.Channel{domain.ChannelPush}
	owner, err := s.repo.GetUser(ctx, m.ElderlyUserID)
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	if owner != nil && owner.VoiceActive() {
		channels = append(channels, domain.ChannelVoice)
	}

	r, err := s.sched.Arm(domain.Reminder{
		MedicineID: m.ID,
		UserID:     m.ElderlyUserID,
		Slot:       slot,
		FireAt:     at,
		Channels:   channels,
	})
	if err != nil {
		return nil, fmt.Errorf("arm reminder: %w", err)
	}
	return &r, nil
}

// continueChain arms the occurrence after r. Regular reminders only; a
// snooze never extends the chain.
func (s *ReminderService) continueChain(ctx context.Context, m *domain.Medicine, r domain.Reminder) {
	if r.IsSnooze() {
		return
	}
	after := r.FireAt
	if now := s.clock(); now.After(after) {
		after = now
	}
	if _, err := s.armAfter(ctx, m, after, r.ID); err != nil {
		s.log.Error().Err(err).Str("medicine_id", m.ID).Msg("arm next occurrence")
	}
}

// Fire is called by the scheduler for early and due stages.
func (s *ReminderService) Fire(ctx context.Context, r domain.Reminder, timing domain.Timing) {
	m, err := s.repo.GetMedicine(ctx, r.MedicineID)
	if err != nil {
		s.log.Error().Err(err).Str("reminder_id", r.ID).Msg("load medicine for reminder")
		return
	}
	if m == nil {
		s.sched.Cancel(r.ID)
		return
	}

	s.notifier.Dispatch(ctx, m, r, timing)

	if timing == domain.TimingNow {
		s.continueChain(ctx, m, r)
	}
}

// Expire is called by the scheduler when nobody answered a reminder.
func (s *ReminderService) Expire(ctx context.Context, r domain.Reminder) {
	m, err := s.repo.GetMedicine(ctx, r.MedicineID)
	if err != nil || m == nil {
		return
	}
	s.record(ctx, m, r.ID, domain.ReminderExpired, 0)
	metrics.ActionsTotal.WithLabelValues(string(domain.ReminderExpired)).Inc()
	s.publish(events.ReminderExpired, m, r.ID, 0)
	s.notifier.DispatchMissed(ctx, m, r)
	s.continueChain(ctx, m, r)

	s.log.Info().Str("medicine_id", m.ID).Str("reminder_id", r.ID).Msg("reminder expired")
}

// Pending lists a user's open reminders.
func (s *ReminderService) Pending(userID string) []domain.Reminder {
	return s.sched.Pending(userID)
}

// Get returns a reminder known to the scheduler.
func (s *ReminderService) Get(id string) (domain.Reminder, bool) {
	return s.sched.Get(id)
}

// HandleAction applies a response to a specific reminder. A reminder that
// was already answered returns ErrNotPending.
func (s *ReminderService) HandleAction(ctx context.Context, reminderID string, a domain.Action) (*domain.Medicine, error) {
	r, ok := s.sched.Get(reminderID)
	if !ok {
		return nil, fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
	}
	if a.Medicine() != r.MedicineID {
		return nil, fmt.Errorf("%w: reminder %s belongs to another medicine", domain.ErrValidation, reminderID)
	}

	resolved, err := s.sched.Resolve(r.ID, statusFor(a))
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, &resolved)
}

// HandleMedicineAction applies a response given for a medicine rather than
// a reminder, as the in-app buttons do. The earliest open reminder that is
// already delivered or due within actionWindow is resolved with it.
func (s *ReminderService) HandleMedicineAction(ctx context.Context, a domain.Action) (*domain.Medicine, error) {
	horizon := s.clock().Add(actionWindow)
	for _, r := range s.sched.OpenForMedicine(a.Medicine()) {
		if r.Status != domain.ReminderDelivered && r.FireAt.After(horizon) {
			continue
		}
		m, err := s.HandleAction(ctx, r.ID, a)
		if errors.Is(err, domain.ErrNotPending) {
			continue
		}
		return m, err
	}
	return s.apply(ctx, a, nil)
}

func (s *ReminderService) apply(ctx context.Context, a domain.Action, r *domain.Reminder) (*domain.Medicine, error) {
	metrics.ActionsTotal.WithLabelValues(a.Kind()).Inc()

	var m *domain.Medicine
	var err error
	switch act := a.(type) {
	case domain.Taken:
		m, err = s.OnTaken(ctx, act.MedicineID, r)
	case domain.Skipped:
		m, err = s.OnSkipped(ctx, act.MedicineID, r)
	case domain.Snoozed:
		m, _, err = s.OnSnoozed(ctx, act.MedicineID, act.Minutes, r)
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", domain.ErrValidation, a)
	}
	if err != nil {
		return nil, err
	}
	if r != nil {
		s.continueChain(ctx, m, *r)
	}
	return m, nil
}

func statusFor(a domain.Action) domain.ReminderStatus {
	switch a.(type) {
	case domain.Taken:
		return domain.ReminderTaken
	case domain.Snoozed:
		return domain.ReminderSnoozed
	default:
		return domain.ReminderSkipped
	}
}

// OnTaken records a dose: lastTaken moves to now, the streak advances when
// the previous dose was on the preceding scheduled day, and the first dose
// of a day uses up a day of stock.
func (s *ReminderService) OnTaken(ctx context.Context, medicineID string, r *domain.Reminder) (*domain.Medicine, error) {
	m, err := s.mustMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	streak, firstToday := nextStreak(m, now)
	m.AdherenceStreak = streak
	if firstToday && m.StockDays > 0 {
		m.StockDays--
	}
	m.LastTaken = &now
	m.UpdatedAt = now

	if err := s.repo.SaveMedicine(ctx, m); err != nil {
		return nil, fmt.Errorf("save medicine: %w", err)
	}
	s.record(ctx, m, reminderID(r), domain.ReminderTaken, 0)
	s.publish(events.MedicineTaken, m, reminderID(r), 0)

	s.log.Info().
		Str("medicine_id", m.ID).
		Int("streak", m.AdherenceStreak).
		Int("stock_days", m.StockDays).
		Msg("dose taken")
	return m, nil
}

// OnSkipped records a skipped dose. Nothing else changes and nothing is
// armed for it.
func (s *ReminderService) OnSkipped(ctx context.Context, medicineID string, r *domain.Reminder) (*domain.Medicine, error) {
	m, err := s.mustMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, m, reminderID(r), domain.ReminderSkipped, 0)
	s.publish(events.MedicineSkipped, m, reminderID(r), 0)
	s.log.Info().Str("medicine_id", m.ID).Msg("dose skipped")
	return m, nil
}

// OnSnoozed arms a reminder exactly minutes from now. Any earlier snooze of
// the same chain still pending is replaced.
func (s *ReminderService) OnSnoozed(ctx context.Context, medicineID string, minutes int, from *domain.Reminder) (*domain.Medicine, domain.Reminder, error) {
	if minutes <= 0 {
		minutes = s.snoozeDefault
	}
	if minutes > domain.MaxSnoozeMinutes {
		return nil, domain.Reminder{}, fmt.Errorf("%w: snooze minutes must be at most %d", domain.ErrValidation, domain.MaxSnoozeMinutes)
	}
	m, err := s.mustMedicine(ctx, medicineID)
	if err != nil {
		return nil, domain.Reminder{}, err
	}

	next := domain.Reminder{
		MedicineID:  m.ID,
		UserID:      m.ElderlyUserID,
		Channels:    []domain.Channel{domain.ChannelPush},
		SnoozeCount: 1,
	}
	if from != nil {
		next.RootID = from.RootID
		next.Slot = from.Slot
		next.SnoozeCount = from.SnoozeCount + 1
		if len(from.Channels) > 0 {
			next.Channels = from.Channels
		}
	}

	for _, open := range s.sched.OpenForMedicine(m.ID) {
		if open.IsSnooze() && (from == nil || open.RootID == next.RootID) {
			s.sched.Cancel(open.ID)
		}
	}

	next.FireAt = s.clock().Add(time.Duration(minutes) * time.Minute)
	armed, err := s.sched.Arm(next)
	if err != nil {
		return nil, domain.Reminder{}, fmt.Errorf("arm snooze: %w", err)
	}

	s.record(ctx, m, reminderID(from), domain.ReminderSnoozed, minutes)
	s.publish(events.MedicineSnoozed, m, reminderID(from), minutes)
	s.log.Info().Str("medicine_id", m.ID).Int("minutes", minutes).Time("fire_at", armed.FireAt).Msg("dose snoozed")
	return m, armed, nil
}

// nextStreak applies reset-on-gap: a dose on the day after the previous one
// (a week after, for weekly medicines) extends the streak, another dose on
// the same day keeps it, anything else starts over.
func nextStreak(m *domain.Medicine, now time.Time) (streak int, firstToday bool) {
	if m.LastTaken == nil {
		return 1, true
	}
	gap := daysBetween(m.LastTaken.In(now.Location()), now)
	switch {
	case gap == 0:
		if m.AdherenceStreak < 1 {
			return 1, false
		}
		return m.AdherenceStreak, false
	case gap == m.Frequency.IntervalDays():
		return m.AdherenceStreak + 1, true
	default:
		return 1, true
	}
}

// daysBetween counts calendar days from a to b in b's location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func (s *ReminderService) mustMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	m, err := s.repo.GetMedicine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (s *ReminderService) record(ctx context.Context, m *domain.Medicine, reminderID string, action domain.ReminderStatus, snooze int) {
	l := &domain.DoseLog{
		ID:            uuid.NewString(),
		MedicineID:    m.ID,
		UserID:        m.ElderlyUserID,
		ReminderID:    reminderID,
		Action:        action,
		At:            s.clock(),
		SnoozeMinutes: snooze,
	}
	if err := s.repo.SaveDoseLog(ctx, l); err != nil {
		s.log.Error().Err(err).Str("medicine_id", m.ID).Str("action", string(action)).Msg("save dose log")
	}
}

func (s *ReminderService) publish(t events.Type, m *domain.Medicine, reminderID string, snooze int) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{
		Type:          t,
		UserID:        m.ElderlyUserID,
		MedicineID:    m.ID,
		ReminderID:    reminderID,
		SnoozeMinutes: snooze,
		Timestamp:     s.now(),
	})
}

func reminderID(r *domain.Reminder) string {
	if r == nil {
		return ""
	}
	return r.ID
}
