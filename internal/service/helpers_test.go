package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/scheduler"
	"github.com/tazhate/medremind/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type dispatched struct {
	reminderID string
	timing     domain.Timing
	snooze     bool
}

type fakeNotifier struct {
	mu       sync.Mutex
	fired    []dispatched
	missed   []string
	expiry   []string
	stock    []string
	reached  [][]domain.EmergencyContact
	delivery bool
}

func (n *fakeNotifier) Dispatch(_ context.Context, _ *domain.Medicine, r domain.Reminder, timing domain.Timing) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, dispatched{reminderID: r.ID, timing: timing, snooze: r.IsSnooze()})
	return n.delivery
}

func (n *fakeNotifier) DispatchMissed(_ context.Context, m *domain.Medicine, _ domain.Reminder) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missed = append(n.missed, m.ID)
	return true
}

func (n *fakeNotifier) DispatchExpiry(_ context.Context, m *domain.Medicine) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiry = append(n.expiry, m.Name)
	return true
}

func (n *fakeNotifier) DispatchStock(_ context.Context, m *domain.Medicine) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stock = append(n.stock, m.Name)
	return true
}

func (n *fakeNotifier) DispatchEmergency(_ context.Context, _ *domain.User, contacts []domain.EmergencyContact) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reached = append(n.reached, contacts)
	return true
}

type env struct {
	ctx       context.Context
	clock     *fakeClock
	repo      *storage.Repository
	sched     *scheduler.Scheduler
	notifier  *fakeNotifier
	hub       *events.Hub
	reminders *ReminderService
	medicines *MedicineService
	users     *UserService
	elder     *domain.User
}

// 2026-10-14 is a Wednesday.
var day0 = time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{t: day0}
	repo := storage.NewRepository(storage.NewMemoryStore())
	log := zerolog.Nop()

	sched := scheduler.New(scheduler.Options{EarlyWarning: 15 * time.Minute, ExpireAfter: 2 * time.Hour}, clock, log)
	notifier := &fakeNotifier{delivery: true}
	hub := events.NewHub()

	reminders := NewReminderService(repo, sched, notifier, hub, time.UTC, 10*time.Minute, log)
	reminders.now = clock.Now
	sched.SetHandler(reminders)

	medicines := NewMedicineService(repo, reminders, nil, hub, time.UTC, log)
	medicines.now = clock.Now

	users := NewUserService(repo, log)
	users.now = clock.Now

	elder, err := users.Register(ctx, &domain.User{Name: "Dadi", Role: domain.RoleElderly})
	require.NoError(t, err)

	return &env{
		ctx:       ctx,
		clock:     clock,
		repo:      repo,
		sched:     sched,
		notifier:  notifier,
		hub:       hub,
		reminders: reminders,
		medicines: medicines,
		users:     users,
		elder:     elder,
	}
}

func (e *env) at(hhmm string) {
	h, m, err := domain.ParseSlot(hhmm)
	if err != nil {
		panic(err)
	}
	e.clock.Set(time.Date(e.clock.Now().Year(), e.clock.Now().Month(), e.clock.Now().Day(), h, m, 0, 0, time.UTC))
	e.sched.RunDue(e.ctx)
}

func (e *env) nextDay() {
	e.clock.Set(e.clock.Now().AddDate(0, 0, 1))
}

func (e *env) metformin(t *testing.T) *domain.Medicine {
	t.Helper()
	m, err := e.medicines.Create(e.ctx, e.elder, &domain.Medicine{
		Name:       "Metformin",
		Dosage:     "500mg",
		Frequency:  domain.FrequencyTwiceDaily,
		TimeSlots:  []string{"08:00", "20:00"},
		StockDays:  30,
		ExpiryDate: "2027-06-30",
		FoodTiming: domain.FoodAfter,
	})
	require.NoError(t, err)
	return m
}

func (e *env) medicine(t *testing.T, id string) *domain.Medicine {
	t.Helper()
	m, err := e.repo.GetMedicine(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func (e *env) open(medicineID string) []domain.Reminder {
	return e.sched.OpenForMedicine(medicineID)
}
