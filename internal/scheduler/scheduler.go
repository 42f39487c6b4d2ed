// Package scheduler arms medicine reminders and runs the daily cron jobs.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/metrics"
)

// Resolved reminders stay readable for this long so late button presses get
// a clear "already handled" answer instead of "not found".
const resolvedRetention = 24 * time.Hour

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Handler receives fired stages. Calls happen on the scheduler goroutine
// without the scheduler lock held, so a handler may arm or resolve reminders.
type Handler interface {
	Fire(ctx context.Context, r domain.Reminder, timing domain.Timing)
	Expire(ctx context.Context, r domain.Reminder)
}

type Options struct {
	EarlyWarning time.Duration
	ExpireAfter  time.Duration
}

type stage int

const (
	stageEarly stage = iota
	stageDue
	stageExpire
	stagePurge
)

type event struct {
	at    time.Time
	seq   uint64
	entry *entry
	stage stage
	index int
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

type entry struct {
	rem    domain.Reminder
	events map[stage]*event
}

// Scheduler owns every armed reminder. Fire events live in one min-heap and
// are served by Run with a single timer.
type Scheduler struct {
	mu      sync.Mutex
	events  eventHeap
	arena   map[string]*entry
	seq     uint64
	opts    Options
	clock   Clock
	handler Handler
	wake    chan struct{}
	log     zerolog.Logger
}

func New(opts Options, clock Clock, log zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = 2 * time.Hour
	}
	return &Scheduler{
		arena: make(map[string]*entry),
		opts:  opts,
		clock: clock,
		wake:  make(chan struct{}, 1),
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Arm registers a reminder and its stages. Snooze reminders get no early
// stage. A FireAt already in the past fires on the next tick.
func (s *Scheduler) Arm(r domain.Reminder) (domain.Reminder, error) {
	if r.MedicineID == "" || r.FireAt.IsZero() {
		return domain.Reminder{}, fmt.Errorf("reminder needs a medicine and a fire time: %w", domain.ErrValidation)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RootID == "" {
		r.RootID = r.ID
	}
	if len(r.Channels) == 0 {
		r.Channels = []domain.Channel{domain.ChannelPush}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.arena[r.ID]; ok {
		if old.rem.Status.Open() {
			return domain.Reminder{}, fmt.Errorf("reminder %s already armed: %w", r.ID, domain.ErrValidation)
		}
		s.dropEvents(old)
	}

	now := s.clock.Now()
	r.Status = domain.ReminderPending
	r.CreatedAt = now
	r.DeliveredAt = nil
	r.ResolvedAt = nil

	e := &entry{rem: r, events: make(map[stage]*event, 3)}
	s.arena[r.ID] = e

	due := r.FireAt
	if due.Before(now) {
		due = now
	}
	if r.FireAt.After(now) && !r.IsSnooze() && s.opts.EarlyWarning > 0 {
		early := r.FireAt.Add(-s.opts.EarlyWarning)
		if early.Before(now) {
			early = now
		}
		s.push(e, stageEarly, early)
	}
	s.push(e, stageDue, due)
	s.push(e, stageExpire, due.Add(s.opts.ExpireAfter))

	s.updateGauge()
	s.notify()

	s.log.Debug().
		Str("reminder_id", r.ID).
		Str("medicine_id", r.MedicineID).
		Time("fire_at", r.FireAt).
		Bool("snooze", r.IsSnooze()).
		Msg("reminder armed")

	return cloneReminder(r), nil
}

// Resolve moves an open reminder to a final status and drops its remaining
// stages.
func (s *Scheduler) Resolve(id string, status domain.ReminderStatus) (domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.arena[id]
	if !ok {
		return domain.Reminder{}, fmt.Errorf("reminder %s: %w", id, domain.ErrNotFound)
	}
	if !e.rem.Status.Open() {
		return cloneReminder(e.rem), fmt.Errorf("reminder %s is %s: %w", id, e.rem.Status, domain.ErrNotPending)
	}
	s.finish(e, status, s.clock.Now())
	s.updateGauge()
	s.notify()
	return cloneReminder(e.rem), nil
}

// Cancel marks an open reminder cancelled. It reports whether anything was
// cancelled.
func (s *Scheduler) Cancel(id string) bool {
	_, err := s.Resolve(id, domain.ReminderCancelled)
	return err == nil
}

// CancelMedicine cancels every open reminder of a medicine.
func (s *Scheduler) CancelMedicine(medicineID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	n := 0
	for _, e := range s.arena {
		if e.rem.MedicineID == medicineID && e.rem.Status.Open() {
			s.finish(e, domain.ReminderCancelled, now)
			n++
		}
	}
	if n > 0 {
		s.updateGauge()
		s.notify()
	}
	return n
}

func (s *Scheduler) Get(id string) (domain.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.arena[id]
	if !ok {
		return domain.Reminder{}, false
	}
	return cloneReminder(e.rem), true
}

// Pending lists the open reminders of a user ordered by fire time. An empty
// userID lists everyone's.
func (s *Scheduler) Pending(userID string) []domain.Reminder {
	return s.openWhere(func(r *domain.Reminder) bool {
		return userID == "" || r.UserID == userID
	})
}

// OpenForMedicine lists the open reminders of one medicine.
func (s *Scheduler) OpenForMedicine(medicineID string) []domain.Reminder {
	return s.openWhere(func(r *domain.Reminder) bool {
		return r.MedicineID == medicineID
	})
}

func (s *Scheduler) openWhere(keep func(r *domain.Reminder) bool) []domain.Reminder {
	s.mu.Lock()
	out := make([]domain.Reminder, 0)
	for _, e := range s.arena {
		if e.rem.Status.Open() && keep(&e.rem) {
			out = append(out, cloneReminder(e.rem))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Next returns when the earliest stage is due.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return time.Time{}, false
	}
	return s.events[0].at, true
}

type firing struct {
	rem   domain.Reminder
	stage stage
}

// RunDue fires every stage due at the current clock time and returns how
// many handler calls were made. Run calls it on each timer tick.
func (s *Scheduler) RunDue(ctx context.Context) int {
	s.mu.Lock()
	now := s.clock.Now()
	var due []firing
	for len(s.events) > 0 && !s.events[0].at.After(now) {
		ev := heap.Pop(&s.events).(*event)
		e := ev.entry
		if s.arena[e.rem.ID] != e {
			continue
		}
		delete(e.events, ev.stage)

		switch ev.stage {
		case stageEarly:
			if e.rem.Status == domain.ReminderPending {
				due = append(due, firing{rem: cloneReminder(e.rem), stage: stageEarly})
			}
		case stageDue:
			if e.rem.Status == domain.ReminderPending {
				e.rem.Status = domain.ReminderDelivered
				at := now
				e.rem.DeliveredAt = &at
				due = append(due, firing{rem: cloneReminder(e.rem), stage: stageDue})
			}
		case stageExpire:
			if e.rem.Status.Open() {
				s.finish(e, domain.ReminderExpired, now)
				due = append(due, firing{rem: cloneReminder(e.rem), stage: stageExpire})
			}
		case stagePurge:
			delete(s.arena, e.rem.ID)
		}
	}
	s.updateGauge()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return 0
	}
	for _, f := range due {
		switch f.stage {
		case stageEarly:
			handler.Fire(ctx, f.rem, domain.TimingEarly)
		case stageDue:
			handler.Fire(ctx, f.rem, domain.TimingNow)
		case stageExpire:
			handler.Expire(ctx, f.rem)
		}
	}
	return len(due)
}

// Run serves the heap until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Msg("scheduler started")
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.RunDue(ctx)

		wait := time.Hour
		if next, ok := s.Next(); ok {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// finish must be called with mu held.
func (s *Scheduler) finish(e *entry, status domain.ReminderStatus, now time.Time) {
	e.rem.Status = status
	at := now
	e.rem.ResolvedAt = &at
	s.dropEvents(e)
	s.push(e, stagePurge, now.Add(resolvedRetention))
}

func (s *Scheduler) dropEvents(e *entry) {
	for st, ev := range e.events {
		heap.Remove(&s.events, ev.index)
		delete(e.events, st)
	}
}

func (s *Scheduler) push(e *entry, st stage, at time.Time) {
	s.seq++
	ev := &event{at: at, seq: s.seq, entry: e, stage: st}
	heap.Push(&s.events, ev)
	e.events[st] = ev
}

func (s *Scheduler) updateGauge() {
	open := 0
	for _, e := range s.arena {
		if e.rem.Status.Open() {
			open++
		}
	}
	metrics.PendingReminders.Set(float64(open))
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func cloneReminder(r domain.Reminder) domain.Reminder {
	r.Channels = append([]domain.Channel(nil), r.Channels...)
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		r.DeliveredAt = &t
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}
