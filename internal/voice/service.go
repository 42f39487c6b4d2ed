// Package voice speaks reminders to elderly users. Utterances per user play
// one at a time; a high priority utterance interrupts whatever is playing.
package voice

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/metrics"
)

// ErrInterrupted is returned for an utterance cut off or dropped by a high
// priority one.
var ErrInterrupted = errors.New("voice: interrupted")

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Kind tells the settings gate what an utterance is about.
type Kind string

const (
	KindReminder  Kind = "reminder"
	KindFood      Kind = "food"
	KindStock     Kind = "stock"
	KindAdherence Kind = "adherence"
	KindEmergency Kind = "emergency"
	KindScan      Kind = "scan"
	KindCustom    Kind = "custom"
)

// Utterance is one spoken message.
type Utterance struct {
	UserID   string
	ChatID   int64
	Text     string
	Language domain.VoiceLanguage
	Priority Priority
	Kind     Kind
	Rate     float64
	Volume   float64
}

// Engine turns an utterance into sound for the user. Speak returns once
// playback finished or ctx is cancelled.
type Engine interface {
	Speak(ctx context.Context, u Utterance) error
	Languages() []domain.VoiceLanguage
}

// Tuning returns the speech rate and volume for a priority. Urgent messages
// are slower and louder.
func Tuning(p Priority) (rate, volume float64) {
	switch p {
	case PriorityHigh:
		return 0.7, 1.0
	case PriorityLow:
		return 0.9, 0.8
	default:
		return 0.8, 0.9
	}
}

type request struct {
	u    Utterance
	gen  uint64
	done chan error
}

type queue struct {
	gen     uint64
	pending []*request
	cancel  context.CancelFunc
	running bool
}

type Service struct {
	engine Engine
	mu     sync.Mutex
	queues map[string]*queue
	now    func() time.Time
	pick   func(n int) int
	log    zerolog.Logger
}

// New returns a service. A nil engine makes every call a no-op.
func New(engine Engine, log zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		queues: make(map[string]*queue),
		now:    time.Now,
		pick:   rand.Intn,
		log:    log.With().Str("component", "voice").Logger(),
	}
}

// SetEngine replaces the engine. Call it before anything is spoken.
func (s *Service) SetEngine(engine Engine) {
	s.engine = engine
}

// Available reports whether anything can be spoken.
func (s *Service) Available() bool {
	return s != nil && s.engine != nil && len(s.engine.Languages()) > 0
}

// voiceFor returns the preferred language when the engine has it, else
// Hindi, else Indian English.
func (s *Service) voiceFor(pref domain.VoiceLanguage) (domain.VoiceLanguage, bool) {
	have := map[domain.VoiceLanguage]bool{}
	for _, l := range s.engine.Languages() {
		have[l] = true
	}
	for _, l := range []domain.VoiceLanguage{pref, domain.VoiceHindi, domain.VoiceEnglish} {
		if l != "" && have[l] {
			return l, true
		}
	}
	return "", false
}

// Speak plays u in the user's queue and waits for it. High priority clears
// the queue and interrupts the current utterance first.
func (s *Service) Speak(ctx context.Context, u Utterance) error {
	if !s.Available() {
		return nil
	}
	if u.Priority == "" {
		u.Priority = PriorityMedium
	}
	if u.Rate == 0 && u.Volume == 0 {
		u.Rate, u.Volume = Tuning(u.Priority)
	}

	req := &request{u: u, done: make(chan error, 1)}

	s.mu.Lock()
	q, ok := s.queues[u.UserID]
	if !ok {
		q = &queue{}
		s.queues[u.UserID] = q
	}
	if u.Priority == PriorityHigh {
		q.gen++
		for _, p := range q.pending {
			p.done <- ErrInterrupted
		}
		q.pending = nil
		if q.cancel != nil {
			q.cancel()
		}
	}
	req.gen = q.gen
	q.pending = append(q.pending, req)
	if !q.running {
		q.running = true
		go s.play(u.UserID, q)
	}
	s.mu.Unlock()

	select {
	case err := <-req.done:
		s.count(u.Priority, err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) count(p Priority, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrInterrupted):
		result = "interrupted"
	case err != nil:
		result = "error"
	}
	metrics.VoiceUtterancesTotal.WithLabelValues(string(p), result).Inc()
}

func (s *Service) play(userID string, q *queue) {
	for {
		s.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.cancel = nil
			delete(s.queues, userID)
			s.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		s.mu.Unlock()

		err := s.engine.Speak(ctx, req.u)

		s.mu.Lock()
		interrupted := req.gen != q.gen
		q.cancel = nil
		s.mu.Unlock()
		cancel()

		if interrupted {
			err = ErrInterrupted
		}
		req.done <- err
	}
}

// Stop silences a user: the current utterance is cut and queued ones are
// dropped.
func (s *Service) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[userID]
	if !ok {
		return
	}
	q.gen++
	for _, p := range q.pending {
		p.done <- ErrInterrupted
	}
	q.pending = nil
	if q.cancel != nil {
		q.cancel()
	}
}

// say applies the user's settings and speaks text.
func (s *Service) say(ctx context.Context, user *domain.User, text string, p Priority, kind Kind) error {
	if !s.Available() || user == nil || !user.VoiceActive() || text == "" {
		return nil
	}
	if user.Voice.EmergencyOnly && kind != KindEmergency {
		return nil
	}
	if p != PriorityHigh && user.Voice.InQuietHours(s.now()) {
		s.log.Debug().Str("user_id", user.ID).Str("kind", string(kind)).Msg("quiet hours, not speaking")
		return nil
	}
	lang, ok := s.voiceFor(user.Voice.Language)
	if !ok {
		return nil
	}
	return s.Speak(ctx, Utterance{
		UserID:   user.ID,
		ChatID:   user.TelegramChatID,
		Text:     text,
		Language: lang,
		Priority: p,
		Kind:     kind,
	})
}

func (s *Service) lang(user *domain.User) domain.VoiceLanguage {
	if !s.Available() || user == nil {
		return domain.VoiceHindi
	}
	l, ok := s.voiceFor(user.Voice.Language)
	if !ok {
		return domain.VoiceHindi
	}
	return l
}

// SpeakMedicineReminder speaks the dose reminder and, for medicines tied to
// meals, the food instruction after it.
func (s *Service) SpeakMedicineReminder(ctx context.Context, user *domain.User, m *domain.Medicine) error {
	lang := s.lang(user)
	if err := s.say(ctx, user, ReminderMessage(lang, m.Name, m.Dosage, s.pick), PriorityHigh, KindReminder); err != nil {
		return err
	}
	return s.say(ctx, user, FoodMessage(lang, m.FoodTiming), PriorityMedium, KindFood)
}

func (s *Service) SpeakStockReminder(ctx context.Context, user *domain.User, m *domain.Medicine) error {
	text, p := StockMessage(s.lang(user), m.Name, m.StockDays)
	return s.say(ctx, user, text, p, KindStock)
}

func (s *Service) SpeakAdherence(ctx context.Context, user *domain.User, streak int) error {
	return s.say(ctx, user, AdherenceMessage(s.lang(user), streak), PriorityLow, KindAdherence)
}

func (s *Service) SpeakEmergency(ctx context.Context, user *domain.User) error {
	return s.say(ctx, user, EmergencyMessage(s.lang(user)), PriorityHigh, KindEmergency)
}

// SpeakScanResult announces a label scan. An empty name reads as failure.
func (s *Service) SpeakScanResult(ctx context.Context, user *domain.User, name string) error {
	return s.say(ctx, user, ScanMessage(s.lang(user), name), PriorityMedium, KindScan)
}

func (s *Service) SpeakCustom(ctx context.Context, user *domain.User, text string, p Priority) error {
	return s.say(ctx, user, text, p, KindCustom)
}
