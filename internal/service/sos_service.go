package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/metrics"
	"github.com/tazhate/medremind/internal/storage"
)

// SMSSender delivers text messages to phone numbers.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) error
}

// MessageSender posts plain text to a Telegram chat.
type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// EmergencyNotifier confirms an SOS to the person who raised it.
type EmergencyNotifier interface {
	DispatchEmergency(ctx context.Context, user *domain.User, contacts []domain.EmergencyContact) bool
}

const sosParallelism = 4

type SOSService struct {
	repo     *storage.Repository
	sms      SMSSender
	sender   MessageSender
	notifier EmergencyNotifier
	hub      events.Publisher
	timezone *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewSOSService creates the service. sms and sender may be nil; the
// corresponding channel is skipped.
func NewSOSService(repo *storage.Repository, sms SMSSender, sender MessageSender, notifier EmergencyNotifier, hub events.Publisher, tz *time.Location, log zerolog.Logger) *SOSService {
	if tz == nil {
		tz = time.UTC
	}
	return &SOSService{
		repo:     repo,
		sms:      sms,
		sender:   sender,
		notifier: notifier,
		hub:      hub,
		timezone: tz,
		now:      time.Now,
		log:      log.With().Str("component", "sos").Logger(),
	}
}

// SetSender attaches the Telegram sender once the bot exists.
func (s *SOSService) SetSender(sender MessageSender) {
	s.sender = sender
}

// EmergencyText renders the alert sent to contacts.
func EmergencyText(at time.Time, loc *domain.Location, personal string) string {
	var b strings.Builder
	b.WriteString("🆘 EMERGENCY ALERT 🆘\n\n")
	b.WriteString("This is an automated emergency message from MediRemind app.\n\n")
	b.WriteString("Patient needs immediate assistance!\n")
	fmt.Fprintf(&b, "Time: %s\n", at.Format("02 Jan 2006, 15:04 MST"))
	if loc != nil {
		fmt.Fprintf(&b, "Location: %s\n", loc.MapsURL())
		fmt.Fprintf(&b, "Accuracy: ±%gm\n", loc.Accuracy)
	} else {
		b.WriteString("Location: Unable to determine\n")
	}
	if personal != "" {
		fmt.Fprintf(&b, "\n%s\n", personal)
	}
	b.WriteString("\nPlease respond immediately or call emergency services if needed.")
	return b.String()
}

// Trigger raises an emergency for userID. Every contact gets an SMS and,
// when linked, a Telegram message; caretakers get the Telegram message too.
// Failures on individual channels are logged and do not fail the alert.
func (s *SOSService) Trigger(ctx context.Context, userID string, loc *domain.Location) (*domain.EmergencyAlert, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	contacts, err := s.repo.ListContacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	carers, err := s.repo.ListCaretakersOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list caretakers: %w", err)
	}

	now := s.now().In(s.timezone)
	alert := &domain.EmergencyAlert{
		ID:                uuid.NewString(),
		UserID:            userID,
		Location:          loc,
		Message:           EmergencyText(now, loc, user.EmergencyMessage),
		Timestamp:         now,
		Status:            domain.AlertActive,
		RespondedContacts: []string{},
	}
	if err := s.repo.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	metrics.SOSAlertsTotal.Inc()

	delivered := s.fanOut(ctx, alert, user, contacts, carers)

	reached := make([]domain.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if delivered[c.ID] {
			reached = append(reached, *c)
		}
	}
	if s.notifier != nil {
		s.notifier.DispatchEmergency(ctx, user, reached)
	}
	if s.hub != nil {
		s.hub.Publish(events.Event{Type: events.EmergencyAlert, UserID: userID, Title: "🆘 Emergency Alert Sent!", Body: alert.Message})
	}

	s.log.Warn().
		Str("alert_id", alert.ID).
		Str("user_id", userID).
		Int("contacts", len(contacts)).
		Int("reached", len(reached)).
		Bool("location", loc != nil).
		Msg("emergency alert raised")
	return alert, nil
}

func (s *SOSService) fanOut(ctx context.Context, alert *domain.EmergencyAlert, user *domain.User, contacts []*domain.EmergencyContact, carers []*domain.User) map[string]bool {
	var mu sync.Mutex
	delivered := make(map[string]bool, len(contacts))
	mark := func(id string) {
		mu.Lock()
		delivered[id] = true
		mu.Unlock()
	}

	// Telegram messages are sent as HTML.
	telegramText := html.EscapeString(alert.Message)

	var g errgroup.Group
	g.SetLimit(sosParallelism)

	for _, c := range contacts {
		c := c
		g.Go(func() error {
			if s.sms != nil {
				if err := s.sms.Send(ctx, c.PhoneNumber, alert.Message); err != nil {
					s.log.Error().Err(err).Str("contact_id", c.ID).Msg("emergency sms")
				} else {
					mark(c.ID)
				}
			}
			if s.sender != nil && c.TelegramChatID != 0 {
				if err := s.sender.SendMessage(c.TelegramChatID, telegramText); err != nil {
					s.log.Error().Err(err).Str("contact_id", c.ID).Msg("emergency telegram")
				} else {
					mark(c.ID)
				}
			}
			return nil
		})
	}

	if s.sender != nil {
		text := fmt.Sprintf("%s\n\nFrom: %s", telegramText, html.EscapeString(user.Name))
		for _, carer := range carers {
			carer := carer
			if carer.TelegramChatID == 0 {
				continue
			}
			g.Go(func() error {
				if err := s.sender.SendMessage(carer.TelegramChatID, text); err != nil {
					s.log.Error().Err(err).Str("caretaker_id", carer.ID).Msg("emergency telegram")
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	return delivered
}

// Resolve closes an alert.
func (s *SOSService) Resolve(ctx context.Context, actor *domain.User, alertID string) (*domain.EmergencyAlert, error) {
	a, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(a.UserID) {
		return nil, fmt.Errorf("alert %s: %w", alertID, domain.ErrForbidden)
	}
	a.Status = domain.AlertResolved
	if err := s.repo.SaveAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	return a, nil
}

// Acknowledge records that a contact responded.
func (s *SOSService) Acknowledge(ctx context.Context, alertID, contactID string) (*domain.EmergencyAlert, error) {
	a, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if c == nil || c.UserID != a.UserID {
		return nil, fmt.Errorf("contact %s: %w", contactID, domain.ErrNotFound)
	}
	for _, id := range a.RespondedContacts {
		if id == contactID {
			return a, nil
		}
	}
	a.RespondedContacts = append(a.RespondedContacts, contactID)
	if err := s.repo.SaveAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	return a, nil
}

// List returns the alerts of a user.
func (s *SOSService) List(ctx context.Context, actor *domain.User, userID string) ([]*domain.EmergencyAlert, error) {
	if userID == "" {
		userID = actor.ID
	}
	if !actor.CanManage(userID) {
		return nil, fmt.Errorf("alerts of %s: %w", userID, domain.ErrForbidden)
	}
	return s.repo.ListAlerts(ctx, userID)
}

func (s *SOSService) get(ctx context.Context, id string) (*domain.EmergencyAlert, error) {
	a, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}
