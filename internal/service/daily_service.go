package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/storage"
)

// WarningNotifier sends the daily expiry and stock warnings.
type WarningNotifier interface {
	DispatchExpiry(ctx context.Context, m *domain.Medicine) bool
	DispatchStock(ctx context.Context, m *domain.Medicine) bool
}

// AdherenceSpeaker speaks the evening encouragement.
type AdherenceSpeaker interface {
	SpeakAdherence(ctx context.Context, user *domain.User, streak int) error
}

// DailyService holds the work behind the cron jobs.
type DailyService struct {
	repo           *storage.Repository
	reminders      *ReminderService
	warnings       WarningNotifier
	voice          AdherenceSpeaker
	sender         MessageSender
	timezone       *time.Location
	expiryWarnDays int
	stockWarnDays  int
	now            func() time.Time
	log            zerolog.Logger
}

func NewDailyService(repo *storage.Repository, reminders *ReminderService, warnings WarningNotifier, voice AdherenceSpeaker, tz *time.Location, expiryWarnDays, stockWarnDays int, log zerolog.Logger) *DailyService {
	if tz == nil {
		tz = time.UTC
	}
	return &DailyService{
		repo:           repo,
		reminders:      reminders,
		warnings:       warnings,
		voice:          voice,
		timezone:       tz,
		expiryWarnDays: expiryWarnDays,
		stockWarnDays:  stockWarnDays,
		now:            time.Now,
		log:            log.With().Str("component", "daily").Logger(),
	}
}

func (s *DailyService) SetSender(sender MessageSender) {
	s.sender = sender
}

// MorningBriefing sends each elderly user and their caretakers the day's
// dose plan.
func (s *DailyService) MorningBriefing(ctx context.Context) error {
	if s.sender == nil {
		return nil
	}
	return s.forEachElder(ctx, func(elder *domain.User, meds []*domain.Medicine) {
		text := BriefingText(elder, meds, s.now().In(s.timezone))
		s.sendFamily(ctx, elder, text)
	})
}

// BriefingText lists today's doses in time order as Telegram HTML.
func BriefingText(elder *domain.User, meds []*domain.Medicine, now time.Time) string {
	type dose struct {
		slot string
		med  *domain.Medicine
	}
	var doses []dose
	for _, m := range meds {
		if m.Frequency == domain.FrequencyWeekly && !m.CreatedAt.IsZero() && m.CreatedAt.In(now.Location()).Weekday() != now.Weekday() {
			continue
		}
		for _, slot := range m.TimeSlots {
			doses = append(doses, dose{slot: slot, med: m})
		}
	}
	sort.SliceStable(doses, func(i, j int) bool { return doses[i].slot < doses[j].slot })

	var b strings.Builder
	fmt.Fprintf(&b, "☀️ <b>Good morning, %s!</b>\n\n", html.EscapeString(elder.Name))
	if len(doses) == 0 {
		b.WriteString("No medicines scheduled today.")
		return b.String()
	}
	fmt.Fprintf(&b, "<b>Today's medicines (%d):</b>\n\n", len(doses))
	for _, d := range doses {
		fmt.Fprintf(&b, "• %s  %s %s", domain.FormatSlot(d.slot), html.EscapeString(d.med.Name), html.EscapeString(d.med.Dosage))
		if note := d.med.FoodNote(); note != "" {
			fmt.Fprintf(&b, " (%s)", strings.ToLower(note))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CheckExpiry warns about medicines expired or expiring within the warning
// window.
func (s *DailyService) CheckExpiry(ctx context.Context) error {
	meds, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return fmt.Errorf("list medicines: %w", err)
	}
	now := s.now().In(s.timezone)
	for _, m := range meds {
		if m.DaysUntilExpiry(now) <= s.expiryWarnDays {
			s.warnings.DispatchExpiry(ctx, m)
		}
	}
	return nil
}

// CheckStock warns about medicines running low.
func (s *DailyService) CheckStock(ctx context.Context) error {
	meds, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return fmt.Errorf("list medicines: %w", err)
	}
	for _, m := range meds {
		if m.HasSchedule() && m.IsLowStock(s.stockWarnDays) {
			s.warnings.DispatchStock(ctx, m)
		}
	}
	return nil
}

// EveningSummary reports the day's doses and encourages the elderly user.
func (s *DailyService) EveningSummary(ctx context.Context) error {
	today := domain.StartOfDay(s.now().In(s.timezone))
	return s.forEachElder(ctx, func(elder *domain.User, meds []*domain.Medicine) {
		if len(meds) == 0 {
			return
		}
		counts := map[domain.ReminderStatus]int{}
		best := 0
		for _, m := range meds {
			if m.AdherenceStreak > best {
				best = m.AdherenceStreak
			}
			logs, err := s.repo.ListDoseLogs(ctx, m.ID)
			if err != nil {
				s.log.Error().Err(err).Str("medicine_id", m.ID).Msg("list dose logs")
				continue
			}
			for _, l := range logs {
				if !l.At.In(s.timezone).Before(today) {
					counts[l.Action]++
				}
			}
		}

		if s.sender != nil {
			s.sendFamily(ctx, elder, SummaryText(elder, counts, best))
		}
		if s.voice != nil && best > 0 {
			if err := s.voice.SpeakAdherence(ctx, elder, best); err != nil {
				s.log.Debug().Err(err).Str("user_id", elder.ID).Msg("adherence voice")
			}
		}
	})
}

// SummaryText renders the evening summary as Telegram HTML.
func SummaryText(elder *domain.User, counts map[domain.ReminderStatus]int, streak int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌙 <b>Evening summary for %s</b>\n\n", html.EscapeString(elder.Name))
	fmt.Fprintf(&b, "✅ Taken: %d\n", counts[domain.ReminderTaken])
	fmt.Fprintf(&b, "❌ Skipped: %d\n", counts[domain.ReminderSkipped])
	fmt.Fprintf(&b, "❗ Missed: %d\n", counts[domain.ReminderExpired])
	if n := counts[domain.ReminderSnoozed]; n > 0 {
		fmt.Fprintf(&b, "⏰ Snoozed: %d\n", n)
	}
	if streak > 0 {
		fmt.Fprintf(&b, "\n🔥 Best streak: %d %s", streak, plural(streak, "day"))
	}
	return b.String()
}

// RearmAll arms every scheduled medicine that has nothing pending. It runs
// at startup and nightly.
func (s *DailyService) RearmAll(ctx context.Context) error {
	meds, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return fmt.Errorf("list medicines: %w", err)
	}
	armed := 0
	for _, m := range meds {
		r, err := s.reminders.ArmNext(ctx, m)
		if err != nil {
			s.log.Error().Err(err).Str("medicine_id", m.ID).Msg("arm reminder")
			continue
		}
		if r != nil {
			armed++
		}
	}
	s.log.Info().Int("medicines", len(meds)).Int("armed", armed).Msg("reminders armed")
	return nil
}

func (s *DailyService) forEachElder(ctx context.Context, fn func(elder *domain.User, meds []*domain.Medicine)) error {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.Role != domain.RoleElderly {
			continue
		}
		meds, err := s.repo.ListMedicinesByUser(ctx, u.ID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", u.ID).Msg("list medicines")
			continue
		}
		fn(u, meds)
	}
	return nil
}

func (s *DailyService) sendFamily(ctx context.Context, elder *domain.User, text string) {
	chats := []int64{}
	if elder.TelegramChatID != 0 {
		chats = append(chats, elder.TelegramChatID)
	}
	carers, err := s.repo.ListCaretakersOf(ctx, elder.ID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", elder.ID).Msg("list caretakers")
	}
	for _, c := range carers {
		if c.TelegramChatID != 0 {
			chats = append(chats, c.TelegramChatID)
		}
	}
	for _, chat := range chats {
		if err := s.sender.SendMessage(chat, text); err != nil {
			s.log.Error().Err(err).Int64("chat_id", chat).Msg("send daily message")
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
