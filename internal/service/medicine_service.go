package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/storage"
)

// CalendarMirror copies medicine schedules to an external calendar.
type CalendarMirror interface {
	PutMedicine(ctx context.Context, m *domain.Medicine) error
	DeleteMedicine(ctx context.Context, medicineID string) error
}

// MedicineUpdate carries the editable fields; nil leaves a field as is.
// ExpiryDate may be repeated unchanged but not changed.
type MedicineUpdate struct {
	Name         *string            `json:"name"`
	Dosage       *string            `json:"dosage"`
	Frequency    *domain.Frequency  `json:"frequency"`
	TimeSlots    []string           `json:"timeSlots"`
	StockDays    *int               `json:"stockDays"`
	ExpiryDate   *string            `json:"expiryDate"`
	FoodTiming   *domain.FoodTiming `json:"foodTiming"`
	Instructions *string            `json:"instructions"`
}

type MedicineService struct {
	repo      *storage.Repository
	reminders *ReminderService
	mirror    CalendarMirror
	hub       events.Publisher
	timezone  *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// NewMedicineService creates the service. mirror may be nil.
func NewMedicineService(repo *storage.Repository, reminders *ReminderService, mirror CalendarMirror, hub events.Publisher, tz *time.Location, log zerolog.Logger) *MedicineService {
	if tz == nil {
		tz = time.UTC
	}
	return &MedicineService{
		repo:      repo,
		reminders: reminders,
		mirror:    mirror,
		hub:       hub,
		timezone:  tz,
		now:       time.Now,
		log:       log.With().Str("component", "medicines").Logger(),
	}
}

// Create validates and stores a new medicine and arms its first reminder.
// An elderly actor who names no owner owns the medicine.
func (s *MedicineService) Create(ctx context.Context, actor *domain.User, m *domain.Medicine) (*domain.Medicine, error) {
	if m.ElderlyUserID == "" && actor.Role == domain.RoleElderly {
		m.ElderlyUserID = actor.ID
	}
	if err := s.checkOwner(ctx, actor, m.ElderlyUserID); err != nil {
		return nil, err
	}

	now := s.now().In(s.timezone)
	m.Normalize()
	if err := m.ValidateNew(now); err != nil {
		return nil, err
	}

	m.ID = uuid.NewString()
	m.AdherenceStreak = 0
	m.LastTaken = nil
	m.CreatedAt = now
	m.UpdatedAt = now

	if err := s.repo.SaveMedicine(ctx, m); err != nil {
		return nil, fmt.Errorf("save medicine: %w", err)
	}
	s.afterChange(ctx, m, true)

	s.log.Info().Str("medicine_id", m.ID).Str("name", m.Name).Str("user_id", m.ElderlyUserID).Msg("medicine created")
	return m, nil
}

// Get returns a medicine the actor may see.
func (s *MedicineService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Medicine, error) {
	m, err := s.repo.GetMedicine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	if !actor.CanManage(m.ElderlyUserID) {
		return nil, fmt.Errorf("medicine %s: %w", id, domain.ErrForbidden)
	}
	return m, nil
}

// List returns medicines of one elderly user, or of everyone the actor
// looks after when elderlyID is empty.
func (s *MedicineService) List(ctx context.Context, actor *domain.User, elderlyID string) ([]*domain.Medicine, error) {
	owners := []string{elderlyID}
	if elderlyID == "" {
		owners = []string{actor.ID}
		if actor.Role == domain.RoleCaretaker {
			owners = actor.ElderlyUserIDs
		}
	}

	var out []*domain.Medicine
	for _, id := range owners {
		if !actor.CanManage(id) {
			return nil, fmt.Errorf("medicines of %s: %w", id, domain.ErrForbidden)
		}
		meds, err := s.repo.ListMedicinesByUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list medicines: %w", err)
		}
		out = append(out, meds...)
	}
	return out, nil
}

// Update applies a partial edit. The expiry date and owner are fixed once
// the medicine exists.
func (s *MedicineService) Update(ctx context.Context, actor *domain.User, id string, u MedicineUpdate) (*domain.Medicine, error) {
	m, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if u.ExpiryDate != nil && *u.ExpiryDate != m.ExpiryDate {
		return nil, fmt.Errorf("%w: expiry date cannot be changed", domain.ErrValidation)
	}
	prevFrequency, prevSlots := m.Frequency, slices.Clone(m.TimeSlots)

	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Dosage != nil {
		m.Dosage = *u.Dosage
	}
	if u.Frequency != nil {
		m.Frequency = *u.Frequency
	}
	if u.TimeSlots != nil {
		m.TimeSlots = u.TimeSlots
	}
	if u.StockDays != nil {
		m.StockDays = *u.StockDays
	}
	if u.FoodTiming != nil {
		m.FoodTiming = *u.FoodTiming
	}
	if u.Instructions != nil {
		m.Instructions = *u.Instructions
	}

	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.now().In(s.timezone)

	if err := s.repo.SaveMedicine(ctx, m); err != nil {
		return nil, fmt.Errorf("save medicine: %w", err)
	}
	// Open reminders survive edits that leave the schedule alone.
	rescheduled := m.Frequency != prevFrequency || !slices.Equal(m.TimeSlots, prevSlots)
	s.afterChange(ctx, m, rescheduled)

	s.log.Info().Str("medicine_id", m.ID).Bool("rescheduled", rescheduled).Msg("medicine updated")
	return m, nil
}

// Delete removes a medicine and cancels its reminders.
func (s *MedicineService) Delete(ctx context.Context, actor *domain.User, id string) error {
	m, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMedicine(ctx, id); err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	s.reminders.Cancel(id)
	if s.mirror != nil {
		if err := s.mirror.DeleteMedicine(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("medicine_id", id).Msg("calendar delete")
		}
	}
	s.publish(m)

	s.log.Info().Str("medicine_id", id).Msg("medicine deleted")
	return nil
}

// Doses returns the dose history of a medicine, oldest first.
func (s *MedicineService) Doses(ctx context.Context, actor *domain.User, id string) ([]*domain.DoseLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListDoseLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}
	return logs, nil
}

func (s *MedicineService) checkOwner(ctx context.Context, actor *domain.User, elderlyID string) error {
	if elderlyID == "" {
		return fmt.Errorf("%w: elderly user is required", domain.ErrValidation)
	}
	if !actor.CanManage(elderlyID) {
		return fmt.Errorf("medicines of %s: %w", elderlyID, domain.ErrForbidden)
	}
	owner, err := s.repo.GetUser(ctx, elderlyID)
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}
	if owner == nil || owner.Role != domain.RoleElderly {
		return fmt.Errorf("%w: %s is not an elderly user", domain.ErrValidation, elderlyID)
	}
	return nil
}

func (s *MedicineService) afterChange(ctx context.Context, m *domain.Medicine, rescheduled bool) {
	arm := s.reminders.ArmNext
	if rescheduled {
		arm = s.reminders.Rearm
	}
	if _, err := arm(ctx, m); err != nil {
		s.log.Error().Err(err).Str("medicine_id", m.ID).Msg("arm reminder")
	}
	if s.mirror != nil {
		if err := s.mirror.PutMedicine(ctx, m); err != nil {
			s.log.Warn().Err(err).Str("medicine_id", m.ID).Msg("calendar sync")
		}
	}
	s.publish(m)
}

func (s *MedicineService) publish(m *domain.Medicine) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{Type: events.MedicineChanged, UserID: m.ElderlyUserID, MedicineID: m.ID})
}
