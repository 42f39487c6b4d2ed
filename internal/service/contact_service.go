package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/storage"
)

type ContactService struct {
	repo *storage.Repository
	now  func() time.Time
}

func NewContactService(repo *storage.Repository) *ContactService {
	return &ContactService{repo: repo, now: time.Now}
}

// Add stores an emergency contact for userID. A new primary contact
// demotes the previous one.
func (s *ContactService) Add(ctx context.Context, actor *domain.User, c *domain.EmergencyContact) (*domain.EmergencyContact, error) {
	if c.UserID == "" {
		c.UserID = actor.ID
	}
	if !actor.CanManage(c.UserID) {
		return nil, fmt.Errorf("contacts of %s: %w", c.UserID, domain.ErrForbidden)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListContacts(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if len(existing) == 0 {
		c.IsPrimary = true
	}

	c.ID = uuid.NewString()
	c.CreatedAt = s.now()
	if err := s.repo.SaveContact(ctx, c); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}
	if c.IsPrimary {
		if err := s.demoteOthers(ctx, existing, c.ID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// List returns contacts with the primary first.
func (s *ContactService) List(ctx context.Context, actor *domain.User, userID string) ([]*domain.EmergencyContact, error) {
	if userID == "" {
		userID = actor.ID
	}
	if !actor.CanManage(userID) {
		return nil, fmt.Errorf("contacts of %s: %w", userID, domain.ErrForbidden)
	}
	return s.repo.ListContacts(ctx, userID)
}

// SetPrimary makes one contact primary.
func (s *ContactService) SetPrimary(ctx context.Context, actor *domain.User, id string) (*domain.EmergencyContact, error) {
	c, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListContacts(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	c.IsPrimary = true
	if err := s.repo.SaveContact(ctx, c); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}
	return c, s.demoteOthers(ctx, existing, c.ID)
}

// Delete removes a contact.
func (s *ContactService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if _, err := s.get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeleteContact(ctx, id)
}

func (s *ContactService) get(ctx context.Context, actor *domain.User, id string) (*domain.EmergencyContact, error) {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("contact %s: %w", id, domain.ErrNotFound)
	}
	if !actor.CanManage(c.UserID) {
		return nil, fmt.Errorf("contact %s: %w", id, domain.ErrForbidden)
	}
	return c, nil
}

func (s *ContactService) demoteOthers(ctx context.Context, contacts []*domain.EmergencyContact, keepID string) error {
	for _, other := range contacts {
		if other.ID == keepID || !other.IsPrimary {
			continue
		}
		other.IsPrimary = false
		if err := s.repo.SaveContact(ctx, other); err != nil {
			return fmt.Errorf("demote contact: %w", err)
		}
	}
	return nil
}
