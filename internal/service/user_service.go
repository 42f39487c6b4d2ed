package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/internal/domain"
	"github.com/tazhate/medremind/internal/storage"
)

type UserService struct {
	repo *storage.Repository
	now  func() time.Time
	log  zerolog.Logger
}

func NewUserService(repo *storage.Repository, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, now: time.Now, log: log.With().Str("component", "users").Logger()}
}

// Register onboards a new user. Elderly users start with the default voice
// settings; notification permission starts undecided.
func (s *UserService) Register(ctx context.Context, u *domain.User) (*domain.User, error) {
	u.ID = uuid.NewString()
	u.NotificationPermission = domain.PermissionDefault
	u.TelegramChatID = 0
	u.CreatedAt = s.now()
	if u.Role == domain.RoleElderly && u.Voice == (domain.VoiceSettings{}) {
		u.Voice = domain.DefaultVoiceSettings()
	}
	if u.Language == "" {
		u.Language = "hi"
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	for _, id := range u.ElderlyUserIDs {
		if err := s.mustElderly(ctx, id); err != nil {
			return nil, err
		}
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

// ByChat returns the user linked to a Telegram chat, nil when none is.
func (s *UserService) ByChat(ctx context.Context, chatID int64) (*domain.User, error) {
	return s.repo.GetUserByChatID(ctx, chatID)
}

// LinkChat connects a Telegram chat to a user. A chat belongs to one user
// at a time.
func (s *UserService) LinkChat(ctx context.Context, userID string, chatID int64) (*domain.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	prev, err := s.repo.GetUserByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get user by chat: %w", err)
	}
	if prev != nil && prev.ID != u.ID {
		prev.TelegramChatID = 0
		prev.NotificationPermission = domain.PermissionDefault
		if err := s.repo.SaveUser(ctx, prev); err != nil {
			return nil, fmt.Errorf("unlink chat: %w", err)
		}
	}
	if u.TelegramChatID != chatID {
		u.NotificationPermission = domain.PermissionDefault
	}
	u.TelegramChatID = chatID
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// SetPermission records the user's answer to the permission prompt.
func (s *UserService) SetPermission(ctx context.Context, userID string, p domain.Permission) (*domain.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.NotificationPermission = p
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.log.Info().Str("user_id", u.ID).Str("permission", string(p)).Msg("notification permission changed")
	return u, nil
}

// UpdateVoice replaces the voice settings.
func (s *UserService) UpdateVoice(ctx context.Context, userID string, v domain.VoiceSettings) (*domain.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch v.Language {
	case "":
		v.Language = domain.VoiceHindi
	case domain.VoiceHindi, domain.VoiceEnglish:
	default:
		return nil, fmt.Errorf("%w: unsupported voice language %q", domain.ErrValidation, v.Language)
	}
	for _, hhmm := range []string{v.QuietStart, v.QuietEnd} {
		if hhmm == "" {
			continue
		}
		if _, _, err := domain.ParseSlot(hhmm); err != nil {
			return nil, fmt.Errorf("%w: quiet hours: %v", domain.ErrValidation, err)
		}
	}
	u.Voice = v
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// LinkElderly lets a caretaker manage an elderly user.
func (s *UserService) LinkElderly(ctx context.Context, caretakerID, elderlyID string) (*domain.User, error) {
	c, err := s.Get(ctx, caretakerID)
	if err != nil {
		return nil, err
	}
	if c.Role != domain.RoleCaretaker {
		return nil, fmt.Errorf("%w: only caretakers can look after someone", domain.ErrValidation)
	}
	if err := s.mustElderly(ctx, elderlyID); err != nil {
		return nil, err
	}
	if c.CanManage(elderlyID) {
		return c, nil
	}
	c.ElderlyUserIDs = append(c.ElderlyUserIDs, elderlyID)
	if err := s.repo.SaveUser(ctx, c); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return c, nil
}

// Caretakers lists who looks after an elderly user.
func (s *UserService) Caretakers(ctx context.Context, elderlyID string) ([]*domain.User, error) {
	return s.repo.ListCaretakersOf(ctx, elderlyID)
}

func (s *UserService) mustElderly(ctx context.Context, id string) error {
	e, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if e == nil || e.Role != domain.RoleElderly {
		return fmt.Errorf("%w: %s is not an elderly user", domain.ErrValidation, id)
	}
	return nil
}
