package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tazhate/medremind/internal/domain"
)

// Repository gives typed access to the collections on top of a Store.
// Lookups return nil, nil when the document does not exist.
type Repository struct {
	store Store
}

func NewRepository(s Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) Close() error {
	return r.store.Close()
}

func get[T any](ctx context.Context, s Store, collection, id string) (*T, error) {
	var v T
	err := s.Get(ctx, collection, id, &v)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](ctx context.Context, s Store, collection string, filters ...Filter) ([]*T, error) {
	docs, err := s.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, raw := range docs {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// === Medicines ===

func (r *Repository) SaveMedicine(ctx context.Context, m *domain.Medicine) error {
	return r.store.Set(ctx, CollectionMedicines, m.ID, m)
}

func (r *Repository) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	return get[domain.Medicine](ctx, r.store, CollectionMedicines, id)
}

func (r *Repository) DeleteMedicine(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionMedicines, id)
}

func (r *Repository) ListMedicinesByUser(ctx context.Context, elderlyUserID string) ([]*domain.Medicine, error) {
	return list[domain.Medicine](ctx, r.store, CollectionMedicines, Filter{Field: "elderlyUserId", Value: elderlyUserID})
}

func (r *Repository) ListMedicines(ctx context.Context) ([]*domain.Medicine, error) {
	return list[domain.Medicine](ctx, r.store, CollectionMedicines)
}

// === Users ===

func (r *Repository) SaveUser(ctx context.Context, u *domain.User) error {
	return r.store.Set(ctx, CollectionUsers, u.ID, u)
}

func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return get[domain.User](ctx, r.store, CollectionUsers, id)
}

func (r *Repository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return list[domain.User](ctx, r.store, CollectionUsers)
}

func (r *Repository) GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	users, err := list[domain.User](ctx, r.store, CollectionUsers, Filter{Field: "telegramChatId", Value: chatID})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// ListCaretakersOf returns caretakers that reference the elderly user.
func (r *Repository) ListCaretakersOf(ctx context.Context, elderlyUserID string) ([]*domain.User, error) {
	return list[domain.User](ctx, r.store, CollectionUsers, Filter{Field: "elderlyUserIds", Value: elderlyUserID})
}

// === Emergency contacts ===

func (r *Repository) SaveContact(ctx context.Context, c *domain.EmergencyContact) error {
	return r.store.Set(ctx, CollectionContacts, c.ID, c)
}

func (r *Repository) GetContact(ctx context.Context, id string) (*domain.EmergencyContact, error) {
	return get[domain.EmergencyContact](ctx, r.store, CollectionContacts, id)
}

func (r *Repository) DeleteContact(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionContacts, id)
}

// ListContacts returns the user's contacts, primary first.
func (r *Repository) ListContacts(ctx context.Context, userID string) ([]*domain.EmergencyContact, error) {
	contacts, err := list[domain.EmergencyContact](ctx, r.store, CollectionContacts, Filter{Field: "userId", Value: userID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].IsPrimary && !contacts[j].IsPrimary
	})
	return contacts, nil
}

// === Dose history ===

func (r *Repository) SaveDoseLog(ctx context.Context, l *domain.DoseLog) error {
	return r.store.Set(ctx, CollectionDoseLogs, l.ID, l)
}

func (r *Repository) ListDoseLogs(ctx context.Context, medicineID string) ([]*domain.DoseLog, error) {
	logs, err := list[domain.DoseLog](ctx, r.store, CollectionDoseLogs, Filter{Field: "medicineId", Value: medicineID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].At.Before(logs[j].At) })
	return logs, nil
}

// === Emergency alerts ===

func (r *Repository) SaveAlert(ctx context.Context, a *domain.EmergencyAlert) error {
	return r.store.Set(ctx, CollectionAlerts, a.ID, a)
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*domain.EmergencyAlert, error) {
	return get[domain.EmergencyAlert](ctx, r.store, CollectionAlerts, id)
}

func (r *Repository) ListAlerts(ctx context.Context, userID string) ([]*domain.EmergencyAlert, error) {
	return list[domain.EmergencyAlert](ctx, r.store, CollectionAlerts, Filter{Field: "userId", Value: userID})
}
