package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"
)

// MemoryStore keeps notifications in process memory. It backs database.driver=memory
// and the tests. Stored values are copied on the way in and out.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	notifications map[int64]*models.Notification
	contacts      map[int64]Contact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[int64]*models.Notification),
		contacts:      make(map[int64]Contact),
	}
}

func (s *MemoryStore) Save(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	n.ID = s.nextID
	s.notifications[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	return n.Clone(), nil
}

func (s *MemoryStore) FindByRecipient(_ context.Context, recipientID int64, newestFirst bool) ([]*models.Notification, error) {
	out := s.filter(func(n *models.Notification) bool {
		return n.RecipientID == recipientID
	})
	if !newestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func (s *MemoryStore) FindUnreadByRecipient(_ context.Context, recipientID int64) ([]*models.Notification, error) {
	return s.filter(func(n *models.Notification) bool {
		return n.RecipientID == recipientID && !n.IsRead
	}), nil
}

func (s *MemoryStore) CountUnreadByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	unread, _ := s.FindUnreadByRecipient(ctx, recipientID)
	return int64(len(unread)), nil
}

func (s *MemoryStore) Update(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notifications[n.ID]
	if !ok {
		return apperrors.NewNotFoundError(n.ID)
	}

	updated := n.Clone()
	updated.RecipientID = existing.RecipientID
	updated.CreatedAt = existing.CreatedAt
	s.notifications[n.ID] = updated
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, from, to models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notifications[id]
	if !ok {
		return false, apperrors.NewNotFoundError(id)
	}
	if existing.Status != from || !existing.CanTransitionTo(to) {
		return false, nil
	}
	existing.Status = to
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// PutContact registers delivery addresses for a recipient.
func (s *MemoryStore) PutContact(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.RecipientID] = c
}

func (s *MemoryStore) LookupContact(_ context.Context, recipientID int64) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[recipientID]
	if !ok {
		return &Contact{RecipientID: recipientID}, nil
	}
	return &c, nil
}

// Len returns the number of stored notifications.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

func (s *MemoryStore) filter(keep func(*models.Notification) bool) []*models.Notification {
	s.mu.RLock()
	out := make([]*models.Notification, 0)
	for _, n := range s.notifications {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
