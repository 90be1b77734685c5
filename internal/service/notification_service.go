// Package service holds the read side of notifications and the mark-as-read operation.
package service

import (
	"context"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"
)

// NotificationDTO is the wire shape used by the query and stream endpoints.
type NotificationDTO struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Channel   string     `json:"channel"`
	Status    string     `json:"status"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}

func ToDTO(n *models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		UserID:    n.RecipientID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Channel:   string(n.Channel),
		Status:    string(n.Status),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}

func ToDTOs(list []*models.Notification) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, ToDTO(n))
	}
	return out
}

type NotificationService struct {
	repo   store.NotificationRepository
	now    func() time.Time
	logger logger.Logger
}

func NewNotificationService(repo store.NotificationRepository, log logger.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithFields(map[string]interface{}{"component": "notification-service"}),
	}
}

// ListForRecipient returns all notifications of a recipient by creation time.
func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID int64, newestFirst bool) ([]*models.Notification, error) {
	return s.repo.FindByRecipient(ctx, recipientID, newestFirst)
}

func (s *NotificationService) ListUnread(ctx context.Context, recipientID int64) ([]*models.Notification, error) {
	return s.repo.FindUnreadByRecipient(ctx, recipientID)
}

func (s *NotificationService) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return s.repo.CountUnreadByRecipient(ctx, recipientID)
}

func (s *NotificationService) Get(ctx context.Context, id int64) (*models.Notification, error) {
	return s.repo.FindByID(ctx, id)
}

// MarkAsRead is idempotent: a notification that is already read is returned
// unchanged and nothing is written.
func (s *NotificationService) MarkAsRead(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.MarkRead(s.now()) {
		return n, nil
	}
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, err
	}

	s.logger.Info("notification marked as read", map[string]interface{}{
		"notificationId": n.ID,
		"userId":         n.RecipientID,
	})
	return n, nil
}

// Ready reports whether the backing store answers.
func (s *NotificationService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
