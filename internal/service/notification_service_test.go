package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo records Update calls on top of the in-memory store.
type countingRepo struct {
	*store.MemoryStore
	updates int
}

func (r *countingRepo) Update(ctx context.Context, n *models.Notification) error {
	r.updates++
	return r.MemoryStore.Update(ctx, n)
}

func seed(t *testing.T, repo store.NotificationRepository, recipient int64, status models.Status) *models.Notification {
	t.Helper()
	n := &models.Notification{
		RecipientID: recipient,
		Title:       "Booking Confirmation",
		Message:     "Your booking for GYM has been confirmed",
		Type:        models.TypeBookingConfirmed,
		Channel:     models.ChannelInApp,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Save(context.Background(), n))
	return n
}

func TestMarkAsRead_Idempotent(t *testing.T) {
	repo := &countingRepo{MemoryStore: store.NewMemoryStore()}
	svc := NewNotificationService(repo, logger.NewTestLogger(t))
	ctx := context.Background()
	n := seed(t, repo, 1, models.StatusSent)

	first, err := svc.MarkAsRead(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)
	assert.Equal(t, models.StatusRead, first.Status)

	second, err := svc.MarkAsRead(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.ReadAt, *second.ReadAt)
	assert.Equal(t, models.StatusRead, second.Status)
	assert.Equal(t, 1, repo.updates)
}

func TestMarkAsRead_FromAnyUnreadStatus(t *testing.T) {
	for _, status := range []models.Status{models.StatusPending, models.StatusSent, models.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			repo := store.NewMemoryStore()
			svc := NewNotificationService(repo, logger.NewNoOpLogger())
			n := seed(t, repo, 1, status)

			got, err := svc.MarkAsRead(context.Background(), n.ID)
			require.NoError(t, err)
			assert.True(t, got.IsRead)

			count, err := svc.CountUnread(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})
	}
}

func TestMarkAsRead_NotFound(t *testing.T) {
	svc := NewNotificationService(store.NewMemoryStore(), logger.NewNoOpLogger())

	_, err := svc.MarkAsRead(context.Background(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestQueries(t *testing.T) {
	repo := store.NewMemoryStore()
	svc := NewNotificationService(repo, logger.NewNoOpLogger())
	ctx := context.Background()

	a := seed(t, repo, 1, models.StatusSent)
	seed(t, repo, 1, models.StatusSent)
	seed(t, repo, 2, models.StatusSent)
	_, err := svc.MarkAsRead(ctx, a.ID)
	require.NoError(t, err)

	all, err := svc.ListForRecipient(ctx, 1, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err := svc.ListUnread(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.NotEqual(t, a.ID, unread[0].ID)

	count, err := svc.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	none, err := svc.ListForRecipient(ctx, 3, true)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.NoError(t, svc.Ready(ctx))
}

func TestToDTO_JSONShape(t *testing.T) {
	created := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	n := &models.Notification{
		ID:          3,
		RecipientID: 1,
		Title:       "Booking Confirmation",
		Message:     "m",
		Type:        models.TypeBookingConfirmed,
		Channel:     models.ChannelInApp,
		Status:      models.StatusSent,
		CreatedAt:   created,
	}

	raw, err := json.Marshal(ToDTO(n))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "userId", "title", "message", "type", "channel", "status", "isRead", "createdAt", "readAt"} {
		assert.Contains(t, fields, key)
	}
	assert.Nil(t, fields["readAt"])
	assert.Equal(t, "IN_APP", fields["channel"])
	assert.Equal(t, float64(1), fields["userId"])
}
