package store

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, b := pendingNotification(), pendingNotification()
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, s.Save(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n := pendingNotification()
	require.NoError(t, s.Save(ctx, n))
	n.Title = "mutated after save"

	got, err := s.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Booking Confirmation", got.Title)

	got.Status = models.StatusFailed
	again, _ := s.FindByID(ctx, n.ID)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestMemoryStore_QueriesNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		n := pendingNotification()
		n.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Save(ctx, n))
	}
	other := pendingNotification()
	other.RecipientID = 2
	require.NoError(t, s.Save(ctx, other))

	list, err := s.FindByRecipient(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{list[0].ID, list[1].ID, list[2].ID})

	oldest, err := s.FindByRecipient(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, oldest, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{oldest[0].ID, oldest[1].ID, oldest[2].ID})

	read := list[0]
	read.MarkRead(base.Add(5 * time.Hour))
	require.NoError(t, s.Update(ctx, read))

	unread, err := s.FindUnreadByRecipient(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	count, err := s.CountUnreadByRecipient(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	empty, err := s.FindByRecipient(ctx, 99, true)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemoryStore_UpdateKeepsImmutableFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n := pendingNotification()
	require.NoError(t, s.Save(ctx, n))

	changed := n.Clone()
	changed.RecipientID = 42
	changed.CreatedAt = time.Now()
	changed.Status = models.StatusSent
	require.NoError(t, s.Update(ctx, changed))

	got, _ := s.FindByID(ctx, n.ID)
	assert.Equal(t, int64(1), got.RecipientID)
	assert.Equal(t, n.CreatedAt, got.CreatedAt)
	assert.Equal(t, models.StatusSent, got.Status)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindByID(context.Background(), 5)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = s.Update(context.Background(), &models.Notification{ID: 5})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_Contacts(t *testing.T) {
	s := NewMemoryStore()
	email := "guest@example.com"
	s.PutContact(Contact{RecipientID: 1, Email: &email})

	c, err := s.LookupContact(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, email, *c.Email)

	none, err := s.LookupContact(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, none.Email)
	assert.Nil(t, none.PushEndpoint)
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(context.Background(), pendingNotification())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n := pendingNotification()
	require.NoError(t, s.Save(ctx, n))

	applied, err := s.UpdateStatus(ctx, n.ID, models.StatusPending, models.StatusSent)
	require.NoError(t, err)
	assert.True(t, applied)

	// a second writer still expecting PENDING loses
	applied, err = s.UpdateStatus(ctx, n.ID, models.StatusPending, models.StatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _ := s.FindByID(ctx, n.ID)
	assert.Equal(t, models.StatusSent, got.Status)

	_, err = s.UpdateStatus(ctx, 99, models.StatusPending, models.StatusSent)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_UpdateStatusKeepsRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n := pendingNotification()
	require.NoError(t, s.Save(ctx, n))

	read := n.Clone()
	read.MarkRead(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.Update(ctx, read))

	applied, err := s.UpdateStatus(ctx, n.ID, models.StatusPending, models.StatusSent)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _ := s.FindByID(ctx, n.ID)
	assert.Equal(t, models.StatusRead, got.Status)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
}
