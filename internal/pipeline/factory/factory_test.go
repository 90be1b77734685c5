package factory

import (
	"testing"
	"time"

	"notification-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
)

func gymEvent() *models.BookingEvent {
	return &models.BookingEvent{
		RecipientID: 1,
		SubjectID:   "GYM",
		SubjectType: "AMENITY",
		StartTime:   time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 12, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestFactory_Build(t *testing.T) {
	fixed := time.Date(2025, 11, 30, 8, 0, 0, 0, time.UTC)
	f := New(models.ChannelInApp, WithClock(func() time.Time { return fixed }))

	n := f.Build(gymEvent())

	assert.Zero(t, n.ID)
	assert.Equal(t, int64(1), n.RecipientID)
	assert.Equal(t, "Booking Confirmation", n.Title)
	assert.Equal(t, "Your booking for GYM has been confirmed for 2025-12-01T10:00:00 to 2025-12-01T11:00:00", n.Message)
	assert.Equal(t, models.TypeBookingConfirmed, n.Type)
	assert.Equal(t, models.ChannelInApp, n.Channel)
	assert.Equal(t, models.StatusPending, n.Status)
	assert.False(t, n.IsRead)
	assert.Nil(t, n.ReadAt)
	assert.Equal(t, fixed, n.CreatedAt)
}

func TestFactory_Build_Channel(t *testing.T) {
	tests := []struct {
		name         string
		defaultCh    models.Channel
		eventChannel models.Channel
		want         models.Channel
	}{
		{"default in-app", models.ChannelInApp, "", models.ChannelInApp},
		{"configured default", models.ChannelEmail, "", models.ChannelEmail},
		{"event overrides default", models.ChannelInApp, models.ChannelPush, models.ChannelPush},
		{"invalid default falls back", models.Channel("FAX"), "", models.ChannelInApp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := gymEvent()
			ev.Channel = tt.eventChannel
			assert.Equal(t, tt.want, New(tt.defaultCh).Build(ev).Channel)
		})
	}
}

func TestFactory_Build_Deterministic(t *testing.T) {
	f := New(models.ChannelInApp)
	a, b := f.Build(gymEvent()), f.Build(gymEvent())
	assert.Equal(t, a.Title, b.Title)
	assert.Equal(t, a.Message, b.Message)
	assert.NotSame(t, a, b)
}
