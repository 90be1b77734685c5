// Package factory builds pending notifications from decoded booking events.
package factory

import (
	"fmt"
	"time"

	"notification-pipeline/internal/models"
	"notification-pipeline/internal/pipeline/decoder"
)

const (
	BookingConfirmationTitle = "Booking Confirmation"
	bookingMessageFormat     = "Your booking for %s has been confirmed for %s to %s"
)

// Factory is pure apart from the clock.
type Factory struct {
	defaultChannel models.Channel
	now            func() time.Time
}

type Option func(*Factory)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// New returns a Factory that assigns defaultChannel when the event names none.
// An invalid defaultChannel falls back to IN_APP.
func New(defaultChannel models.Channel, opts ...Option) *Factory {
	if !defaultChannel.Valid() {
		defaultChannel = models.ChannelInApp
	}
	f := &Factory{defaultChannel: defaultChannel, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build returns a PENDING, unread notification for the event's recipient.
func (f *Factory) Build(event *models.BookingEvent) *models.Notification {
	channel := f.defaultChannel
	if event.Channel != "" {
		channel = event.Channel
	}

	return &models.Notification{
		RecipientID: event.RecipientID,
		Title:       BookingConfirmationTitle,
		Message: fmt.Sprintf(bookingMessageFormat,
			event.SubjectID,
			event.StartTime.Format(decoder.LocalDateTimeLayout),
			event.EndTime.Format(decoder.LocalDateTimeLayout),
		),
		Type:      models.TypeBookingConfirmed,
		Channel:   channel,
		Status:    models.StatusPending,
		IsRead:    false,
		CreatedAt: f.now().UTC(),
	}
}
