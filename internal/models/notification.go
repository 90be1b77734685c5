package models

import (
	"time"

	apperrors "notification-pipeline/internal/common/errors"
)

// Channel is the requested delivery route of a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
	ChannelInApp Channel = "IN_APP"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// NotificationType classifies the domain event behind a notification.
type NotificationType string

const (
	TypeBookingConfirmed NotificationType = "BOOKING_CONFIRMED"
)

// Status is the lifecycle state of a notification.
//
//	PENDING -> SENT | FAILED
//	SENT    -> READ
//	FAILED  -> READ
//
// DELIVERED is reserved for provider receipts and is never set by the pipeline.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusRead      Status = "READ"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent, StatusFailed:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// Notification is a persisted message addressed to one recipient.
type Notification struct {
	ID          int64            `json:"id" db:"id"`
	RecipientID int64            `json:"userId" db:"user_id"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	Type        NotificationType `json:"type" db:"notification_type"`
	Channel     Channel          `json:"channel" db:"channel"`
	Status      Status           `json:"status" db:"status"`
	IsRead      bool             `json:"isRead" db:"is_read"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
	ReadAt      *time.Time       `json:"readAt" db:"read_at"`
	Metadata    *string          `json:"metadata,omitempty" db:"metadata"`
}

// CanTransitionTo reports whether moving from the current status to next is allowed.
func (n *Notification) CanTransitionTo(next Status) bool {
	from, to := n.Status.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	// SENT and FAILED share a rank, so neither can follow the other
	return to > from
}

// TransitionTo moves the notification to next, rejecting regressions.
// Use MarkRead to enter READ so ReadAt stays consistent.
func (n *Notification) TransitionTo(next Status) error {
	if next == StatusRead {
		return apperrors.NewInvalidTransitionError(string(n.Status), string(next))
	}
	if !n.CanTransitionTo(next) {
		return apperrors.NewInvalidTransitionError(string(n.Status), string(next))
	}
	n.Status = next
	return nil
}

// MarkRead flags the notification as read. It reports whether anything changed;
// a notification that is already read keeps its original ReadAt.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.IsRead {
		return false
	}
	t := now
	n.IsRead = true
	n.ReadAt = &t
	n.Status = StatusRead
	return true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.Metadata != nil {
		m := *n.Metadata
		c.Metadata = &m
	}
	return &c
}
