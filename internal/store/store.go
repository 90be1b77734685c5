// Package store persists notifications and looks up recipient contact details.
package store

import (
	"context"

	"notification-pipeline/internal/models"
)

// NotificationRepository is the persistence gateway of the pipeline and the query API.
// Implementations wrap storage failures in a PERSISTENCE_FAILED StandardError and
// report unknown ids with NOTIFICATION_NOT_FOUND.
type NotificationRepository interface {
	// Save inserts n and assigns n.ID.
	Save(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id int64) (*models.Notification, error)
	// FindByRecipient returns the recipient's notifications ordered by creation
	// time, newest first when newestFirst is set.
	FindByRecipient(ctx context.Context, recipientID int64, newestFirst bool) ([]*models.Notification, error)
	FindUnreadByRecipient(ctx context.Context, recipientID int64) ([]*models.Notification, error)
	CountUnreadByRecipient(ctx context.Context, recipientID int64) (int64, error)
	// Update writes the mutable fields of an existing notification.
	Update(ctx context.Context, n *models.Notification) error
	// UpdateStatus moves the stored row from one status to another and reports
	// whether it did. A row no longer in from is left untouched.
	UpdateStatus(ctx context.Context, id int64, from, to models.Status) (bool, error)
	Ping(ctx context.Context) error
}

// Contact is where a recipient can be reached outside the app.
type Contact struct {
	RecipientID  int64   `db:"recipient_id"`
	Email        *string `db:"email"`
	PushEndpoint *string `db:"push_endpoint_arn"`
}

// ContactLookup resolves recipient addresses for the external delivery channels.
type ContactLookup interface {
	LookupContact(ctx context.Context, recipientID int64) (*Contact, error)
}
