package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"

	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, user_id, title, message, notification_type, channel, status, is_read, created_at, read_at, metadata`

// PostgresStore implements NotificationRepository and ContactLookup on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open pool. Call InitSchema separately when migrations are wanted.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, n *models.Notification) error {
	const query = `
		INSERT INTO notifications (user_id, title, message, notification_type, channel, status, is_read, created_at, read_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err := s.db.GetContext(ctx, &id, query,
		n.RecipientID, n.Title, n.Message, n.Type, n.Channel, n.Status,
		n.IsRead, n.CreatedAt, n.ReadAt, n.Metadata,
	)
	if err != nil {
		return apperrors.NewPersistenceError("save", err)
	}
	n.ID = id
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("findById", err)
	}
	return &n, nil
}

func (s *PostgresStore) FindByRecipient(ctx context.Context, recipientID int64, newestFirst bool) ([]*models.Notification, error) {
	order := `created_at ASC, id ASC`
	if newestFirst {
		order = `created_at DESC, id DESC`
	}
	var out []*models.Notification
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY `+order,
		recipientID,
	)
	if err != nil {
		return nil, apperrors.NewPersistenceError("findByRecipient", err)
	}
	return out, nil
}

func (s *PostgresStore) FindUnreadByRecipient(ctx context.Context, recipientID int64) ([]*models.Notification, error) {
	var out []*models.Notification
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 AND is_read = FALSE ORDER BY created_at DESC, id DESC`,
		recipientID,
	)
	if err != nil {
		return nil, apperrors.NewPersistenceError("findUnreadByRecipient", err)
	}
	return out, nil
}

func (s *PostgresStore) CountUnreadByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		recipientID,
	)
	if err != nil {
		return 0, apperrors.NewPersistenceError("countUnreadByRecipient", err)
	}
	return count, nil
}

// Update never touches user_id or created_at.
func (s *PostgresStore) Update(ctx context.Context, n *models.Notification) error {
	const query = `
		UPDATE notifications
		SET title = $2, message = $3, notification_type = $4, channel = $5, status = $6, is_read = $7, read_at = $8, metadata = $9
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		n.ID, n.Title, n.Message, n.Type, n.Channel, n.Status, n.IsRead, n.ReadAt, n.Metadata,
	)
	if err != nil {
		return apperrors.NewPersistenceError("update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("update", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError(n.ID)
	}
	return nil
}

// UpdateStatus is a compare-and-set on status, so it never overwrites a read
// flag or a status written by someone else in the meantime.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, from, to models.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, apperrors.NewPersistenceError("updateStatus", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("updateStatus", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) LookupContact(ctx context.Context, recipientID int64) (*Contact, error) {
	var c Contact
	err := s.db.GetContext(ctx, &c,
		`SELECT recipient_id, email, push_endpoint_arn FROM recipient_contacts WHERE recipient_id = $1`,
		recipientID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &Contact{RecipientID: recipientID}, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("lookupContact", err)
	}
	return &c, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
