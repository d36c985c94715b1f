package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrnotify/internal/entity"
)

const inboxColumns = "id, notification_id, recipient_id, type, title, body, unread, created_at"

// InboxRepository materializes in-app deliveries for the recipient-facing
// inbox query.
type InboxRepository struct {
	db *pgxpool.Pool
}

func NewInboxRepository(db *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{db: db}
}

// Insert is idempotent per (notification, recipient): a redelivered in-app
// attempt must not duplicate the inbox row.
func (r *InboxRepository) Insert(ctx context.Context, e *entity.InboxEntry) error {
	const op = "repository.InboxRepository.Insert"

	sql, args, err := psql.Insert("inbox_entries").
		Columns("id", "notification_id", "recipient_id", "type", "title", "body", "unread", "created_at").
		Values(e.ID, e.NotificationID, e.RecipientID, e.Type, e.Title, e.Body, e.Unread, e.CreatedAt).
		Suffix("ON CONFLICT (notification_id, recipient_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (r *InboxRepository) List(ctx context.Context, recipientID uuid.UUID, filter entity.InboxFilter) ([]entity.InboxEntry, error) {
	const op = "repository.InboxRepository.List"

	query := psql.Select(inboxColumns).
		From("inbox_entries").
		Where(squirrel.Eq{"recipient_id": recipientID}).
		OrderBy("created_at DESC")

	if filter.Type != nil {
		query = query.Where(squirrel.Eq{"type": *filter.Type})
	}
	if filter.UnreadOnly {
		query = query.Where(squirrel.Eq{"unread": true})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var entries []entity.InboxEntry
	for rows.Next() {
		var e entity.InboxEntry
		if err := rows.Scan(&e.ID, &e.NotificationID, &e.RecipientID, &e.Type, &e.Title, &e.Body, &e.Unread, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return entries, nil
}

// MarkRead flips the unread flag; the acknowledgment itself goes through the
// ack tracker, not here.
func (r *InboxRepository) MarkRead(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	const op = "repository.InboxRepository.MarkRead"

	sql, args, err := psql.Update("inbox_entries").
		Set("unread", false).
		Where(squirrel.Eq{"notification_id": notificationID, "recipient_id": recipientID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, entity.ErrDataNotFound)
	}

	return nil
}
