package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrnotify/internal/entity"
)

const notificationColumns = "id, type, recipients, payload, channels, priority, dispatch_status, created_at, expires_at"

type NotifyRepository struct {
	db *pgxpool.Pool
}

func NewNotifyRepository(db *pgxpool.Pool) *NotifyRepository {
	return &NotifyRepository{db: db}
}

func (r *NotifyRepository) scanNotification(scanner rowScanner) (*entity.Notification, error) {
	var (
		n         entity.Notification
		payload   []byte
		channels  int16
		expiresAt pgtype.Timestamptz
	)

	err := scanner.Scan(
		&n.ID,
		&n.Type,
		&n.Recipients,
		&payload,
		&channels,
		&n.Priority,
		&n.Dispatch,
		&n.CreatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &n.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	n.Channels = entity.ChannelMask(channels)
	if expiresAt.Valid {
		n.ExpiresAt = &expiresAt.Time
	}

	return &n, nil
}

func (r *NotifyRepository) Create(ctx context.Context, notify *entity.Notification) error {
	const op = "repository.NotifyRepository.Create"

	payload, err := json.Marshal(notify.Payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	sql, args, err := psql.Insert("notifications").
		Columns("id", "type", "recipients", "payload", "channels", "priority", "dispatch_status", "created_at", "expires_at").
		Values(notify.ID, notify.Type, notify.Recipients, payload, int16(notify.Channels), notify.Priority, notify.Dispatch, notify.CreatedAt, notify.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	if _, err = r.db.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, entity.ErrConflictingData)
		}
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (r *NotifyRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	const op = "repository.NotifyRepository.GetByID"

	sql, args, err := psql.Select(notificationColumns).
		From("notifications").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	n, err := r.scanNotification(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDataNotFound)
		}
		return nil, fmt.Errorf("%s: scan row: %w", op, err)
	}

	return n, nil
}

func (r *NotifyRepository) SetDispatchStatus(ctx context.Context, id uuid.UUID, status entity.DispatchStatus) error {
	const op = "repository.NotifyRepository.SetDispatchStatus"

	sql, args, err := psql.Update("notifications").
		Set("dispatch_status", status).
		Where(squirrel.Eq{"id": id}).
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

// ListUndispatched feeds the startup recovery scan: notifications persisted
// and possibly published but whose fan-out never completed.
func (r *NotifyRepository) ListUndispatched(ctx context.Context, limit uint64) ([]uuid.UUID, error) {
	const op = "repository.NotifyRepository.ListUndispatched"

	sql, args, err := psql.Select("id").
		From("notifications").
		Where(squirrel.Eq{"dispatch_status": entity.DispatchQueued}).
		OrderBy("created_at ASC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return ids, nil
}

// Prune deletes notifications older than the cutoff once every delivery
// record reached a terminal state. Retention, not correctness.
func (r *NotifyRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	const op = "repository.NotifyRepository.Prune"

	const sql = `
		DELETE FROM notifications n
		WHERE n.created_at < $1
		  AND n.dispatch_status <> $2
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_records d
			WHERE d.notification_id = n.id
			  AND d.state = ANY($3)
		  )`

	nonTerminal := stateStrings([]entity.DeliveryState{
		entity.DeliveryPending, entity.DeliveryQueued, entity.DeliveryDelivering,
		entity.DeliveryFailed, entity.DeliveryRetrying,
	})

	res, err := r.db.Exec(ctx, sql, olderThan, entity.DispatchQueued, nonTerminal)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", op, err)
	}

	return res.RowsAffected(), nil
}
