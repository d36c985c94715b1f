package repository

import (
	"context"
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

const deliveryColumns = `id, notification_id, recipient_id, channel, state, attempts, max_attempts,
	last_error, last_attempt_at, next_retry_at, delivered_at, read_at, confirmed_at,
	version, created_at, updated_at`

// DeliveryRepository owns every mutation of delivery_records. All state
// changes are guarded updates on (version, allowed source states): the
// first writer wins, the second gets ErrStateConflict. There is no
// last-writer-wins path.
type DeliveryRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryRepository(db *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) scanDelivery(scanner rowScanner) (*entity.DeliveryRecord, error) {
	var (
		d             entity.DeliveryRecord
		lastError     pgtype.Text
		lastAttemptAt pgtype.Timestamptz
		nextRetryAt   pgtype.Timestamptz
		deliveredAt   pgtype.Timestamptz
		readAt        pgtype.Timestamptz
		confirmedAt   pgtype.Timestamptz
	)

	err := scanner.Scan(
		&d.ID,
		&d.NotificationID,
		&d.RecipientID,
		&d.Channel,
		&d.State,
		&d.Attempts,
		&d.MaxAttempts,
		&lastError,
		&lastAttemptAt,
		&nextRetryAt,
		&deliveredAt,
		&readAt,
		&confirmedAt,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		d.LastError = &lastError.String
	}
	if lastAttemptAt.Valid {
		d.LastAttemptAt = &lastAttemptAt.Time
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = &nextRetryAt.Time
	}
	if deliveredAt.Valid {
		d.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		d.ReadAt = &readAt.Time
	}
	if confirmedAt.Valid {
		d.ConfirmedAt = &confirmedAt.Time
	}

	return &d, nil
}

// scanDeliveryWithDeadline scans the claim query's row shape: the record
// columns plus the parent notification's expires_at.
func (r *DeliveryRepository) scanDeliveryWithDeadline(scanner rowScanner) (*entity.DeliveryRecord, error) {
	var (
		d             entity.DeliveryRecord
		lastError     pgtype.Text
		lastAttemptAt pgtype.Timestamptz
		nextRetryAt   pgtype.Timestamptz
		deliveredAt   pgtype.Timestamptz
		readAt        pgtype.Timestamptz
		confirmedAt   pgtype.Timestamptz
		expiresAt     pgtype.Timestamptz
	)

	err := scanner.Scan(
		&d.ID,
		&d.NotificationID,
		&d.RecipientID,
		&d.Channel,
		&d.State,
		&d.Attempts,
		&d.MaxAttempts,
		&lastError,
		&lastAttemptAt,
		&nextRetryAt,
		&deliveredAt,
		&readAt,
		&confirmedAt,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		d.LastError = &lastError.String
	}
	if lastAttemptAt.Valid {
		d.LastAttemptAt = &lastAttemptAt.Time
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = &nextRetryAt.Time
	}
	if deliveredAt.Valid {
		d.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		d.ReadAt = &readAt.Time
	}
	if confirmedAt.Valid {
		d.ConfirmedAt = &confirmedAt.Time
	}
	if expiresAt.Valid {
		d.NotificationExpiresAt = &expiresAt.Time
	}

	return &d, nil
}

// CreateFanOut inserts the fan-out batch. The unique key on
// (notification_id, recipient_id, channel) plus DO NOTHING makes re-dispatch
// after a crash idempotent: existing lineages are resumed, never duplicated.
func (r *DeliveryRepository) CreateFanOut(ctx context.Context, records []entity.DeliveryRecord) (int64, error) {
	const op = "repository.DeliveryRepository.CreateFanOut"

	if len(records) == 0 {
		return 0, nil
	}

	builder := psql.Insert("delivery_records").
		Columns("id", "notification_id", "recipient_id", "channel", "state", "attempts", "max_attempts", "version", "created_at", "updated_at")
	for _, d := range records {
		builder = builder.Values(d.ID, d.NotificationID, d.RecipientID, d.Channel, d.State, d.Attempts, d.MaxAttempts, d.Version, d.CreatedAt, d.UpdatedAt)
	}
	sql, args, err := builder.
		Suffix("ON CONFLICT (notification_id, recipient_id, channel) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", op, err)
	}

	return res.RowsAffected(), nil
}

// PromotePending moves a notification's freshly created records into the
// scheduler's scan set.
func (r *DeliveryRepository) PromotePending(ctx context.Context, notificationID uuid.UUID, now time.Time) error {
	const op = "repository.DeliveryRepository.PromotePending"

	sql, args, err := psql.Update("delivery_records").
		Set("state", entity.DeliveryQueued).
		Set("next_retry_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"notification_id": notificationID, "state": entity.DeliveryPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

// ClaimDue atomically claims due queued/retrying records and flips them to
// delivering. SKIP LOCKED keeps concurrent engine instances from fighting
// over the same rows.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, limit uint64, now time.Time) ([]entity.DeliveryRecord, error) {
	const op = "repository.DeliveryRepository.ClaimDue"

	sql := fmt.Sprintf(`
		UPDATE delivery_records d
		SET state = $1, version = d.version + 1, claimed_at = $2, updated_at = $2
		FROM (
			SELECT dr.id, n.expires_at
			FROM delivery_records dr
			JOIN notifications n ON n.id = dr.notification_id
			WHERE dr.state = ANY($3)
			  AND dr.next_retry_at <= $2
			  AND (n.expires_at IS NULL OR n.expires_at > $2)
			ORDER BY dr.next_retry_at ASC
			LIMIT $4
			FOR UPDATE OF dr SKIP LOCKED
		) due
		WHERE d.id = due.id
		RETURNING %s, due.expires_at`, qualify("d", deliveryColumns))

	claimable := stateStrings([]entity.DeliveryState{entity.DeliveryQueued, entity.DeliveryRetrying})

	rows, err := r.db.Query(ctx, sql, entity.DeliveryDelivering, now, claimable, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var claimed []entity.DeliveryRecord
	for rows.Next() {
		d, err := r.scanDeliveryWithDeadline(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		claimed = append(claimed, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return claimed, nil
}

// Transition applies one state-machine step guarded by the caller's version
// and the machine's legal source states. Zero rows means the caller lost a
// race (or the record vanished) and must not assume its write happened.
func (r *DeliveryRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	version int64,
	to entity.DeliveryState,
	patch entity.DeliveryPatch,
) error {
	const op = "repository.DeliveryRepository.Transition"

	update := psql.Update("delivery_records").
		Set("state", to).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC())

	if patch.Attempts != nil {
		update = update.Set("attempts", *patch.Attempts)
	}
	if patch.LastError != nil {
		update = update.Set("last_error", *patch.LastError)
	}
	if patch.LastAttemptAt != nil {
		update = update.Set("last_attempt_at", *patch.LastAttemptAt)
	}
	if patch.ClearNextRetry {
		update = update.Set("next_retry_at", nil)
	} else if patch.NextRetryAt != nil {
		update = update.Set("next_retry_at", *patch.NextRetryAt)
	}
	if patch.DeliveredAt != nil {
		update = update.Set("delivered_at", *patch.DeliveredAt)
	}
	if patch.ReadAt != nil {
		update = update.Set("read_at", *patch.ReadAt)
	}
	if patch.ConfirmedAt != nil {
		update = update.Set("confirmed_at", *patch.ConfirmedAt)
	}

	sql, args, err := update.
		Where(squirrel.Eq{"id": id, "version": version}).
		Where(squirrel.Expr("state = ANY(?)", stateStrings(entity.TransitionSources(to)))).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, entity.ErrDeliveryNotFound) {
			return fmt.Errorf("%s: %w", op, entity.ErrDeliveryNotFound)
		}
		return fmt.Errorf("%s: %w", op, entity.ErrStateConflict)
	}

	return nil
}

func (r *DeliveryRepository) Get(ctx context.Context, id uuid.UUID) (*entity.DeliveryRecord, error) {
	const op = "repository.DeliveryRepository.Get"

	sql, args, err := psql.Select(deliveryColumns).
		From("delivery_records").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	d, err := r.scanDelivery(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDeliveryNotFound)
		}
		return nil, fmt.Errorf("%s: scan row: %w", op, err)
	}

	return d, nil
}

func (r *DeliveryRepository) GetByTuple(ctx context.Context, notificationID, recipientID uuid.UUID, channel entity.Channel) (*entity.DeliveryRecord, error) {
	const op = "repository.DeliveryRepository.GetByTuple"

	sql, args, err := psql.Select(deliveryColumns).
		From("delivery_records").
		Where(squirrel.Eq{
			"notification_id": notificationID,
			"recipient_id":    recipientID,
			"channel":         channel,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	d, err := r.scanDelivery(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDeliveryNotFound)
		}
		return nil, fmt.Errorf("%s: scan row: %w", op, err)
	}

	return d, nil
}

func (r *DeliveryRepository) ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]entity.DeliveryRecord, error) {
	const op = "repository.DeliveryRepository.ListByNotification"

	return r.list(ctx, op, squirrel.Eq{"notification_id": notificationID})
}

// Siblings returns the full lineage set for one (notification, recipient)
// pair, the fan-in unit for acknowledgment.
func (r *DeliveryRepository) Siblings(ctx context.Context, notificationID, recipientID uuid.UUID) ([]entity.DeliveryRecord, error) {
	const op = "repository.DeliveryRepository.Siblings"

	return r.list(ctx, op, squirrel.Eq{"notification_id": notificationID, "recipient_id": recipientID})
}

func (r *DeliveryRepository) list(ctx context.Context, op string, pred any) ([]entity.DeliveryRecord, error) {
	sql, args, err := psql.Select(deliveryColumns).
		From("delivery_records").
		Where(pred).
		OrderBy("created_at ASC, channel ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var records []entity.DeliveryRecord
	for rows.Next() {
		d, err := r.scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		records = append(records, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return records, nil
}

// SupersedeSiblings terminally closes every still-waiting sibling of an
// acknowledged delivery. Guarded by the supersedable state set, so a record
// that raced into a terminal state is left untouched.
func (r *DeliveryRepository) SupersedeSiblings(ctx context.Context, notificationID, recipientID uuid.UUID, keep entity.Channel, now time.Time) (int64, error) {
	const op = "repository.DeliveryRepository.SupersedeSiblings"

	supersedable := stateStrings([]entity.DeliveryState{
		entity.DeliveryPending, entity.DeliveryQueued, entity.DeliveryFailed, entity.DeliveryRetrying,
	})

	sql, args, err := psql.Update("delivery_records").
		Set("state", entity.DeliverySuperseded).
		Set("next_retry_at", nil).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"notification_id": notificationID, "recipient_id": recipientID}).
		Where(squirrel.NotEq{"channel": keep}).
		Where(squirrel.Expr("state = ANY(?)", supersedable)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", op, err)
	}

	return res.RowsAffected(), nil
}

// ExpireOverdue is the expiry sweep: every non-terminal record of a
// notification whose deadline passed goes to expired, regardless of its own
// next_retry_at.
func (r *DeliveryRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const op = "repository.DeliveryRepository.ExpireOverdue"

	const sql = `
		UPDATE delivery_records d
		SET state = $1,
		    next_retry_at = NULL,
		    last_error = COALESCE(d.last_error, 'notification expired'),
		    version = d.version + 1,
		    updated_at = $2
		FROM notifications n
		WHERE d.notification_id = n.id
		  AND n.expires_at IS NOT NULL
		  AND n.expires_at <= $2
		  AND d.state = ANY($3)`

	sweepable := stateStrings([]entity.DeliveryState{
		entity.DeliveryPending, entity.DeliveryQueued, entity.DeliveryFailed, entity.DeliveryRetrying,
	})

	res, err := r.db.Exec(ctx, sql, entity.DeliveryExpired, now, sweepable)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", op, err)
	}

	return res.RowsAffected(), nil
}

// ForceRetry is the administrative override: reopen a record with a fresh
// attempt budget and schedule it immediately. Deliberately bypasses the
// normal state machine for failed/expired records; lineages the recipient
// already saw (delivered/read/confirmed/superseded) stay closed.
func (r *DeliveryRepository) ForceRetry(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "repository.DeliveryRepository.ForceRetry"

	retryable := stateStrings([]entity.DeliveryState{
		entity.DeliveryQueued, entity.DeliveryFailed, entity.DeliveryRetrying, entity.DeliveryExpired,
	})

	sql, args, err := psql.Update("delivery_records").
		Set("state", entity.DeliveryRetrying).
		Set("attempts", 0).
		Set("next_retry_at", now).
		Set("last_error", nil).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Expr("state = ANY(?)", retryable)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, entity.ErrDeliveryNotFound) {
			return fmt.Errorf("%s: %w", op, entity.ErrDeliveryNotFound)
		}
		return fmt.Errorf("%s: %w", op, entity.ErrStateConflict)
	}

	return nil
}

// ForceExpire terminally closes one record from any non-terminal state.
func (r *DeliveryRepository) ForceExpire(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "repository.DeliveryRepository.ForceExpire"

	nonTerminal := stateStrings([]entity.DeliveryState{
		entity.DeliveryPending, entity.DeliveryQueued, entity.DeliveryDelivering,
		entity.DeliveryFailed, entity.DeliveryRetrying,
	})

	sql, args, err := psql.Update("delivery_records").
		Set("state", entity.DeliveryExpired).
		Set("next_retry_at", nil).
		Set("last_error", "force-expired by operator").
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Expr("state = ANY(?)", nonTerminal)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, entity.ErrDeliveryNotFound) {
			return fmt.Errorf("%s: %w", op, entity.ErrDeliveryNotFound)
		}
		return fmt.Errorf("%s: %w", op, entity.ErrStateConflict)
	}

	return nil
}

// ReleaseStale requeues delivering records whose claim outlived the lock
// window (a worker crashed mid-flight). Logically delivering -> failed ->
// retrying/expired collapsed into one sweep.
func (r *DeliveryRepository) ReleaseStale(ctx context.Context, claimedBefore, now time.Time) (int64, error) {
	const op = "repository.DeliveryRepository.ReleaseStale"

	const sql = `
		UPDATE delivery_records
		SET state = CASE WHEN attempts >= max_attempts THEN $1 ELSE $2 END,
		    next_retry_at = CASE WHEN attempts >= max_attempts THEN NULL ELSE $3 END,
		    last_error = 'delivery attempt interrupted',
		    version = version + 1,
		    updated_at = $3
		WHERE state = $4 AND claimed_at < $5`

	res, err := r.db.Exec(ctx, sql,
		entity.DeliveryExpired, entity.DeliveryRetrying, now,
		entity.DeliveryDelivering, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", op, err)
	}

	return res.RowsAffected(), nil
}
