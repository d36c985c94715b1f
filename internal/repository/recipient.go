package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrnotify/internal/entity"
)

const recipientColumns = "id, email, phone, device_token, whatsapp, channels"

// RecipientRepository reads the per-channel addressing and opt-in mask the
// selector needs. The employee master record is owned elsewhere; this table
// is the engine's projection of it.
type RecipientRepository struct {
	db *pgxpool.Pool
}

func NewRecipientRepository(db *pgxpool.Pool) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) scanRecipient(scanner rowScanner) (*entity.Recipient, error) {
	var (
		rcp      entity.Recipient
		channels int16
	)
	err := scanner.Scan(&rcp.ID, &rcp.Email, &rcp.Phone, &rcp.DeviceToken, &rcp.WhatsApp, &channels)
	if err != nil {
		return nil, err
	}
	rcp.Channels = entity.ChannelMask(channels)
	return &rcp, nil
}

func (r *RecipientRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Recipient, error) {
	const op = "repository.RecipientRepository.Get"

	sql, args, err := psql.Select(recipientColumns).
		From("recipients").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rcp, err := r.scanRecipient(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDataNotFound)
		}
		return nil, fmt.Errorf("%s: scan row: %w", op, err)
	}

	return rcp, nil
}

func (r *RecipientRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Recipient, error) {
	const op = "repository.RecipientRepository.ListByIDs"

	sql, args, err := psql.Select(recipientColumns).
		From("recipients").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var recipients []entity.Recipient
	for rows.Next() {
		rcp, err := r.scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		recipients = append(recipients, *rcp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return recipients, nil
}

// Upsert keeps the projection in sync when the HR side pushes address or
// preference changes.
func (r *RecipientRepository) Upsert(ctx context.Context, rcp *entity.Recipient) error {
	const op = "repository.RecipientRepository.Upsert"

	sql, args, err := psql.Insert("recipients").
		Columns("id", "email", "phone", "device_token", "whatsapp", "channels").
		Values(rcp.ID, rcp.Email, rcp.Phone, rcp.DeviceToken, rcp.WhatsApp, int16(rcp.Channels)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			device_token = EXCLUDED.device_token,
			whatsapp = EXCLUDED.whatsapp,
			channels = EXCLUDED.channels`).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: building query: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}
