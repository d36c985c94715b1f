package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrnotify/internal/entity"
)

// PolicyRepository reads the data-driven per-type channel rules. Operators
// tune rows; the engine never hard-codes a type-to-channel mapping.
type PolicyRepository struct {
	db *pgxpool.Pool
}

func NewPolicyRepository(db *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) List(ctx context.Context) ([]entity.TypePolicy, error) {
	const op = "repository.PolicyRepository.List"

	sql, args, err := psql.Select("type, forced_channels, suppressible").
		From("type_policies").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var policies []entity.TypePolicy
	for rows.Next() {
		var (
			p      entity.TypePolicy
			forced int16
		)
		if err := rows.Scan(&p.Type, &forced, &p.Suppressible); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		p.ForcedChannels = entity.ChannelMask(forced)
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return policies, nil
}
