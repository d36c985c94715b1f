// Package repository implements the engine's durable stores on Postgres
// (pgx + squirrel) and the read-through caches on Redis.
package repository

import (
	"errors"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"hrnotify/internal/entity"
)

// psql builds $N-placeholder queries for every store in the package.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type rowScanner interface {
	Scan(dest ...any) error
}

const _pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == _pgUniqueViolation
}

// qualify prefixes every column in a comma-separated list with a table
// alias, for RETURNING clauses on aliased updates.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// stateStrings converts states for a = ANY($n) predicate.
func stateStrings(states []entity.DeliveryState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
