package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var (
	ErrNoConnString   = errors.New("pg: PG_CONN_URL is empty")
	ErrInvalidConfig  = errors.New("pg: invalid connection config")
	ErrUnavailable    = errors.New("pg: database unavailable")
	ErrUnhealthy      = errors.New("pg: ping failed")
	ErrMigrate        = errors.New("pg: apply migrations")
	ErrNoMigrationsFS = errors.New("pg: migrations filesystem is nil")
	ErrNoMigrationDir = errors.New("pg: migrations directory not found")
)

// IsNotFoundError reports whether err wraps pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports whether err is a unique constraint violation.
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation
}
