// Package postgres stores asset state and the audit fallback in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/storage"
)

// Pool is the connection pool shared by AssetStore and AuditLogStore.
type Pool struct {
	*pgxpool.Pool
}

// PoolOption adjusts the parsed pool config before connecting.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps open connections. Values <= 0 are ignored.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// NewPool connects and pings. The pool is closed again if the ping fails.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pgp, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pgp.Ping(ctx); err != nil {
		pgp.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pgp}, nil
}

// SQLSTATE codes mapped onto storage errors.
const (
	sqlStateUniqueViolation = "23505"
	sqlStateCheckViolation  = "23514"
)

// mapError translates driver errors into storage sentinels and wraps the
// rest with op.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return storage.ErrDuplicateKey
		case sqlStateCheckViolation:
			return fmt.Errorf("%w: %s: %s", storage.ErrInvalidInput, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// observe records the duration and outcome of one store call; defer it with
// the named error result.
func observe(op string, err *error) func() {
	start := time.Now()
	return func() {
		observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
	}
}
