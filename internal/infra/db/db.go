// Package db is the storage adapter shared by every repository. One query
// surface is implemented twice, once over a pgx pool and once over SQLite,
// and the backend is chosen once by Open.
//
// Statements are written with "?" placeholders; the PostgreSQL backend
// rebinds them to $n before they reach the driver.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/config"
)

// ErrNoRows is returned by Row.Scan on both backends when nothing matched.
var ErrNoRows = errors.New("db: no rows in result set")

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type Result interface {
	RowsAffected() int64
}

// Querier is the execute/query surface shared by the pool and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Tx is an open transaction. Savepoint names must be plain identifiers.
type Tx interface {
	Querier
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type PoolStats struct {
	Total int32
	Idle  int32
	InUse int32
}

// DB is a connection pool bound to one backend.
type DB interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Dialect() Dialect
	Ping(ctx context.Context) error
	Stats() PoolStats
	Close()
}

// IsPostgresURL reports whether url selects the PostgreSQL backend.
func IsPostgresURL(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// Open connects to the backend named by cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (DB, error) {
	if IsPostgresURL(cfg.URL) {
		d, err := OpenPostgres(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("db: open postgres: %w", err)
		}
		logger.Info().Str("backend", d.Dialect().Name()).Msg("database connected")
		return d, nil
	}
	d, err := OpenSQLite(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	logger.Info().Str("backend", d.Dialect().Name()).Str("path", cfg.URL).Msg("database connected")
	return d, nil
}

// InsertID runs an INSERT and returns the generated id of the new row.
// Both backends support RETURNING.
func InsertID(ctx context.Context, q Querier, sql string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, strings.TrimRight(strings.TrimSpace(sql), ";")+" RETURNING id", args...).Scan(&id)
	return id, err
}
