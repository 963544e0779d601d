// Package store holds the repositories. Every statement is written once in
// portable SQL with "?" placeholders; backend differences go through
// db.Dialect.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// getExecutor picks the transaction when one is passed, else the pool.
func getExecutor(pool db.DB, tx repository.Tx) (db.Querier, error) {
	switch v := tx.(type) {
	case db.Tx:
		return v, nil
	case nil:
		// Explicitly use the pool if nil is passed
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func execSQL(ctx context.Context, pool db.DB, tx repository.Tx, sql string, args ...any) (db.Result, error) {
	q, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return q.Exec(ctx, sql, args...)
}

func pickRow(ctx context.Context, pool db.DB, tx repository.Tx, sql string, args ...any) (db.Row, error) {
	q, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return q.QueryRow(ctx, sql, args...), nil
}

func queryRows(ctx context.Context, pool db.DB, tx repository.Tx, sql string, args ...any) (db.Rows, error) {
	q, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sql, args...)
}

func insertID(ctx context.Context, pool db.DB, tx repository.Tx, sql string, args ...any) (int64, error) {
	q, err := getExecutor(pool, tx)
	if err != nil {
		return 0, err
	}
	return db.InsertID(ctx, q, sql, args...)
}

// scanErr maps a missing row to domain.ErrNotFound and wraps anything else.
func scanErr(what string, err error) error {
	if errors.Is(err, db.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", what, domain.ErrReadDatabaseRow, err)
}

// collect drains rows through scan, closing them on every path.
func collect[T any](rows db.Rows, scan func(db.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nowUTC is the timestamp written by repositories that stamp rows themselves.
func nowUTC() time.Time { return time.Now().UTC() }
