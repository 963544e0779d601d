package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/metrics"
)

// Ensure compile-time conformance
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager on top of DB.
// It begins a transaction, invokes the callback, and commits/rolls back.
// The tx handle is passed to the callback as a db.Tx.
//
// Failures the dialect classifies as transient are retried: the whole
// callback runs again, up to attempts times, with a fixed delay in between.
type TxManager struct {
	db       DB
	attempts int
	delay    time.Duration
	log      *zerolog.Logger
}

func NewTxManager(d DB, attempts int, delay time.Duration, logger *zerolog.Logger) *TxManager {
	if attempts < 1 {
		attempts = 1
	}
	return &TxManager{db: d, attempts: attempts, delay: delay, log: logger}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	dialect := m.db.Dialect()
	for attempt := 1; ; attempt++ {
		err := m.once(ctx, fn)
		if err == nil || attempt >= m.attempts || !dialect.IsTransient(err) {
			return err
		}
		metrics.IncDBRetry(dialect.Name())
		m.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", m.delay).Msg("transient storage failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
}

func (m *TxManager) once(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err // rollback in defer
	}
	return tx.Commit(ctx)
}

// DB exposes the underlying pool for the non-transactional path.
func (m *TxManager) DB() DB { return m.db }
