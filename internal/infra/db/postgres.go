package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Ensure compile-time conformance
var (
	_ DB      = (*pgDB)(nil)
	_ Tx      = (*pgTx)(nil)
	_ Dialect = PostgresDialect{}
)

const (
	pgUniqueViolation       = "23505"
	pgDuplicateColumn       = "42701"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgTooManyConnections    = "53300"
	pgCannotConnectNow      = "57P03"
	pgConnectionClassPrefix = "08"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgDB struct {
	pool *pgxpool.Pool
	pgQuerier
}

// OpenPostgres connects a pgx pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string, maxConns int32) (*pgDB, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(cctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *pgDB {
	return &pgDB{pool: pool, pgQuerier: pgQuerier{ex: pool}}
}

func (d *pgDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, pgQuerier: pgQuerier{ex: tx}}, nil
}

func (d *pgDB) Dialect() Dialect               { return PostgresDialect{} }
func (d *pgDB) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }
func (d *pgDB) Close()                         { d.pool.Close() }

func (d *pgDB) Stats() PoolStats {
	s := d.pool.Stat()
	return PoolStats{Total: s.TotalConns(), Idle: s.IdleConns(), InUse: s.AcquiredConns()}
}

type pgTx struct {
	tx pgx.Tx
	pgQuerier
}

func (t *pgTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+name)
	return err
}

func (t *pgTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *pgTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type pgQuerier struct {
	ex pgExecutor
}

func (q pgQuerier) Exec(ctx context.Context, sql string, args ...any) (Result, error) {
	tag, err := q.ex.Exec(ctx, Rebind(sql), args...)
	if err != nil {
		return nil, err
	}
	return pgResult(tag.RowsAffected()), nil
}

func (q pgQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := q.ex.Query(ctx, Rebind(sql), args...)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func (q pgQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return pgRow{q.ex.QueryRow(ctx, Rebind(sql), args...)}
}

type pgResult int64

func (r pgResult) RowsAffected() int64 { return int64(r) }

type pgRow struct{ row pgx.Row }

func (r pgRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoRows
		}
		return err
	}
	return nil
}

type pgRows struct{ rows pgx.Rows }

func (r pgRows) Next() bool             { return r.rows.Next() }
func (r pgRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r pgRows) Err() error             { return r.rows.Err() }
func (r pgRows) Close()                 { r.rows.Close() }

// Rebind rewrites "?" placeholders to $1..$n, leaving quoted literals alone.
func Rebind(sql string) string {
	if !strings.Contains(sql, "?") {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PostgresDialect speaks PostgreSQL.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return DialectPostgres }

func (PostgresDialect) InsertIgnore(table string, cols ...string) string {
	return insertPrefix("INSERT", table, cols) + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", NaturalKey(table))
}

func (PostgresDialect) Upsert(table string, cols, update []string) string {
	return upsert(table, cols, update)
}

func (PostgresDialect) Now() string { return "CURRENT_TIMESTAMP" }

func (PostgresDialect) Ago(d time.Duration) string {
	return fmt.Sprintf("(CURRENT_TIMESTAMP - INTERVAL '%d seconds')", seconds(d))
}

func (PostgresDialect) SerialPK() string { return "BIGSERIAL PRIMARY KEY" }
func (PostgresDialect) Bool() string     { return "BOOLEAN" }
func (PostgresDialect) Float() string    { return "DOUBLE PRECISION" }
func (PostgresDialect) Time() string     { return "TIMESTAMPTZ" }
func (PostgresDialect) BigInt() string   { return "BIGINT" }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (PostgresDialect) IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func (PostgresDialect) IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	switch code := pgCode(err); {
	case code == "":
		return false
	case strings.HasPrefix(code, pgConnectionClassPrefix):
		return true
	case code == pgSerializationFailure, code == pgDeadlockDetected,
		code == pgTooManyConnections, code == pgCannotConnectNow:
		return true
	}
	return false
}

func (PostgresDialect) IsDuplicateColumn(_ context.Context, _ Querier, _, _ string, err error) bool {
	return pgCode(err) == pgDuplicateColumn
}

func (PostgresDialect) ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	const sql = `
SELECT COUNT(*) FROM information_schema.columns
 WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
	var n int
	if err := q.QueryRow(ctx, sql, table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
