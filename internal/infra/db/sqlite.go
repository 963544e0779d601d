package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Ensure compile-time conformance
var (
	_ DB      = (*sqliteDB)(nil)
	_ Tx      = (*sqliteTx)(nil)
	_ Dialect = SQLiteDialect{}
)

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteDB struct {
	db *sql.DB
	sqlQuerier
}

// OpenSQLite opens path (a file path or ":memory:") with foreign keys on and
// immediate write locks. In-memory databases are pinned to one connection,
// since every connection would otherwise see its own empty database.
func OpenSQLite(ctx context.Context, path string) (*sqliteDB, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	memory := strings.Contains(path, ":memory:")

	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate", "_time_format=sqlite"}
	if !memory {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sdb, err := sql.Open("sqlite", path+sep+strings.Join(params, "&"))
	if err != nil {
		return nil, err
	}
	if memory {
		sdb.SetMaxOpenConns(1)
		sdb.SetConnMaxLifetime(0)
		sdb.SetConnMaxIdleTime(0)
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sdb.PingContext(cctx); err != nil {
		_ = sdb.Close()
		return nil, err
	}
	return &sqliteDB{db: sdb, sqlQuerier: sqlQuerier{ex: sdb}}, nil
}

func (d *sqliteDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, sqlQuerier: sqlQuerier{ex: tx}}, nil
}

func (d *sqliteDB) Dialect() Dialect               { return SQLiteDialect{} }
func (d *sqliteDB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *sqliteDB) Close()                         { _ = d.db.Close() }

func (d *sqliteDB) Stats() PoolStats {
	s := d.db.Stats()
	return PoolStats{Total: int32(s.OpenConnections), Idle: int32(s.Idle), InUse: int32(s.InUse)}
}

type sqliteTx struct {
	tx *sql.Tx
	sqlQuerier
}

func (t *sqliteTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqliteTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

type sqlQuerier struct {
	ex sqlExecutor
}

func (q sqlQuerier) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := q.ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	return pgResult(n), nil
}

func (q sqlQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (q sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{q.ex.QueryRowContext(ctx, query, args...)}
}

type sqlRow struct{ row *sql.Row }

func (r sqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRows
		}
		return err
	}
	return nil
}

type sqlRows struct{ rows *sql.Rows }

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

// SQLiteDialect speaks SQLite 3.35+ (RETURNING, ON CONFLICT DO UPDATE).
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return DialectSQLite }

func (SQLiteDialect) InsertIgnore(table string, cols ...string) string {
	NaturalKey(table)
	return insertPrefix("INSERT OR IGNORE", table, cols)
}

func (SQLiteDialect) Upsert(table string, cols, update []string) string {
	return upsert(table, cols, update)
}

func (SQLiteDialect) Now() string { return "CURRENT_TIMESTAMP" }

func (SQLiteDialect) Ago(d time.Duration) string {
	return fmt.Sprintf("datetime('now', '-%d seconds')", seconds(d))
}

func (SQLiteDialect) SerialPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (SQLiteDialect) Bool() string     { return "INTEGER" }
func (SQLiteDialect) Float() string    { return "REAL" }
func (SQLiteDialect) Time() string     { return "TIMESTAMP" }
func (SQLiteDialect) BigInt() string   { return "INTEGER" }

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func (SQLiteDialect) IsUniqueViolation(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (SQLiteDialect) IsTransient(err error) bool {
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// IsDuplicateColumn asks the catalog instead of parsing the message: SQLite
// reports a duplicate column with the generic SQLITE_ERROR code.
func (d SQLiteDialect) IsDuplicateColumn(ctx context.Context, q Querier, table, column string, err error) bool {
	if err == nil || sqliteCode(err)&0xff != sqlite3.SQLITE_ERROR {
		return false
	}
	ok, cerr := d.ColumnExists(ctx, q, table, column)
	return cerr == nil && ok
}

func (SQLiteDialect) ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var n int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
