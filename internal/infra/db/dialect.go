package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Dialect builds backend-native SQL and classifies driver errors.
type Dialect interface {
	Name() string

	// InsertIgnore is an insert that silently skips rows colliding with the
	// table's natural key.
	InsertIgnore(table string, cols ...string) string
	// Upsert inserts or, on natural-key collision, overwrites the update columns.
	Upsert(table string, cols []string, update []string) string

	// Now and Ago are SQL expressions for the current time and now minus d.
	Now() string
	Ago(d time.Duration) string

	// Column type fragments for DDL.
	SerialPK() string
	Bool() string
	Float() string
	Time() string
	BigInt() string

	IsUniqueViolation(err error) bool
	IsTransient(err error) bool
	// IsDuplicateColumn reports whether a failed ADD COLUMN failed only because
	// table.column already exists.
	IsDuplicateColumn(ctx context.Context, q Querier, table, column string, err error) bool
	ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error)
}

// naturalKeys maps each table to the unique column that insert-ignore and
// upsert statements resolve conflicts on.
var naturalKeys = map[string]string{
	"settings":            "key",
	"pending_users":       "username",
	"users":               "telegram_id",
	"referrals":           "referred_id",
	"admins":              "telegram_id",
	"pending_code_assign": "admin_id",
	"payments":            "merchant_order_id",
	"codes":               "code",
}

// NaturalKey returns the conflict column of table. Unknown tables panic:
// that is a programming error, not a runtime condition.
func NaturalKey(table string) string {
	k, ok := naturalKeys[table]
	if !ok {
		panic(fmt.Sprintf("db: no natural key registered for table %q", table))
	}
	return k
}

func insertPrefix(verb, table string, cols []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, table, strings.Join(cols, ", "), ph)
}

// upsert is shared: both backends accept ON CONFLICT ... DO UPDATE with excluded.
func upsert(table string, cols, update []string) string {
	key := NaturalKey(table)
	if len(update) == 0 {
		return insertPrefix("INSERT", table, cols) + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", key)
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return insertPrefix("INSERT", table, cols) +
		fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
