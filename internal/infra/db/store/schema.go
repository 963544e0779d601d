package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS codes (
    id {{PK}},
    code TEXT NOT NULL UNIQUE,
    days INTEGER NOT NULL DEFAULT 0,
    is_developer {{BOOL}} NOT NULL DEFAULT FALSE,
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS activations (
    id {{PK}},
    code_id {{BIGINT}} NOT NULL REFERENCES codes(id),
    hwid TEXT NOT NULL,
    user_telegram_id {{BIGINT}},
    activated_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at {{TIME}},
    revoked {{BOOL}} NOT NULL DEFAULT FALSE
)`,
	`CREATE TABLE IF NOT EXISTS users (
    telegram_id {{BIGINT}} PRIMARY KEY,
    username TEXT NOT NULL DEFAULT '',
    referred_by {{BIGINT}} REFERENCES users(telegram_id),
    is_partner {{BOOL}} NOT NULL DEFAULT FALSE,
    custom_discount_pct {{FLOAT}},
    first_seen {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS referrals (
    id {{PK}},
    referrer_id {{BIGINT}} NOT NULL REFERENCES users(telegram_id),
    referred_id {{BIGINT}} NOT NULL UNIQUE REFERENCES users(telegram_id),
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id {{PK}},
    user_telegram_id {{BIGINT}} NOT NULL,
    amount_usd {{FLOAT}} NOT NULL,
    plan_days INTEGER NOT NULL,
    code_id {{BIGINT}} REFERENCES codes(id),
    status TEXT NOT NULL DEFAULT 'confirmed',
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS referral_payouts (
    id {{PK}},
    referrer_id {{BIGINT}} NOT NULL REFERENCES users(telegram_id),
    payment_id {{BIGINT}} NOT NULL REFERENCES payments(id),
    amount_usd {{FLOAT}} NOT NULL,
    percent {{FLOAT}} NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    paid_at {{TIME}}
)`,
	`CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    updated_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS pending_code_assign (
    admin_id {{BIGINT}} PRIMARY KEY,
    code TEXT NOT NULL,
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS pending_users (
    username TEXT PRIMARY KEY,
    is_blocked {{BOOL}} NOT NULL DEFAULT FALSE,
    is_partner {{BOOL}} NOT NULL DEFAULT FALSE,
    is_gift {{BOOL}} NOT NULL DEFAULT FALSE,
    custom_discount_pct {{FLOAT}},
    created_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS admins (
    telegram_id {{BIGINT}} PRIMARY KEY,
    username TEXT,
    added_by {{BIGINT}},
    added_at {{TIME}} NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// columns added after the first release; applied through addColumn so that
// databases created by any earlier version converge on the same layout.
var columns = []struct {
	table, column, ddl string
}{
	{"codes", "assigned_username", "TEXT"},
	{"users", "is_gift", "{{BOOL}} NOT NULL DEFAULT FALSE"},
	{"users", "is_blocked", "{{BOOL}} NOT NULL DEFAULT FALSE"},
	{"activations", "installation_id", "TEXT"},
	{"payments", "merchant_order_id", "TEXT"},
	{"payments", "payment_system", "TEXT"},
	{"codes", "revoked_at", "{{TIME}}"},
}

// backfills bring rows written before a late column existed in line with it.
var backfills = []string{
	`UPDATE codes SET revoked_at = {{NOW}}
  WHERE revoked_at IS NULL
    AND EXISTS (SELECT 1 FROM activations a WHERE a.code_id = codes.id AND a.revoked = TRUE)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_activations_hwid ON activations(hwid)",
	"CREATE INDEX IF NOT EXISTS idx_activations_code ON activations(code_id)",
	"CREATE INDEX IF NOT EXISTS idx_activations_user ON activations(user_telegram_id)",
	"CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)",
	"CREATE INDEX IF NOT EXISTS idx_referral_payouts_referrer ON referral_payouts(referrer_id)",
	"CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_telegram_id)",
	"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order ON payments(merchant_order_id)",
}

// SchemaOptions carries the rows seeded on every start.
type SchemaOptions struct {
	Settings []model.Setting
	// PartnerAdmins are upserted into admins with AddedBy = Owner.
	PartnerAdmins []int64
	Owner         int64
}

func ddl(d db.Dialect, s string) string {
	return strings.NewReplacer(
		"{{PK}}", d.SerialPK(),
		"{{BOOL}}", d.Bool(),
		"{{FLOAT}}", d.Float(),
		"{{TIME}}", d.Time(),
		"{{BIGINT}}", d.BigInt(),
		"{{NOW}}", d.Now(),
	).Replace(s)
}

// InitSchema brings the schema up to date in one transaction. It is
// idempotent and runs on every start: tables and indexes are created only
// when missing, late columns are added only when absent, and seeds never
// overwrite existing rows.
func InitSchema(ctx context.Context, tm repository.TransactionManager, d db.Dialect, opts SchemaOptions, logger *zerolog.Logger) error {
	return tm.WithTx(ctx, func(ctx context.Context, rtx repository.Tx) error {
		tx, ok := rtx.(db.Tx)
		if !ok {
			return domain.ErrInvalidExecContext
		}
		for _, t := range tables {
			if _, err := tx.Exec(ctx, ddl(d, t)); err != nil {
				return fmt.Errorf("db: create table: %w", err)
			}
		}
		added := 0
		for _, c := range columns {
			ok, err := addColumn(ctx, tx, d, c.table, c.column, ddl(d, c.ddl))
			if err != nil {
				return err
			}
			if ok {
				added++
				logger.Info().Str("table", c.table).Str("column", c.column).Msg("column added")
			}
		}
		for _, b := range backfills {
			if _, err := tx.Exec(ctx, ddl(d, b)); err != nil {
				return fmt.Errorf("db: backfill: %w", err)
			}
		}
		for _, idx := range indexes {
			if _, err := tx.Exec(ctx, idx); err != nil {
				return fmt.Errorf("db: create index: %w", err)
			}
		}

		seed := d.InsertIgnore("settings", "key", "value")
		for _, s := range opts.Settings {
			if _, err := tx.Exec(ctx, seed, s.Key, s.Value); err != nil {
				return fmt.Errorf("db: seed setting %s: %w", s.Key, err)
			}
		}
		upsertAdmin := d.Upsert("admins", []string{"telegram_id", "username", "added_by"}, []string{"added_by"})
		for _, id := range opts.PartnerAdmins {
			if id == opts.Owner {
				continue
			}
			if _, err := tx.Exec(ctx, upsertAdmin, id, nil, opts.Owner); err != nil {
				return fmt.Errorf("db: seed partner admin %d: %w", id, err)
			}
		}
		logger.Debug().Str("backend", d.Name()).Int("columns_added", added).Msg("schema ready")
		return nil
	})
}

// addColumn runs ALTER TABLE ... ADD COLUMN inside a savepoint. A failure is
// rolled back to the savepoint and tolerated only when the column already
// exists; any other failure is returned. It reports whether the column was added.
func addColumn(ctx context.Context, tx db.Tx, d db.Dialect, table, column, colDDL string) (bool, error) {
	sp := "sp_add_" + table + "_" + column
	if err := tx.Savepoint(ctx, sp); err != nil {
		return false, fmt.Errorf("db: savepoint %s: %w", sp, err)
	}
	_, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, colDDL))
	if err == nil {
		return true, tx.Release(ctx, sp)
	}
	if rbErr := tx.RollbackTo(ctx, sp); rbErr != nil {
		return false, fmt.Errorf("db: rollback to %s: %w (after %v)", sp, rbErr, err)
	}
	if !d.IsDuplicateColumn(ctx, tx, table, column, err) {
		return false, fmt.Errorf("db: add column %s.%s: %w", table, column, err)
	}
	return false, tx.Release(ctx, sp)
}
