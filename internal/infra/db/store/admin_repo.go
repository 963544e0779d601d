package store

import (
	"context"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.AdminRepository = (*adminRepo)(nil)

type adminRepo struct {
	pool db.DB
}

func NewAdminRepo(pool db.DB) repository.AdminRepository {
	return &adminRepo{pool: pool}
}

func (r *adminRepo) Upsert(ctx context.Context, tx repository.Tx, a *model.Admin) error {
	if a.AddedAt.IsZero() {
		a.AddedAt = nowUTC()
	}
	q := r.pool.Dialect().Upsert("admins",
		[]string{"telegram_id", "username", "added_by", "added_at"},
		[]string{"username", "added_by"})
	_, err := execSQL(ctx, r.pool, tx, q, a.TelegramID, nullIfEmpty(a.Username), a.AddedBy, a.AddedAt)
	return err
}

func (r *adminRepo) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM admins WHERE telegram_id = ?`, tgID)
	return err
}

func (r *adminRepo) Exists(ctx context.Context, tx repository.Tx, tgID int64) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM admins WHERE telegram_id = ?`, tgID)
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, scanErr("admin exists", err)
	}
	return n > 0, nil
}

func (r *adminRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Admin, error) {
	const q = `SELECT telegram_id, COALESCE(username, ''), COALESCE(added_by, 0), added_at FROM admins ORDER BY added_at, telegram_id`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row db.Row) (*model.Admin, error) {
		var a model.Admin
		if err := row.Scan(&a.TelegramID, &a.Username, &a.AddedBy, &a.AddedAt); err != nil {
			return nil, err
		}
		return &a, nil
	})
}
