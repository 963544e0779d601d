package store

import (
	"context"
	"fmt"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool db.DB
}

func NewUserRepo(pool db.DB) repository.UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `telegram_id, COALESCE(username, ''), referred_by, is_partner, is_gift, is_blocked, custom_discount_pct, first_seen`

func scanUser(row db.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.TelegramID, &u.Username, &u.ReferredBy, &u.IsPartner, &u.IsGift, &u.IsBlocked,
		&u.CustomDiscountPct, &u.FirstSeen)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) (bool, error) {
	q := r.pool.Dialect().InsertIgnore("users",
		"telegram_id", "username", "referred_by", "is_partner", "is_gift", "is_blocked", "custom_discount_pct", "first_seen")
	res, err := execSQL(ctx, r.pool, tx, q,
		u.TelegramID, u.Username, u.ReferredBy, u.IsPartner, u.IsGift, u.IsBlocked, u.CustomDiscountPct, u.FirstSeen)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, tgID)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr("find user", err)
	}
	return u, nil
}

func (r *userRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	key := model.PendingKey(username)
	if key == "" {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE LOWER(REPLACE(username, '@', '')) = ? ORDER BY telegram_id LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr("find user by username", err)
	}
	return u, nil
}

func (r *userRepo) Update(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
UPDATE users
   SET username = ?, is_partner = ?, is_gift = ?, is_blocked = ?, custom_discount_pct = ?
 WHERE telegram_id = ?`
	res, err := execSQL(ctx, r.pool, tx, q, u.Username, u.IsPartner, u.IsGift, u.IsBlocked, u.CustomDiscountPct, u.TelegramID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) SetReferrerIfUnset(ctx context.Context, tx repository.Tx, tgID, referrerID int64) (bool, error) {
	res, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET referred_by = ? WHERE telegram_id = ? AND referred_by IS NULL`, referrerID, tgID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *userRepo) List(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users ORDER BY first_seen DESC, telegram_id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}
