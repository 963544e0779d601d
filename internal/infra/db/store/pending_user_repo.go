package store

import (
	"context"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.PendingUserRepository = (*pendingUserRepo)(nil)

// pendingUserRepo stores staged identities keyed by model.PendingKey.
type pendingUserRepo struct {
	pool db.DB
}

func NewPendingUserRepo(pool db.DB) repository.PendingUserRepository {
	return &pendingUserRepo{pool: pool}
}

const pendingColumns = `username, is_blocked, is_partner, is_gift, custom_discount_pct, created_at`

func scanPending(row db.Row) (*model.PendingIdentity, error) {
	var p model.PendingIdentity
	if err := row.Scan(&p.Username, &p.IsBlocked, &p.IsPartner, &p.IsGift, &p.CustomDiscountPct, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pendingUserRepo) Ensure(ctx context.Context, tx repository.Tx, username string) error {
	q := r.pool.Dialect().InsertIgnore("pending_users", "username", "is_blocked", "is_partner", "is_gift", "created_at")
	_, err := execSQL(ctx, r.pool, tx, q, model.PendingKey(username), false, false, false, nowUTC())
	return err
}

func (r *pendingUserRepo) Find(ctx context.Context, tx repository.Tx, username string) (*model.PendingIdentity, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+pendingColumns+` FROM pending_users WHERE username = ?`, model.PendingKey(username))
	if err != nil {
		return nil, err
	}
	p, err := scanPending(row)
	if err != nil {
		return nil, scanErr("find pending user", err)
	}
	return p, nil
}

func (r *pendingUserRepo) Save(ctx context.Context, tx repository.Tx, p *model.PendingIdentity) error {
	p.Username = model.PendingKey(p.Username)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	q := r.pool.Dialect().Upsert("pending_users",
		[]string{"username", "is_blocked", "is_partner", "is_gift", "custom_discount_pct", "created_at"},
		[]string{"is_blocked", "is_partner", "is_gift", "custom_discount_pct"})
	_, err := execSQL(ctx, r.pool, tx, q, p.Username, p.IsBlocked, p.IsPartner, p.IsGift, p.CustomDiscountPct, p.CreatedAt)
	return err
}

func (r *pendingUserRepo) Delete(ctx context.Context, tx repository.Tx, username string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM pending_users WHERE username = ?`, model.PendingKey(username))
	return err
}

func (r *pendingUserRepo) List(ctx context.Context, tx repository.Tx) ([]*model.PendingIdentity, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+pendingColumns+` FROM pending_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPending)
}
