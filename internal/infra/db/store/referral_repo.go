package store

import (
	"context"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct {
	pool db.DB
}

func NewReferralRepo(pool db.DB) repository.ReferralRepository {
	return &referralRepo{pool: pool}
}

func (r *referralRepo) Create(ctx context.Context, tx repository.Tx, referrerID, referredID int64) error {
	q := r.pool.Dialect().InsertIgnore("referrals", "referrer_id", "referred_id", "created_at")
	_, err := execSQL(ctx, r.pool, tx, q, referrerID, referredID, nowUTC())
	return err
}

func (r *referralRepo) CountByReferrer(ctx context.Context, tx repository.Tx, referrerID int64) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`, referrerID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr("count referrals", err)
	}
	return n, nil
}

func (r *referralRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID int64) ([]*model.Referral, error) {
	const q = `
SELECT r.id, r.referrer_id, r.referred_id, r.created_at, COALESCE(u.username, '')
  FROM referrals r
  LEFT JOIN users u ON u.telegram_id = r.referred_id
 WHERE r.referrer_id = ?
 ORDER BY r.id DESC`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row db.Row) (*model.Referral, error) {
		var ref model.Referral
		if err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.CreatedAt, &ref.ReferredUsername); err != nil {
			return nil, err
		}
		return &ref, nil
	})
}
