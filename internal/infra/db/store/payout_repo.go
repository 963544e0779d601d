package store

import (
	"context"
	"fmt"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.PayoutRepository = (*payoutRepo)(nil)

type payoutRepo struct {
	pool db.DB
}

func NewPayoutRepo(pool db.DB) repository.PayoutRepository {
	return &payoutRepo{pool: pool}
}

func (r *payoutRepo) Create(ctx context.Context, tx repository.Tx, p *model.ReferralPayout) error {
	if p.Status == "" {
		p.Status = domain.PayoutPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	const q = `
INSERT INTO referral_payouts (referrer_id, payment_id, amount_usd, percent, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	id, err := insertID(ctx, r.pool, tx, q, p.ReferrerID, p.PaymentID, p.AmountUSD, p.Percent, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	p.ID = id
	return nil
}

func (r *payoutRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID int64) ([]*model.ReferralPayout, error) {
	const q = `
SELECT id, referrer_id, payment_id, amount_usd, percent, status, created_at, paid_at
  FROM referral_payouts
 WHERE referrer_id = ?
 ORDER BY id DESC
 LIMIT 50`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row db.Row) (*model.ReferralPayout, error) {
		var p model.ReferralPayout
		if err := row.Scan(&p.ID, &p.ReferrerID, &p.PaymentID, &p.AmountUSD, &p.Percent, &p.Status, &p.CreatedAt, &p.PaidAt); err != nil {
			return nil, err
		}
		return &p, nil
	})
}

func (r *payoutRepo) PendingTotal(ctx context.Context, tx repository.Tx, referrerID int64) (float64, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COALESCE(SUM(amount_usd), 0.0) FROM referral_payouts WHERE referrer_id = ? AND status = ?`,
		referrerID, domain.PayoutPending)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, scanErr("pending payout total", err)
	}
	return sum, nil
}

func (r *payoutRepo) MarkPaid(ctx context.Context, tx repository.Tx, referrerID int64, at time.Time) (int64, error) {
	res, err := execSQL(ctx, r.pool, tx,
		`UPDATE referral_payouts SET status = ?, paid_at = ? WHERE referrer_id = ? AND status = ?`,
		domain.PayoutPaid, at, referrerID, domain.PayoutPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (r *payoutRepo) Stats(ctx context.Context, tx repository.Tx) ([]*model.ReferrerStat, error) {
	const q = `
SELECT u.telegram_id, COALESCE(u.username, ''),
       (SELECT COUNT(*) FROM referrals r WHERE r.referrer_id = u.telegram_id) AS ref_count,
       (SELECT COALESCE(SUM(rp.amount_usd), 0.0) FROM referral_payouts rp
         WHERE rp.referrer_id = u.telegram_id AND rp.status = ?) AS pending
  FROM users u
 WHERE u.telegram_id IN (SELECT referrer_id FROM referrals)
 ORDER BY ref_count DESC, u.telegram_id`
	rows, err := queryRows(ctx, r.pool, tx, q, domain.PayoutPending)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row db.Row) (*model.ReferrerStat, error) {
		var s model.ReferrerStat
		if err := row.Scan(&s.ReferrerID, &s.Username, &s.ReferralCount, &s.PendingUSD); err != nil {
			return nil, err
		}
		return &s, nil
	})
}
