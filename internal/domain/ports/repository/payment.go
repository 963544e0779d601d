package repository

import (
	"context"
	"time"

	"telegram-license-server/internal/domain/model"
)

type PaymentRepository interface {
	// Create inserts p and sets p.ID. A reused order id yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	ExistsByOrderID(ctx context.Context, tx Tx, orderID string) (bool, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	ClearCode(ctx context.Context, tx Tx, codeID int64) error
	ClearAllCodes(ctx context.Context, tx Tx) error
}

type PayoutRepository interface {
	Create(ctx context.Context, tx Tx, p *model.ReferralPayout) error
	ListByReferrer(ctx context.Context, tx Tx, referrerID int64) ([]*model.ReferralPayout, error)
	PendingTotal(ctx context.Context, tx Tx, referrerID int64) (float64, error)
	MarkPaid(ctx context.Context, tx Tx, referrerID int64, at time.Time) (int64, error)
	// Stats lists every user with at least one referral, with the referral
	// count and the sum of pending payouts. Percent is left for the caller.
	Stats(ctx context.Context, tx Tx) ([]*model.ReferrerStat, error)
}
