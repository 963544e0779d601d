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
var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct {
	pool db.DB
}

func NewPaymentRepo(pool db.DB) repository.PaymentRepository {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_telegram_id, amount_usd, plan_days, code_id, status, merchant_order_id,
       COALESCE(payment_system, ''), created_at`

func scanPayment(row db.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.UserTelegramID, &p.AmountUSD, &p.PlanDays, &p.CodeID, &p.Status, &p.OrderID,
		&p.PaymentSystem, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create relies on ux_payments_order: a reused order id is a unique
// violation, reported as domain.ErrAlreadyExists.
func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p.Status == "" {
		p.Status = domain.PaymentConfirmed
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	const q = `
INSERT INTO payments (user_telegram_id, amount_usd, plan_days, code_id, status, merchant_order_id, payment_system, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := insertID(ctx, r.pool, tx, q,
		p.UserTelegramID, p.AmountUSD, p.PlanDays, p.CodeID, p.Status, p.OrderID, nullIfEmpty(p.PaymentSystem), p.CreatedAt)
	if err != nil {
		if r.pool.Dialect().IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID = id
	return nil
}

func (r *paymentRepo) ExistsByOrderID(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	if orderID == "" {
		return false, nil
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM payments WHERE merchant_order_id = ?`, orderID)
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, scanErr("payment exists", err)
	}
	return n > 0, nil
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+paymentColumns+` FROM payments WHERE merchant_order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, scanErr("find payment", err)
	}
	return p, nil
}

func (r *paymentRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+paymentColumns+` FROM payments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

// ClearCode detaches payments from a code that is about to be deleted.
func (r *paymentRepo) ClearCode(ctx context.Context, tx repository.Tx, codeID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE payments SET code_id = NULL WHERE code_id = ?`, codeID)
	return err
}

// ClearAllCodes detaches every payment before the whole inventory is wiped.
func (r *paymentRepo) ClearAllCodes(ctx context.Context, tx repository.Tx) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE payments SET code_id = NULL WHERE code_id IS NOT NULL`)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
