package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
	"telegram-license-server/internal/infra/worker"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	PaymentExists(ctx context.Context, orderID string) (bool, error)
	// AddPayment records a payment and the referrer's pending payout. A reused
	// order id returns the existing payment id with recorded == false.
	AddPayment(ctx context.Context, payerID int64, amountUSD float64, planDays int, codeID *int64, orderID, system string) (id int64, recorded bool, err error)
	// FulfillOrder mints a code for a paid order and records it. Notifications
	// are queued after commit.
	FulfillOrder(ctx context.Context, order model.Order) (*model.Fulfillment, error)

	ReferralStats(ctx context.Context) ([]*model.ReferrerStat, error)
	UserPayouts(ctx context.Context, referrerID int64) ([]*model.ReferralPayout, error)
	TotalPending(ctx context.Context, referrerID int64) (float64, error)
	RecentPayments(ctx context.Context, limit int) ([]*model.Payment, error)
	MarkPayoutsPaid(ctx context.Context, referrerID int64) (int64, error)
}

// PaymentNotifier tells the payer and the admins about a fulfilled order.
type PaymentNotifier interface {
	PaymentFulfilled(ctx context.Context, order model.Order, code string) error
}

const DefaultPaymentSystem = "manual"

var errDuplicateOrder = errors.New("order already recorded")

type paymentUC struct {
	payments repository.PaymentRepository
	payouts  repository.PayoutRepository
	users    repository.UserRepository
	codes    repository.CodeRepository
	tm       repository.TransactionManager
	notifier PaymentNotifier
	jobs     worker.Submitter
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	payouts repository.PayoutRepository,
	users repository.UserRepository,
	codes repository.CodeRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments: payments,
		payouts:  payouts,
		users:    users,
		codes:    codes,
		tm:       tm,
		log:      logger,
	}
}

// WithNotifier enables post-commit notifications. When jobs is nil they are
// sent inline.
func (u *paymentUC) WithNotifier(n PaymentNotifier, jobs worker.Submitter) *paymentUC {
	u.notifier = n
	u.jobs = jobs
	return u
}

func (u *paymentUC) PaymentExists(ctx context.Context, orderID string) (bool, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.PaymentExists")()
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, nil
	}
	return u.payments.ExistsByOrderID(ctx, repository.NoTX, orderID)
}

// payoutAmount is amount * pct / 100 rounded half away from zero to cents.
func payoutAmount(amountUSD, pct float64) decimal.Decimal {
	return decimal.NewFromFloat(amountUSD).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

// record inserts p and accrues the payout inside tx.
func (u *paymentUC) record(ctx context.Context, tx repository.Tx, p *model.Payment) (float64, error) {
	if err := u.payments.Create(ctx, tx, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return 0, errDuplicateOrder
		}
		return 0, err
	}

	payer, err := u.users.FindByID(ctx, tx, p.UserTelegramID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && payer.ReferredBy == nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	referrerID := *payer.ReferredBy
	pct, err := referralPercent(ctx, u.users, tx, referrerID)
	if err != nil {
		return 0, err
	}
	amount := payoutAmount(p.AmountUSD, pct)
	if !amount.IsPositive() {
		return 0, nil
	}
	accrued := amount.InexactFloat64()
	payout := &model.ReferralPayout{
		ReferrerID: referrerID,
		PaymentID:  p.ID,
		AmountUSD:  accrued,
		Percent:    pct,
		Status:     domain.PayoutPending,
		CreatedAt:  p.CreatedAt,
	}
	if err := u.payouts.Create(ctx, tx, payout); err != nil {
		return 0, err
	}
	return accrued, nil
}

func newPayment(payerID int64, amountUSD float64, planDays int, codeID *int64, orderID, system string) *model.Payment {
	p := &model.Payment{
		UserTelegramID: payerID,
		AmountUSD:      amountUSD,
		PlanDays:       planDays,
		CodeID:         codeID,
		Status:         domain.PaymentConfirmed,
		PaymentSystem:  system,
		CreatedAt:      time.Now().UTC(),
	}
	if orderID = strings.TrimSpace(orderID); orderID != "" {
		p.OrderID = &orderID
	}
	if p.PaymentSystem == "" {
		p.PaymentSystem = DefaultPaymentSystem
	}
	return p
}

func (u *paymentUC) AddPayment(ctx context.Context, payerID int64, amountUSD float64, planDays int, codeID *int64, orderID, system string) (int64, bool, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.AddPayment")()

	if payerID <= 0 || amountUSD < 0 {
		return 0, false, domain.ErrInvalidArgument
	}
	p := newPayment(payerID, amountUSD, planDays, codeID, orderID, system)

	var accrued float64
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		accrued, err = u.record(ctx, tx, p)
		return err
	})
	if errors.Is(err, errDuplicateOrder) {
		// The failed insert poisoned the tx on PostgreSQL, so look up outside it.
		metrics.IncPayment(p.PaymentSystem, "duplicate")
		existing, ferr := u.payments.FindByOrderID(ctx, repository.NoTX, *p.OrderID)
		if ferr != nil {
			return 0, false, ferr
		}
		return existing.ID, false, nil
	}
	if err != nil {
		metrics.IncPayment(p.PaymentSystem, "failed")
		return 0, false, err
	}

	metrics.IncPayment(p.PaymentSystem, "recorded")
	metrics.AddRevenue(p.PaymentSystem, amountUSD)
	metrics.AddPayoutAccrued(accrued)
	return p.ID, true, nil
}

func (u *paymentUC) FulfillOrder(ctx context.Context, order model.Order) (*model.Fulfillment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.FulfillOrder")()

	order.OrderID = strings.TrimSpace(order.OrderID)
	order.Username = model.NormalizeUsername(order.Username)
	if order.PayerID <= 0 || order.PlanDays <= 0 || order.OrderID == "" || order.AmountUSD < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if order.PaymentSystem == "" {
		order.PaymentSystem = DefaultPaymentSystem
	}
	log := logging.With(logging.WithOrderID(logging.WithTgID(ctx, order.PayerID), order.OrderID), u.log)

	out := &model.Fulfillment{}
	var accrued float64
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		*out = model.Fulfillment{}
		exists, err := u.payments.ExistsByOrderID(ctx, tx, order.OrderID)
		if err != nil {
			return err
		}
		if exists {
			out.Duplicate = true
			return nil
		}

		payer, err := model.NewUser(order.PayerID, order.Username)
		if err != nil {
			return err
		}
		if _, err := u.users.Create(ctx, tx, payer); err != nil {
			return err
		}

		code, err := mintCode(ctx, tx, u.codes, order.PlanDays, false)
		if err != nil {
			return err
		}
		if order.Username != "" {
			name := order.Username
			if err := u.codes.SetAssignee(ctx, tx, code.ID, &name); err != nil {
				return err
			}
		}

		p := newPayment(order.PayerID, order.AmountUSD, order.PlanDays, &code.ID, order.OrderID, order.PaymentSystem)
		if accrued, err = u.record(ctx, tx, p); err != nil {
			return err
		}
		out.PaymentID = p.ID
		out.Code = code.Code
		return nil
	})
	if errors.Is(err, errDuplicateOrder) {
		out.Duplicate = true
		err = nil
	}
	if err != nil {
		metrics.IncPayment(order.PaymentSystem, "failed")
		return nil, fmt.Errorf("fulfill order: %w", err)
	}
	if out.Duplicate {
		metrics.IncPayment(order.PaymentSystem, "duplicate")
		log.Info().Msg("duplicate order ignored")
		return out, nil
	}

	metrics.IncPayment(order.PaymentSystem, "recorded")
	metrics.AddRevenue(order.PaymentSystem, order.AmountUSD)
	metrics.AddPayoutAccrued(accrued)
	metrics.IncCodesCreated(false, 1)
	log.Info().Int64("payment_id", out.PaymentID).Int("days", order.PlanDays).Msg("order fulfilled")

	u.notify(ctx, order, out.Code)
	return out, nil
}

func (u *paymentUC) notify(ctx context.Context, order model.Order, code string) {
	if u.notifier == nil {
		return
	}
	send := func(ctx context.Context) error {
		return u.notifier.PaymentFulfilled(ctx, order, code)
	}
	if u.jobs == nil {
		if err := send(ctx); err != nil {
			u.log.Error().Err(err).Str("order_id", order.OrderID).Msg("payment notification failed")
		}
		return
	}
	if err := u.jobs.Submit(send); err != nil {
		u.log.Error().Err(err).Str("order_id", order.OrderID).Msg("payment notification dropped")
	}
}

func (u *paymentUC) ReferralStats(ctx context.Context) ([]*model.ReferrerStat, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ReferralStats")()

	var stats []*model.ReferrerStat
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		stats, err = u.payouts.Stats(ctx, tx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			if s.Percent, err = referralPercent(ctx, u.users, tx, s.ReferrerID); err != nil {
				return err
			}
			s.PendingUSD = decimal.NewFromFloat(s.PendingUSD).Round(2).InexactFloat64()
		}
		return nil
	})
	return stats, err
}

func (u *paymentUC) UserPayouts(ctx context.Context, referrerID int64) ([]*model.ReferralPayout, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.UserPayouts")()
	return u.payouts.ListByReferrer(ctx, repository.NoTX, referrerID)
}

func (u *paymentUC) TotalPending(ctx context.Context, referrerID int64) (float64, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.TotalPending")()
	total, err := u.payouts.PendingTotal(ctx, repository.NoTX, referrerID)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromFloat(total).Round(2).InexactFloat64(), nil
}

func (u *paymentUC) RecentPayments(ctx context.Context, limit int) ([]*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.RecentPayments")()
	if limit <= 0 {
		limit = 20
	}
	return u.payments.ListRecent(ctx, repository.NoTX, limit)
}

func (u *paymentUC) MarkPayoutsPaid(ctx context.Context, referrerID int64) (int64, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.MarkPayoutsPaid")()

	var n int64
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = u.payouts.MarkPaid(ctx, tx, referrerID, time.Now().UTC())
		return err
	})
	if err == nil && n > 0 {
		u.log.Info().Int64("referrer_id", referrerID).Int64("count", n).Msg("payouts marked paid")
	}
	return n, err
}
