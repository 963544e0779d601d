package usecase

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/adapter"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/i18n"
	"telegram-license-server/internal/infra/logging"
)

// Compile-time checks
var (
	_ NotificationUseCase = (*notificationUC)(nil)
	_ PaymentNotifier     = (*notificationUC)(nil)
)

type NotificationUseCase interface {
	// PaymentFulfilled sends the code to the payer and a summary to every admin.
	PaymentFulfilled(ctx context.Context, order model.Order, code string) error
	// CodeAssigned messages the assignee when they are already registered.
	// It reports whether a message went out.
	CodeAssigned(ctx context.Context, username, code string) (bool, error)
}

type notificationUC struct {
	bot    adapter.TelegramBotAdapter
	tr     *i18n.Translator
	admins AdminUseCase
	users  repository.UserRepository
	log    *zerolog.Logger
}

func NewNotificationUseCase(bot adapter.TelegramBotAdapter, tr *i18n.Translator, admins AdminUseCase, users repository.UserRepository, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{bot: bot, tr: tr, admins: admins, users: users, log: logger}
}

func (n *notificationUC) PaymentFulfilled(ctx context.Context, order model.Order, code string) error {
	defer logging.TraceDuration(n.log, "NotificationUC.PaymentFulfilled")()

	var errs []error
	if err := n.bot.SendMessage(ctx, order.PayerID, n.tr.T("notify.payment_received", order.PlanDays, code)); err != nil {
		errs = append(errs, err)
	}

	ids, err := n.admins.AllAdminIDs(ctx)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	who := strconv.FormatInt(order.PayerID, 10)
	if order.Username != "" {
		who = "@" + order.Username
	}
	amount := decimal.NewFromFloat(order.AmountUSD).StringFixed(2)
	text := n.tr.T("notify.admin_payment", who, amount, order.PlanDays, order.PaymentSystem, code)
	for _, id := range ids {
		if err := n.bot.SendMessage(ctx, id, text); err != nil {
			n.log.Warn().Err(err).Int64("admin_id", id).Msg("admin payment notice failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *notificationUC) CodeAssigned(ctx context.Context, username, code string) (bool, error) {
	defer logging.TraceDuration(n.log, "NotificationUC.CodeAssigned")()

	usr, err := n.users.FindByUsername(ctx, repository.NoTX, username)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := n.bot.SendMessage(ctx, usr.TelegramID, n.tr.T("notify.code_assigned", code)); err != nil {
		return false, err
	}
	return true, nil
}
