package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/adapter"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
	"telegram-license-server/internal/usecase"
)

const (
	referralPrefix = "ref_"
	freeCodesShown = 10
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  r.handleStartCommand,
		"status": r.clientOnly(r.handleStatusCommand),
		"ref":    r.clientOnly(r.handleReferralCommand),
		"help":   r.handleHelpCommand,

		"newcode": r.adminOnly(r.handleNewCodeCommand),
		"assign":  r.adminOnly(r.handleAssignCommand),
		"free":    r.adminOnly(r.handleFreeCommand),
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return nil
	}
	ctx = logging.WithTgID(ctx, msg.From.ID)

	command := msg.Command()
	if !r.allow(ctx, msg.From.ID, command) {
		return r.SendMessage(ctx, msg.Chat.ID, r.tr.T("bot.rate_limited"))
	}
	handler, ok := r.commandRoutes()[command]
	if !ok {
		handler = r.handleHelpCommand
	}
	return handler(ctx, msg)
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		ok, err := r.svc.Admins.IsAdmin(ctx, message.From.ID)
		if err != nil {
			return r.replyError(ctx, message, err)
		}
		if !ok {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.unauthorized"))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

// clientOnly turns blocked users away.
func (r *RealTelegramBotAdapter) clientOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		label, err := r.svc.Identities.StatusLabel(ctx, message.From.ID)
		if err != nil {
			return r.replyError(ctx, message, err)
		}
		if label == usecase.StatusBlocked {
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.blocked"))
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) replyError(ctx context.Context, message *tgbotapi.Message, err error) error {
	logging.With(ctx, r.log).Error().Err(err).Str("command", message.Command()).Msg("bot command failed")
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.error"))
}

// parseReferrer reads the deep-link payload of /start: "ref_<id>" or a bare id.
func parseReferrer(payload string, self int64) int64 {
	payload = strings.TrimPrefix(strings.TrimSpace(payload), referralPrefix)
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 || id == self {
		return 0
	}
	return id
}

// handleStartCommand registers the user, applies any staged identity and
// greets them.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	from := message.From
	referrer := parseReferrer(message.CommandArguments(), from.ID)

	if _, err := r.svc.Identities.EnsureIdentity(ctx, from.ID, from.UserName, referrer); err != nil {
		return r.replyError(ctx, message, err)
	}
	if err := r.svc.Identities.MergePendingToIdentity(ctx, from.ID, from.UserName); err != nil {
		return r.replyError(ctx, message, err)
	}
	label, err := r.svc.Identities.StatusLabel(ctx, from.ID)
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	if label == usecase.StatusBlocked {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.blocked"))
	}

	welcome, err := r.svc.Settings.Get(ctx, usecase.SettingWelcomeMessage, "")
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	url, err := r.svc.Settings.Get(ctx, usecase.SettingSoftwareURL, "")
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	text := r.tr.T("bot.welcome", welcome, url)
	if url == "" {
		return r.SendMessage(ctx, message.Chat.ID, text)
	}
	download := [][]adapter.InlineButton{{{Text: r.tr.T("bot.download"), URL: url}}}
	return r.SendButtons(ctx, message.Chat.ID, text, download)
}

func (r *RealTelegramBotAdapter) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	info, err := r.svc.Identities.FullInfo(ctx, message.From.ID, "")
	if errors.Is(err, domain.ErrNotFound) {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.status_none"))
	}
	if err != nil {
		return r.replyError(ctx, message, err)
	}

	sub := info.Subscription
	switch {
	case sub == nil:
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.status_none"))
	case sub.Status == model.SubscriptionAssigned:
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.status_assigned", sub.Code))
	}

	days := r.tr.T("bot.status_perpetual")
	if d := sub.DaysLeft(time.Now()); d >= 0 {
		days = strconv.Itoa(d)
	}
	status := r.tr.T("role." + info.Role)
	if info.IsBlocked {
		status = r.tr.T("role." + usecase.StatusBlocked)
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.status_active", sub.Code, status, days))
}

func (r *RealTelegramBotAdapter) handleReferralCommand(ctx context.Context, message *tgbotapi.Message) error {
	from := message.From
	if _, err := r.svc.Identities.EnsureIdentity(ctx, from.ID, from.UserName, 0); err != nil {
		return r.replyError(ctx, message, err)
	}
	info, err := r.svc.Identities.FullInfo(ctx, from.ID, "")
	if err != nil {
		return r.replyError(ctx, message, err)
	}

	link := fmt.Sprintf("https://t.me/%s?start=%s%d", r.cfg.Username, referralPrefix, from.ID)
	text := r.tr.T("bot.referral",
		link,
		info.ReferralCount,
		decimal.NewFromFloat(info.PendingUSD).StringFixed(2),
		decimal.NewFromFloat(info.Percent).String(),
	)
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	text := r.tr.T("bot.help")
	if r.svc.Admins != nil {
		if ok, err := r.svc.Admins.IsAdmin(ctx, message.From.ID); err == nil && ok {
			text += r.tr.T("bot.help_admin")
		}
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

// ===== Admin commands =====

func (r *RealTelegramBotAdapter) handleNewCodeCommand(ctx context.Context, message *tgbotapi.Message) error {
	days, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || days <= 0 {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.usage_newcode"))
	}
	code, err := r.svc.Licenses.CreateCode(ctx, days, false)
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.code_created", days, code.Code))
}

func isUsername(s string) bool {
	return strings.HasPrefix(s, "@") || strings.Contains(s, "t.me/")
}

// handleAssignCommand accepts "/assign CODE @user" in one go, or "/assign CODE"
// followed within the staging window by "/assign @user".
func (r *RealTelegramBotAdapter) handleAssignCommand(ctx context.Context, message *tgbotapi.Message) error {
	adminID := message.From.ID
	args := strings.Fields(message.CommandArguments())

	switch {
	case len(args) == 2:
		return r.assign(ctx, message, args[0], args[1])

	case len(args) == 1 && isUsername(args[0]):
		code, err := r.svc.Licenses.PendingAssign(ctx, adminID)
		if err != nil {
			return r.replyError(ctx, message, err)
		}
		if code == "" {
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.usage_assign"))
		}
		if err := r.svc.Licenses.ClearPendingAssign(ctx, adminID); err != nil {
			return r.replyError(ctx, message, err)
		}
		return r.assign(ctx, message, code, args[0])

	case len(args) == 1:
		code := model.NormalizeCode(args[0])
		if _, err := r.svc.Licenses.ActivationStatus(ctx, code); err != nil {
			if errors.Is(err, domain.ErrCodeNotFound) {
				return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.code_not_found"))
			}
			return r.replyError(ctx, message, err)
		}
		if err := r.svc.Licenses.SetPendingAssign(ctx, adminID, code); err != nil {
			return r.replyError(ctx, message, err)
		}
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.assign_pending", code))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.usage_assign"))
}

func (r *RealTelegramBotAdapter) assign(ctx context.Context, message *tgbotapi.Message, code, username string) error {
	code = model.NormalizeCode(code)
	username = model.NormalizeUsername(username)
	if username == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.usage_assign"))
	}

	ok, err := r.svc.Licenses.AssignCode(ctx, code, username)
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	if !ok {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.code_not_found"))
	}

	text := r.tr.T("bot.assign_done", code, username)
	if r.svc.Notifier != nil {
		notified, err := r.svc.Notifier.CodeAssigned(ctx, username, code)
		if err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Str("username", username).Msg("assignment notification failed")
		}
		if notified {
			text += "\n" + r.tr.T("bot.assign_notified")
		}
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleFreeCommand(ctx context.Context, message *tgbotapi.Message) error {
	codes, err := r.svc.Licenses.FreeCodes(ctx, freeCodesShown)
	if err != nil {
		return r.replyError(ctx, message, err)
	}
	if len(codes) == 0 {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.no_free_codes"))
	}
	lines := make([]string, 0, len(codes))
	for _, c := range codes {
		lines = append(lines, fmt.Sprintf("%s (%d)", c.Code, c.Days))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("bot.free_codes", strings.Join(lines, "\n")))
}
