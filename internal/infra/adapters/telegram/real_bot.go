package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-license-server/internal/config"
	"telegram-license-server/internal/domain/ports/adapter"
	"telegram-license-server/internal/infra/i18n"
	"telegram-license-server/internal/infra/logging"
	red "telegram-license-server/internal/infra/redis"
	"telegram-license-server/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const (
	maxSendRetries     = 2
	commandLimit       = 20
	commandLimitWindow = time.Minute
)

// sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Services are the use cases behind the bot commands.
type Services struct {
	Identities usecase.IdentityUseCase
	Licenses   usecase.LicenseUseCase
	Admins     usecase.AdminUseCase
	Settings   usecase.SettingsUseCase
	Notifier   usecase.NotificationUseCase
}

// RealTelegramBotAdapter sends notifications through the Bot API and, once
// services are attached, serves a small command set over long polling.
type RealTelegramBotAdapter struct {
	api *tgbotapi.BotAPI
	out sender
	cfg *config.BotConfig
	tr  *i18n.Translator
	log *zerolog.Logger

	svc         Services
	rateLimiter Limiter // optional

	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, tr *i18n.Translator, updateWorkers int, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if tr == nil {
		return nil, errors.New("translator is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		cfg.Username = bot.Self.UserName
	}
	r := newAdapter(bot, cfg, tr, updateWorkers, logger)
	r.api = bot
	return r, nil
}

func newAdapter(out sender, cfg *config.BotConfig, tr *i18n.Translator, updateWorkers int, logger *zerolog.Logger) *RealTelegramBotAdapter {
	if updateWorkers <= 0 {
		updateWorkers = 5
	}
	return &RealTelegramBotAdapter{
		out:           out,
		cfg:           cfg,
		tr:            tr,
		log:           logger,
		updateWorkers: updateWorkers,
	}
}

// WithServices attaches the command handlers' dependencies. The notifier
// needs the adapter to exist first, hence the two-step construction.
func (r *RealTelegramBotAdapter) WithServices(svc Services, limiter Limiter) *RealTelegramBotAdapter {
	r.svc = svc
	r.rateLimiter = limiter
	return r
}

// StartPolling blocks until ctx is cancelled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.api == nil {
		return errors.New("polling needs a live bot client")
	}
	if r.svc.Identities == nil {
		return errors.New("bot services are not attached")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("telegram update failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			wg.Wait()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				cancel()
				wg.Wait()
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	return r.send(ctx, tgbotapi.NewMessage(tgID, text))
}

// SendButtons sends a message with inline buttons using tgbotapi.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}

	msg := tgbotapi.NewMessage(tgID, text)
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	return r.send(ctx, msg)
}

// send honours Telegram's retry_after on flood errors, a bounded number of
// times.
func (r *RealTelegramBotAdapter) send(ctx context.Context, c tgbotapi.Chattable) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := r.out.Send(c)
		if err == nil {
			return nil
		}

		var tgErr *tgbotapi.Error
		if attempt >= maxSendRetries || !errors.As(err, &tgErr) || tgErr.RetryAfter <= 0 {
			return err
		}
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		logging.With(ctx, r.log).Warn().Dur("retry_after", wait).Msg("telegram flood control")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// allow applies the per-user command limit; limiter faults let the command through.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, command string) bool {
	if r.rateLimiter == nil {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.CommandKey(tgID, command), commandLimit, commandLimitWindow)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limit error")
		return true
	}
	return ok
}
