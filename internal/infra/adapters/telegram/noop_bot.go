package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/ports/adapter"
	"telegram-license-server/internal/infra/logging"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter stands in when no bot token is configured. Messages are
// logged instead of sent.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: logger}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.With(ctx, b.log).Info().Int64("to", tgID).Str("text", text).Msg("noop telegram message")
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.With(ctx, b.log).Info().Int64("to", tgID).Str("text", text).Int("button_rows", len(rows)).Msg("noop telegram buttons")
	return nil
}
