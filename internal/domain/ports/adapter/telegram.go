package adapter

import "context"

// InlineButton is one button under a bot message. Exactly one of Data
// (callback payload) or URL (download or payment link) is expected.
type InlineButton struct {
	Text string
	Data string
	URL  string
}

// TelegramBotAdapter delivers license notices to Telegram users: purchase
// receipts with the issued code, assignment notices and referral payouts.
// Implementations return an error only when the message could not be sent;
// callers treat delivery as best effort.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	// SendButtons sends text with rows of inline buttons, e.g. the client
	// download link on /start.
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
}
