//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/adapter"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/db/store"
	"telegram-license-server/internal/infra/i18n"
	"telegram-license-server/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// testEnv is a private in-memory database with every repository wired.
type testEnv struct {
	tm *db.TxManager
	s  *store.Stores
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	pool, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(pool.Close)

	tm := db.NewTxManager(pool, 3, 10*time.Millisecond, newTestLogger())
	opts := store.SchemaOptions{Settings: usecase.DefaultSettings("https://example.com/app", "@support")}
	if err := store.InitSchema(ctx, tm, pool.Dialect(), opts, newTestLogger()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return &testEnv{tm: tm, s: store.New(pool, nil, time.Minute, newTestLogger())}
}

func (e *testEnv) licenses() usecase.LicenseUseCase {
	s := e.s
	return usecase.NewLicenseUseCase(s.Codes, s.Activations, s.Payments, s.Users, s.PendingUsers, s.PendingAssign, e.tm, newTestLogger())
}

func (e *testEnv) identities() usecase.IdentityUseCase {
	s := e.s
	return usecase.NewIdentityUseCase(s.Users, s.PendingUsers, s.Referrals, s.Payouts, s.Codes, s.Activations, e.tm, newTestLogger())
}

// activations builds the activation use case, optionally on a fake clock.
func (e *testEnv) activations(now ...func() time.Time) usecase.ActivationUseCase {
	uc := usecase.NewActivationUseCase(e.s.Codes, e.s.Activations, e.tm, newTestLogger())
	if len(now) > 0 {
		uc = uc.WithClock(now[0])
	}
	return uc
}

// payments builds the payment ledger; notifications are sent inline when n is set.
func (e *testEnv) payments(n usecase.PaymentNotifier) usecase.PaymentUseCase {
	s := e.s
	uc := usecase.NewPaymentUseCase(s.Payments, s.Payouts, s.Users, s.Codes, e.tm, newTestLogger())
	if n != nil {
		uc = uc.WithNotifier(n, nil)
	}
	return uc
}

func (e *testEnv) mustCode(t *testing.T, days int, dev bool) *model.Code {
	t.Helper()
	c, err := e.licenses().CreateCode(context.Background(), days, dev)
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	return c
}

func (e *testEnv) mustUser(t *testing.T, id int64, username string, referredBy int64) *model.User {
	t.Helper()
	u, err := e.identities().EnsureIdentity(context.Background(), id, username, referredBy)
	if err != nil {
		t.Fatalf("ensure identity: %v", err)
	}
	return u
}

// fixedClock returns a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---- Mock TelegramBotAdapter ----

type sentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

// SendMessage records every attempt before calling SendMessageFunc.
func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text})
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatID, text)
	}
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, _ [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, chatID, text)
}

func (m *MockTelegramBot) Messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.Sent...)
}

// --- Mock Translator

func newTestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`
notify.payment_received: "paid %d %s"
notify.admin_payment: "admin %s $%s %d %s %s"
notify.code_assigned: "assigned %s"
`)},
	}
	tr, err := i18n.NewTranslator(testFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return tr
}
