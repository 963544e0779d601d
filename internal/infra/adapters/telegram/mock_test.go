//go:build !integration

package telegram

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-license-server/internal/config"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/db/store"
	"telegram-license-server/internal/infra/i18n"
	"telegram-license-server/internal/usecase"
)

const (
	testOwnerID = int64(1000)
	testBotName = "licensebot"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Fake sender ---

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig

	SendFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(c)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("expected a message to be sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- Mock limiter and notifier ---

type mockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.AllowFunc(ctx, key, limit, window)
}

type mockNotifier struct {
	usecase.NotificationUseCase

	mu       sync.Mutex
	assigned []string
}

func (m *mockNotifier) CodeAssigned(_ context.Context, username, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned = append(m.assigned, username+":"+code)
	return true, nil
}

// --- Test environment ---

type testEnv struct {
	bot        *RealTelegramBotAdapter
	out        *fakeSender
	tr         *i18n.Translator
	identities usecase.IdentityUseCase
	licenses   usecase.LicenseUseCase
	notifier   *mockNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	pool, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(pool.Close)

	log := newTestLogger()
	tm := db.NewTxManager(pool, 3, 10*time.Millisecond, log)
	opts := store.SchemaOptions{Settings: usecase.DefaultSettings("https://example.com/app", "@support")}
	if err := store.InitSchema(ctx, tm, pool.Dialect(), opts, log); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	s := store.New(pool, nil, time.Minute, log)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}

	env := &testEnv{
		out:        &fakeSender{},
		tr:         tr,
		identities: usecase.NewIdentityUseCase(s.Users, s.PendingUsers, s.Referrals, s.Payouts, s.Codes, s.Activations, tm, log),
		licenses:   usecase.NewLicenseUseCase(s.Codes, s.Activations, s.Payments, s.Users, s.PendingUsers, s.PendingAssign, tm, log),
		notifier:   &mockNotifier{},
	}
	cfg := &config.BotConfig{Username: testBotName}
	env.bot = newAdapter(env.out, cfg, tr, 1, log).WithServices(Services{
		Identities: env.identities,
		Licenses:   env.licenses,
		Admins:     usecase.NewAdminUseCase(s.Admins, []int64{testOwnerID}, log),
		Settings:   usecase.NewSettingsUseCase(s.Settings, log),
		Notifier:   env.notifier,
	}, nil)
	return env
}

// command builds an update carrying a bot command from user id.
func command(id int64, username, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, ch := range text {
		if ch == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: id, UserName: username},
		Chat:     &tgbotapi.Chat{ID: id},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

// run dispatches one update and returns the reply text.
func (e *testEnv) run(t *testing.T, id int64, username, text string) string {
	t.Helper()
	if err := e.bot.handleUpdate(context.Background(), command(id, username, text)); err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
	return e.out.last(t).Text
}

func (e *testEnv) mintCode(t *testing.T, days int) *model.Code {
	t.Helper()
	c, err := e.licenses.CreateCode(context.Background(), days, false)
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	return c
}
