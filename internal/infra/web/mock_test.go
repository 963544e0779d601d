//go:build !integration

package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/db/store"
	"telegram-license-server/internal/usecase"
)

const (
	testAPIKey    = "test-admin-key"
	testJWTSecret = "test-admin-jwt-secret-please-change"
	testOwnerID   = int64(1000)
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Mock Notifier ---

type mockNotifier struct {
	mu       sync.Mutex
	assigned []string

	CodeAssignedFunc func(ctx context.Context, username, code string) (bool, error)
}

func (m *mockNotifier) PaymentFulfilled(context.Context, model.Order, string) error { return nil }

func (m *mockNotifier) CodeAssigned(ctx context.Context, username, code string) (bool, error) {
	m.mu.Lock()
	m.assigned = append(m.assigned, username+":"+code)
	m.mu.Unlock()
	if m.CodeAssignedFunc != nil {
		return m.CodeAssignedFunc(ctx, username, code)
	}
	return true, nil
}

// --- Test environment ---

// testEnv is an admin server over real use cases and an in-memory database.
type testEnv struct {
	licenses   usecase.LicenseUseCase
	identities usecase.IdentityUseCase
	payments   usecase.PaymentUseCase
	notifier   *mockNotifier
	auth       *AuthManager
	handler    http.Handler
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

	env := &testEnv{
		licenses:   usecase.NewLicenseUseCase(s.Codes, s.Activations, s.Payments, s.Users, s.PendingUsers, s.PendingAssign, tm, log),
		identities: usecase.NewIdentityUseCase(s.Users, s.PendingUsers, s.Referrals, s.Payouts, s.Codes, s.Activations, tm, log),
		payments:   usecase.NewPaymentUseCase(s.Payments, s.Payouts, s.Users, s.Codes, tm, log),
		notifier:   &mockNotifier{},
		auth:       NewAuthManager(testAPIKey, testJWTSecret, false, time.Minute),
	}
	settings := usecase.NewSettingsUseCase(s.Settings, log)
	admins := usecase.NewAdminUseCase(s.Admins, []int64{testOwnerID}, log)
	srv := NewServer(env.licenses, env.identities, env.payments, settings, admins, env.notifier, env.auth, log)
	env.handler = srv.Handler()
	return env
}

// token mints a session for the owner.
func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, _, err := e.auth.Mint(httptest.NewRecorder(), "1000")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

// call sends an authenticated request with an optional JSON body.
func (e *testEnv) call(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
