//go:build !integration

package api_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/security"
	"telegram-license-server/internal/infra/worker"
	"telegram-license-server/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Mock Use Cases ---

type mockActivation struct {
	usecase.ActivationUseCase // Embed interface for forward compatibility
	CheckOrActivateFunc       func(ctx context.Context, code, hwid, inst string) (model.ActivationResult, error)
}

func (m *mockActivation) CheckOrActivate(ctx context.Context, code, hwid, inst string) (model.ActivationResult, error) {
	return m.CheckOrActivateFunc(ctx, code, hwid, inst)
}

type mockTokens struct {
	IssueFunc  func(ctx context.Context, code, hwid, inst string) (string, model.ActivationResult, error)
	VerifyFunc func(ctx context.Context, token string) (*security.TokenPayload, error)
}

func (m *mockTokens) Issue(ctx context.Context, code, hwid, inst string) (string, model.ActivationResult, error) {
	return m.IssueFunc(ctx, code, hwid, inst)
}

func (m *mockTokens) Verify(ctx context.Context, token string) (*security.TokenPayload, error) {
	return m.VerifyFunc(ctx, token)
}

type mockPayments struct {
	usecase.PaymentUseCase
	mu               sync.Mutex
	orders           []model.Order
	FulfillOrderFunc func(ctx context.Context, order model.Order) (*model.Fulfillment, error)
}

func (m *mockPayments) FulfillOrder(ctx context.Context, order model.Order) (*model.Fulfillment, error) {
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()
	return m.FulfillOrderFunc(ctx, order)
}

func (m *mockPayments) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Order(nil), m.orders...)
}

type mockSettings struct {
	usecase.SettingsUseCase
	QuoteFunc func(ctx context.Context, days int) (float64, error)
}

func (m *mockSettings) Quote(ctx context.Context, days int) (float64, error) {
	return m.QuoteFunc(ctx, days)
}

// --- Mock Infrastructure ---

type mockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.AllowFunc(ctx, key, limit, window)
}

type recordingDeferrer struct {
	tasks []worker.Task
	err   error
}

func (d *recordingDeferrer) Push(task worker.Task) error {
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

type mockPinger struct{ err error }

func (p mockPinger) Ping(context.Context) error { return p.err }
