//go:build !integration

package store

import (
	"context"
	"time"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	red "telegram-license-server/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerSettingRepo mocks the database repository that the settings decorator wraps.
type mockInnerSettingRepo struct {
	GetFunc  func(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error)
	SetFunc  func(ctx context.Context, tx repository.Tx, key, value string) error
	SeedFunc func(ctx context.Context, tx repository.Tx, key, value string) error
	ListFunc func(ctx context.Context, tx repository.Tx) ([]*model.Setting, error)
}

func (m *mockInnerSettingRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	return m.GetFunc(ctx, tx, key)
}
func (m *mockInnerSettingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	return m.SetFunc(ctx, tx, key, value)
}
func (m *mockInnerSettingRepo) Seed(ctx context.Context, tx repository.Tx, key, value string) error {
	return m.SeedFunc(ctx, tx, key, value)
}
func (m *mockInnerSettingRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Setting, error) {
	return m.ListFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
