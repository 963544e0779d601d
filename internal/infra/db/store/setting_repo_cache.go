package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/metrics"
	red "telegram-license-server/internal/infra/redis"
)

var _ repository.SettingRepository = (*settingRepoCacheDecorator)(nil)

// settingRepoCacheDecorator is a read-through cache over the settings table.
// Entries live for ttl, which bounds staleness across processes; writes
// through this decorator invalidate immediately.
type settingRepoCacheDecorator struct {
	inner repository.SettingRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSettingRepoCacheDecorator(inner repository.SettingRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SettingRepository {
	return &settingRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger,
	}
}

func settingKey(key string) string { return fmt.Sprintf("setting:%s", key) }

const settingsListKey = "settings:all"

func (d *settingRepoCacheDecorator) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	ck := settingKey(key)
	val, err := d.cache.Get(ctx, ck)
	if err == nil {
		var s model.Setting
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncSettingsCache("key", metrics.CacheHit)
			return &s, nil
		}
	} else if err != red.Nil {
		metrics.IncSettingsCache("key", metrics.CacheError)
		d.log.Warn().Err(err).Str("key", ck).Msg("settings cache read failed")
	}

	metrics.IncSettingsCache("key", metrics.CacheMiss)
	s, err := d.inner.Get(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, ck, b, d.ttl)
	}
	return s, nil
}

// For write operations, we must invalidate the cache.
func (d *settingRepoCacheDecorator) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	if err := d.inner.Set(ctx, tx, key, value); err != nil {
		return err
	}
	d.invalidate(ctx, key)
	return nil
}

func (d *settingRepoCacheDecorator) Seed(ctx context.Context, tx repository.Tx, key, value string) error {
	if err := d.inner.Seed(ctx, tx, key, value); err != nil {
		return err
	}
	d.invalidate(ctx, key)
	return nil
}

func (d *settingRepoCacheDecorator) List(ctx context.Context, tx repository.Tx) ([]*model.Setting, error) {
	val, err := d.cache.Get(ctx, settingsListKey)
	if err == nil {
		var list []*model.Setting
		if json.Unmarshal([]byte(val), &list) == nil {
			metrics.IncSettingsCache("list", metrics.CacheHit)
			return list, nil
		}
	}

	metrics.IncSettingsCache("list", metrics.CacheMiss)
	list, err := d.inner.List(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		if b, err := json.Marshal(list); err == nil {
			_ = d.cache.Set(ctx, settingsListKey, b, d.ttl)
		}
	}
	return list, nil
}

func (d *settingRepoCacheDecorator) invalidate(ctx context.Context, key string) {
	if err := d.cache.Del(ctx, settingKey(key), settingsListKey); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("settings cache invalidation failed")
	}
}
