package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/logging"
)

// Compile-time check
var _ SettingsUseCase = (*settingsUC)(nil)

// Well-known setting keys.
const (
	SettingWelcomeMessage  = "welcome_message"
	SettingSoftwareURL     = "software_url"
	SettingPaymentsEnabled = "payments_enabled"
	SettingManualContact   = "manual_payment_contact"
	settingPricePrefix     = "price_"
)

// PlanDays are the plan lengths sold by default.
var PlanDays = []int{30, 60, 90}

// DefaultSettings are seeded on start and never overwrite operator edits.
func DefaultSettings(softwareURL, manualContact string) []model.Setting {
	return []model.Setting{
		{Key: SettingWelcomeMessage, Value: "Welcome! Use the menu below to buy or manage your license."},
		{Key: PriceKey(30), Value: "15"},
		{Key: PriceKey(60), Value: "25"},
		{Key: PriceKey(90), Value: "35"},
		{Key: SettingSoftwareURL, Value: softwareURL},
		{Key: SettingPaymentsEnabled, Value: "0"},
		{Key: SettingManualContact, Value: manualContact},
	}
}

func PriceKey(days int) string {
	return settingPricePrefix + strconv.Itoa(days)
}

type SettingsUseCase interface {
	// Get returns def when the key is missing or empty.
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]*model.Setting, error)
	PaymentsEnabled(ctx context.Context) (bool, error)
	// Price reports the configured USD price of a plan; domain.ErrNotFound when unpriced.
	Price(ctx context.Context, days int) (float64, error)
	// Quote is Price gated by the payments switch.
	Quote(ctx context.Context, days int) (float64, error)
}

type settingsUC struct {
	repo repository.SettingRepository
	log  *zerolog.Logger
}

func NewSettingsUseCase(repo repository.SettingRepository, logger *zerolog.Logger) *settingsUC {
	return &settingsUC{repo: repo, log: logger}
}

func (u *settingsUC) Get(ctx context.Context, key, def string) (string, error) {
	defer logging.TraceDuration(u.log, "SettingsUC.Get")()

	s, err := u.repo.Get(ctx, repository.NoTX, key)
	if errors.Is(err, domain.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if s.Value == "" {
		return def, nil
	}
	return s.Value, nil
}

func (u *settingsUC) Set(ctx context.Context, key, value string) error {
	defer logging.TraceDuration(u.log, "SettingsUC.Set")()

	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidArgument
	}
	if strings.HasPrefix(key, settingPricePrefix) {
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return domain.ErrInvalidArgument
		}
	}
	if err := u.repo.Set(ctx, repository.NoTX, key, value); err != nil {
		return err
	}
	u.log.Info().Str("key", key).Msg("setting updated")
	return nil
}

func (u *settingsUC) List(ctx context.Context) ([]*model.Setting, error) {
	defer logging.TraceDuration(u.log, "SettingsUC.List")()
	return u.repo.List(ctx, repository.NoTX)
}

func (u *settingsUC) PaymentsEnabled(ctx context.Context) (bool, error) {
	v, err := u.Get(ctx, SettingPaymentsEnabled, "0")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, nil
}

func (u *settingsUC) Price(ctx context.Context, days int) (float64, error) {
	v, err := u.Get(ctx, PriceKey(days), "")
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, domain.ErrNotFound
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, domain.ErrNotFound
	}
	return p, nil
}

func (u *settingsUC) Quote(ctx context.Context, days int) (float64, error) {
	enabled, err := u.PaymentsEnabled(ctx)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, domain.ErrPaymentsDisabled
	}
	return u.Price(ctx, days)
}
