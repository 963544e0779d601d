package store

import (
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
	red "telegram-license-server/internal/infra/redis"
)

// Stores bundles every repository over one pool. It is built once at startup
// and handed to the use cases; nothing in this package keeps global state.
type Stores struct {
	Codes         repository.CodeRepository
	Activations   repository.ActivationRepository
	Users         repository.UserRepository
	PendingUsers  repository.PendingUserRepository
	Referrals     repository.ReferralRepository
	Payments      repository.PaymentRepository
	Payouts       repository.PayoutRepository
	Settings      repository.SettingRepository
	Admins        repository.AdminRepository
	PendingAssign repository.PendingAssignRepository
}

// New builds the repositories. When cache is non-nil the settings
// repository is wrapped in the redis read-through decorator.
func New(pool db.DB, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *Stores {
	var settings repository.SettingRepository = NewSettingRepo(pool)
	if cache != nil {
		settings = NewSettingRepoCacheDecorator(settings, cache, ttl, logger)
	}
	return &Stores{
		Codes:         NewCodeRepo(pool),
		Activations:   NewActivationRepo(pool),
		Users:         NewUserRepo(pool),
		PendingUsers:  NewPendingUserRepo(pool),
		Referrals:     NewReferralRepo(pool),
		Payments:      NewPaymentRepo(pool),
		Payouts:       NewPayoutRepo(pool),
		Settings:      settings,
		Admins:        NewAdminRepo(pool),
		PendingAssign: NewPendingAssignRepo(pool),
	}
}
