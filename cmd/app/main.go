// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/config"
	"telegram-license-server/internal/domain/ports/adapter"
	tele "telegram-license-server/internal/infra/adapters/telegram"
	"telegram-license-server/internal/infra/api"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/db/store"
	"telegram-license-server/internal/infra/i18n"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
	red "telegram-license-server/internal/infra/redis"
	"telegram-license-server/internal/infra/sched"
	"telegram-license-server/internal/infra/scheduler"
	"telegram-license-server/internal/infra/security"
	"telegram-license-server/internal/infra/web"
	"telegram-license-server/internal/infra/worker"
	"telegram-license-server/internal/usecase"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ---- Logging ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Database ----
	pool, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, pool.Dialect().Name())

	tm := db.NewTxManager(pool, cfg.Database.RetryAttempts, cfg.Database.RetryDelay, logger)
	schema := store.SchemaOptions{
		Settings:      usecase.DefaultSettings(cfg.License.SoftwareURL, cfg.License.ManualContact),
		PartnerAdmins: cfg.Bot.PartnerIDs,
		Owner:         cfg.OwnerID(),
	}
	if err := store.InitSchema(ctx, tm, pool.Dialect(), schema, logger); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	// ---- Redis (optional) ----
	var (
		cache       red.RedisClient
		rateLimiter *red.RateLimiter
	)
	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		cache = client
		rateLimiter = red.NewRateLimiter(client)
		logger.Info().Msg("redis connected")
	} else {
		logger.Info().Msg("redis not configured; settings cache and rate limits disabled")
	}

	// ---- Repositories ----
	s := store.New(pool, cache, cfg.Redis.TTL, logger)

	// ---- Use cases ----
	licenses := usecase.NewLicenseUseCase(s.Codes, s.Activations, s.Payments, s.Users, s.PendingUsers, s.PendingAssign, tm, logger)
	activation := usecase.NewActivationUseCase(s.Codes, s.Activations, tm, logger)
	identities := usecase.NewIdentityUseCase(s.Users, s.PendingUsers, s.Referrals, s.Payouts, s.Codes, s.Activations, tm, logger)
	settings := usecase.NewSettingsUseCase(s.Settings, logger)
	admins := usecase.NewAdminUseCase(s.Admins, cfg.Bot.AdminIDs, logger)
	payments := usecase.NewPaymentUseCase(s.Payments, s.Payouts, s.Users, s.Codes, tm, logger)

	var tokens usecase.TokenUseCase
	if signer, err := security.NewTokenSigner(cfg.License.TokenSecret, cfg.License.TokenMaxAge); err == nil {
		tokens = usecase.NewTokenUseCase(activation, signer, logger)
	} else {
		logger.Warn().Err(err).Msg("offline tokens disabled")
	}

	// ---- Telegram ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Lang)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	var (
		bot    adapter.TelegramBotAdapter
		poller *tele.RealTelegramBotAdapter
	)
	if cfg.Bot.Token != "" {
		poller, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, tr, cfg.Worker.Count, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot = poller
		logger.Info().Str("bot", cfg.Bot.Username).Msg("telegram bot authorized")
	} else {
		bot = tele.NewNoopBotAdapter(logger)
		logger.Warn().Msg("bot token not set; notifications are logged only")
	}
	notifier := usecase.NewNotificationUseCase(bot, tr, admins, s.Users, logger)

	// ---- Workers ----
	jobs := worker.NewPool("notify", cfg.Worker.Count, cfg.Worker.QueueSize, logger)
	jobs.Start(ctx)
	defer jobs.Stop()
	deferred := worker.NewDeferredQueue(jobs, cfg.Worker.DeferredMax, logger)
	go deferred.Run(ctx)

	payments.WithNotifier(notifier, jobs)

	// ---- Scheduler ----
	sch := scheduler.NewScheduler(cfg.Scheduler.Interval, logger,
		sched.NewAssignPurgeJob(licenses, logger),
		sched.NewPoolStatsJob(pool),
	)
	sch.Start(ctx)
	defer sch.Stop()

	// ---- HTTP ----
	apiSrv := api.NewServer(cfg.API, activation, tokens, payments, settings, logger).
		WithDeferred(deferred, pool.Dialect().IsTransient).
		WithHealthCheck(pool)
	if rateLimiter != nil {
		apiSrv.WithLimiter(rateLimiter)
	}
	auth := web.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.JWTTTL)
	adminSrv := web.NewServer(licenses, identities, payments, settings, admins, notifier, auth, logger)

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.API.Port), Handler: apiSrv.Handler(), ReadHeaderTimeout: 5 * time.Second},
	}
	if cfg.Admin.Port > 0 && auth.Enabled() {
		servers = append(servers, &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: adminSrv.Handler(), ReadHeaderTimeout: 5 * time.Second})
	} else {
		logger.Info().Msg("admin api disabled")
	}

	errc := make(chan error, len(servers)+1)
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	// ---- Bot polling ----
	if poller != nil {
		var limiter tele.Limiter
		if rateLimiter != nil {
			limiter = rateLimiter
		}
		poller.WithServices(tele.Services{
			Identities: identities,
			Licenses:   licenses,
			Admins:     admins,
			Settings:   settings,
			Notifier:   notifier,
		}, limiter)
		go func() {
			if err := poller.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Graceful shutdown ----
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("http shutdown")
		}
	}
	if poller != nil {
		poller.StopPolling()
	}
	return runErr
}
