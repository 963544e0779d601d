package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-license-server/internal/config"
	"telegram-license-server/internal/infra/worker"
	"telegram-license-server/internal/usecase"
)

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Deferrer is satisfied by worker.DeferredQueue.
type Deferrer interface {
	Push(task worker.Task) error
}

// Pinger is satisfied by db.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the public JSON API used by license clients and payment gateways.
type Server struct {
	cfg        config.APIConfig
	activation usecase.ActivationUseCase
	tokens     usecase.TokenUseCase // nil when no token secret is configured
	payments   usecase.PaymentUseCase
	settings   usecase.SettingsUseCase

	limiter   Limiter
	deferred  Deferrer
	transient func(error) bool
	db        Pinger

	log *zerolog.Logger
}

func NewServer(
	cfg config.APIConfig,
	activation usecase.ActivationUseCase,
	tokens usecase.TokenUseCase,
	payments usecase.PaymentUseCase,
	settings usecase.SettingsUseCase,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		activation: activation,
		tokens:     tokens,
		payments:   payments,
		settings:   settings,
		transient:  func(error) bool { return false },
		log:        logger,
	}
}

// WithLimiter enables per-hwid rate limiting on /check.
func (s *Server) WithLimiter(l Limiter) *Server {
	s.limiter = l
	return s
}

// WithDeferred makes the webhook park orders that failed with a transient
// storage error instead of answering 500.
func (s *Server) WithDeferred(d Deferrer, transient func(error) bool) *Server {
	s.deferred = d
	if transient != nil {
		s.transient = transient
	}
	return s
}

// WithHealthCheck makes /health ping the database.
func (s *Server) WithHealthCheck(p Pinger) *Server {
	s.db = p
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(s.log),
		RequestLog("api", s.log),
		Recover(s.log),
	)
	if s.cfg.Timeout > 0 {
		r.Use(Timeout(s.cfg.Timeout))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/price/{days}", s.handlePrice)

	r.Group(func(r chi.Router) {
		r.Use(RequireSecret(s.cfg.Secret), MaxBody(s.cfg.MaxBodyBytes))
		r.Post("/check", s.handleCheck)
		r.Post("/token", s.handleToken)
		r.Post("/token/verify", s.handleTokenVerify)
		r.Post("/payment/webhook/{system}", s.handleWebhook)
	})
	return r
}
