package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-license-server/internal/infra/api"
	"telegram-license-server/internal/infra/metrics"
	"telegram-license-server/internal/usecase"
)

// Server is the admin API. Every route except session creation requires a
// session token minted by AuthManager.
type Server struct {
	licenses   usecase.LicenseUseCase
	identities usecase.IdentityUseCase
	payments   usecase.PaymentUseCase
	settings   usecase.SettingsUseCase
	admins     usecase.AdminUseCase
	notifier   usecase.NotificationUseCase // optional
	auth       *AuthManager
	timeout    time.Duration
	log        *zerolog.Logger
}

func NewServer(
	licenses usecase.LicenseUseCase,
	identities usecase.IdentityUseCase,
	payments usecase.PaymentUseCase,
	settings usecase.SettingsUseCase,
	admins usecase.AdminUseCase,
	notifier usecase.NotificationUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		licenses:   licenses,
		identities: identities,
		payments:   payments,
		settings:   settings,
		admins:     admins,
		notifier:   notifier,
		auth:       auth,
		timeout:    15 * time.Second,
		log:        logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(s.log),
		api.RequestLog("admin", s.log),
		api.Recover(s.log),
		api.Timeout(s.timeout),
		api.MaxBody(1<<20),
	)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/session", s.handleLogin)
		r.Delete("/session", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/codes", s.handleListCodes)
			r.Post("/codes", s.handleCreateCodes)
			r.Delete("/codes", s.handleDeleteAllCodes)
			r.Get("/codes/free", s.handleFreeCodes)
			r.Get("/codes/{code}", s.handleCodeStatus)
			r.Delete("/codes/{code}", s.handleDeleteCode)
			r.Post("/codes/{code}/assign", s.handleAssignCode)
			r.Post("/codes/{code}/revoke", s.handleRevokeCode)

			r.Get("/clients", s.handleListClients)
			r.Get("/clients/{client}", s.handleClientInfo)
			r.Put("/clients/{client}/role", s.handleSetRole)
			r.Put("/clients/{client}/block", s.handleSetBlocked)
			r.Put("/clients/{client}/discount", s.handleSetDiscount)
			r.Get("/clients/{client}/referrals", s.handleClientReferrals)

			r.Get("/referrals/stats", s.handleReferralStats)
			r.Get("/payouts/{client}", s.handleUserPayouts)
			r.Post("/payouts/{client}/paid", s.handleMarkPaid)

			r.Get("/payments", s.handleRecentPayments)
			r.Post("/payments", s.handleManualPayment)

			r.Get("/settings", s.handleListSettings)
			r.Get("/settings/{key}", s.handleGetSetting)
			r.Put("/settings/{key}", s.handleSetSetting)

			r.Get("/admins", s.handleListAdmins)
			r.Post("/admins", s.handleAddAdmin)
			r.Delete("/admins/{client}", s.handleRemoveAdmin)
		})
	})
	return r
}

type ctxKey struct{}

// sessionSubject is the subject of the verified session, usually the
// admin's Telegram id.
func sessionSubject(ctx context.Context) string {
	if c, ok := ctx.Value(ctxKey{}).(*AdminClaims); ok {
		return c.Subject
	}
	return ""
}

// authMiddleware accepts a session token from the Authorization header or
// the session cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			s.log.Error().Msg("admin API key or JWT secret is not configured")
			metrics.IncAdminCommand(command(r), "disabled")
			writeError(w, http.StatusForbidden, "admin_disabled")
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			metrics.IncAdminCommand(command(r), "unauthorized")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		metrics.IncAdminCommand(command(r), "authorized")
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

// command names an admin operation by method and route pattern.
func command(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return r.Method + " " + rc.RoutePattern()
	}
	return r.Method
}
