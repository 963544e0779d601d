package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/logging"
	red "telegram-license-server/internal/infra/redis"
)

// Error codes returned in {"ok":false,"error":...}. Activation refusals use
// the outcome codes from the domain package.
const (
	errUnauthorized     = "unauthorized"
	errInvalidJSON      = "invalid_json"
	errMissingFields    = "missing_code_or_hwid"
	errServer           = "server_error"
	errRateLimited      = "rate_limited"
	errTokenDisabled    = "token_disabled"
	errInvalidToken     = "invalid_token"
	errStaleToken       = "stale_token"
	errInvalidPayload   = "invalid_payload"
	errInvalidPlan      = "invalid_plan"
	errUnknownPlan      = "unknown_plan"
	errPaymentsDisabled = "payments_disabled"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{OK: false, Error: code})
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type licenseRequest struct {
	Code           string `json:"code"`
	HWID           string `json:"hwid"`
	InstallationID string `json:"installation_id"`
}

func (req *licenseRequest) normalize() bool {
	req.Code = strings.TrimSpace(req.Code)
	req.HWID = strings.TrimSpace(req.HWID)
	req.InstallationID = strings.TrimSpace(req.InstallationID)
	return req.Code != "" && req.HWID != ""
}

type licenseResponse struct {
	OK          bool    `json:"ok"`
	Token       string  `json:"token,omitempty"`
	ExpiresAt   *string `json:"expires_at"`
	IsDeveloper bool    `json:"is_developer"`
}

func formatExpiry(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func decodeLicenseRequest(w http.ResponseWriter, r *http.Request) (licenseRequest, bool) {
	var req licenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSON)
		return req, false
	}
	if !req.normalize() {
		writeError(w, http.StatusBadRequest, errMissingFields)
		return req, false
	}
	return req, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowCheck fails open: a limiter outage must not lock clients out.
func (s *Server) allowCheck(ctx context.Context, hwid string) bool {
	if s.limiter == nil || s.cfg.CheckLimit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, red.CheckKey(hwid), s.cfg.CheckLimit, s.cfg.CheckWindow)
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeLicenseRequest(w, r)
	if !ok {
		return
	}
	if !s.allowCheck(ctx, req.HWID) {
		writeError(w, http.StatusTooManyRequests, errRateLimited)
		return
	}

	res, err := s.activation.CheckOrActivate(ctx, req.Code, req.HWID, req.InstallationID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, errMissingFields)
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("license check failed")
		writeError(w, http.StatusInternalServerError, errServer)
		return
	}
	if !res.OK {
		writeError(w, http.StatusBadRequest, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, licenseResponse{
		OK:          true,
		ExpiresAt:   formatExpiry(res.ExpiresAt),
		IsDeveloper: res.IsDeveloper,
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, errTokenDisabled)
		return
	}
	req, ok := decodeLicenseRequest(w, r)
	if !ok {
		return
	}

	token, res, err := s.tokens.Issue(ctx, req.Code, req.HWID, req.InstallationID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, errMissingFields)
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, errServer)
		return
	}
	if !res.OK {
		writeError(w, http.StatusBadRequest, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, licenseResponse{
		OK:          true,
		Token:       token,
		ExpiresAt:   formatExpiry(res.ExpiresAt),
		IsDeveloper: res.IsDeveloper,
	})
}

type verifyResponse struct {
	OK             bool    `json:"ok"`
	Code           string  `json:"code"`
	HWID           string  `json:"hwid"`
	InstallationID string  `json:"installation_id"`
	ExpiresAt      *string `json:"expires_at"`
	IsDeveloper    bool    `json:"is_developer"`
	IssuedAt       int64   `json:"issued_at"`
}

func (s *Server) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, errTokenDisabled)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSON)
		return
	}

	p, err := s.tokens.Verify(r.Context(), req.Token)
	switch {
	case errors.Is(err, domain.ErrStaleToken):
		writeError(w, http.StatusUnauthorized, errStaleToken)
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, errInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		OK:             true,
		Code:           p.Code,
		HWID:           p.HWID,
		InstallationID: p.InstallationID,
		ExpiresAt:      p.ExpiresAt,
		IsDeveloper:    p.IsDeveloper,
		IssuedAt:       p.IssuedAt,
	})
}

// webhookRequest accepts amount as a JSON number or a decimal string.
type webhookRequest struct {
	OrderID  string          `json:"order_id"`
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Amount   decimal.Decimal `json:"amount"`
	Days     int             `json:"days"`
	Status   string          `json:"status"`
}

// paidStatus reports whether a gateway status means the money arrived. An
// absent status is taken as paid.
func paidStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "paid", "paid_over", "success", "confirmed":
		return true
	}
	return false
}

type webhookResponse struct {
	OK        bool  `json:"ok"`
	PaymentID int64 `json:"payment_id,omitempty"`
	Duplicate bool  `json:"duplicate,omitempty"`
	Ignored   bool  `json:"ignored,omitempty"`
	Deferred  bool  `json:"deferred,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	system := strings.ToLower(chi.URLParam(r, "system"))

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSON)
		return
	}
	ctx = logging.WithOrderID(ctx, req.OrderID)
	log := logging.With(ctx, s.log)

	if !paidStatus(req.Status) {
		log.Info().Str("system", system).Str("status", req.Status).Msg("webhook status ignored")
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Ignored: true})
		return
	}

	order := model.Order{
		OrderID:       req.OrderID,
		PayerID:       req.UserID,
		Username:      req.Username,
		AmountUSD:     req.Amount.InexactFloat64(),
		PlanDays:      req.Days,
		PaymentSystem: system,
	}
	res, err := s.payments.FulfillOrder(ctx, order)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, errInvalidPayload)
		return
	case err != nil && s.deferred != nil && s.transient(err):
		if perr := s.deferred.Push(s.replayOrder(order)); perr != nil {
			log.Error().Err(perr).Msg("could not defer order")
			writeError(w, http.StatusInternalServerError, errServer)
			return
		}
		log.Warn().Err(err).Msg("order deferred after transient failure")
		writeJSON(w, http.StatusAccepted, webhookResponse{OK: true, Deferred: true})
		return
	case err != nil:
		log.Error().Err(err).Msg("webhook fulfillment failed")
		writeError(w, http.StatusInternalServerError, errServer)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, PaymentID: res.PaymentID, Duplicate: res.Duplicate})
}

// replayOrder is the deferred retry of a webhook; a duplicate on replay means
// the first attempt committed after all. Another transient failure puts the
// order back in the queue, which drops it only once the queue is full.
func (s *Server) replayOrder(order model.Order) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx = logging.WithOrderID(ctx, order.OrderID)
		log := logging.With(ctx, s.log)
		res, err := s.payments.FulfillOrder(ctx, order)
		switch {
		case err != nil && s.transient(err):
			if perr := s.deferred.Push(s.replayOrder(order)); perr != nil {
				log.Error().Err(perr).AnErr("cause", err).Msg("deferred order dropped")
				return fmt.Errorf("requeue order %s: %w", order.OrderID, perr)
			}
			log.Warn().Err(err).Msg("deferred order requeued after transient failure")
			return nil
		case err != nil:
			return err
		}
		log.Info().Bool("duplicate", res.Duplicate).Msg("deferred order replayed")
		return nil
	}
}

type priceResponse struct {
	OK       bool    `json:"ok"`
	Days     int     `json:"days"`
	PriceUSD float64 `json:"price_usd"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(chi.URLParam(r, "days"))
	if err != nil || days <= 0 {
		writeError(w, http.StatusBadRequest, errInvalidPlan)
		return
	}
	price, err := s.settings.Quote(r.Context(), days)
	switch {
	case errors.Is(err, domain.ErrPaymentsDisabled):
		writeError(w, http.StatusForbidden, errPaymentsDisabled)
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, errUnknownPlan)
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("price lookup failed")
		writeError(w, http.StatusInternalServerError, errServer)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{OK: true, Days: days, PriceUSD: price})
}
