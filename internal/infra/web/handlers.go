package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/usecase"
)

const (
	maxBatchSize        = 500
	defaultPaymentLimit = 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// fail maps use-case errors onto status codes; anything unexpected is logged
// and reported as a server error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument")
	case errors.Is(err, domain.ErrCodeNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("op", op).Msg("admin request failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// clientParam reads {client} as a Telegram id when numeric, else as a
// username (which may still be staged).
func clientParam(r *http.Request) (tgID int64, username string, ok bool) {
	raw := chi.URLParam(r, "client")
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, "", id > 0
	}
	username = model.NormalizeUsername(raw)
	return 0, username, username != ""
}

func registeredParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tgID, _, ok := clientParam(r)
	if !ok || tgID <= 0 {
		writeError(w, http.StatusBadRequest, "telegram_id_required")
		return 0, false
	}
	return tgID, true
}

func intQuery(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ===== Session =====

type sessionRequest struct {
	APIKey     string `json:"api_key"`
	TelegramID int64  `json:"telegram_id"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin_disabled")
		return
	}
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.auth.CheckAPIKey(req.APIKey) {
		logging.With(ctx, s.log).Warn().Msg("admin login with a wrong key")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subject := "admin"
	if req.TelegramID != 0 {
		ok, err := s.admins.IsAdmin(ctx, req.TelegramID)
		if err != nil {
			s.fail(w, r, err, "session")
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, "not_admin")
			return
		}
		subject = strconv.FormatInt(req.TelegramID, 10)
	}

	token, exp, err := s.auth.Mint(w, subject)
	if err != nil {
		s.fail(w, r, err, "session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// ===== Codes =====

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	list, err := s.licenses.ListCodes(r.Context())
	if err != nil {
		s.fail(w, r, err, "list_codes")
		return
	}
	out := make([]codeDTO, 0, len(list))
	for _, l := range list {
		out = append(out, toCodeDTO(&l.Code, l.Activation))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type createCodesRequest struct {
	Count     int  `json:"count"`
	Days      int  `json:"days"`
	Developer bool `json:"developer"`
}

func (s *Server) handleCreateCodes(w http.ResponseWriter, r *http.Request) {
	var req createCodesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 || req.Count > maxBatchSize {
		writeError(w, http.StatusBadRequest, "invalid_count")
		return
	}

	codes, err := s.licenses.CreateCodesBatch(r.Context(), req.Count, req.Days, req.Developer)
	if err != nil {
		s.fail(w, r, err, "create_codes")
		return
	}
	out := make([]codeDTO, 0, len(codes))
	for _, c := range codes {
		out = append(out, toCodeDTO(c, nil))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": out})
}

func (s *Server) handleDeleteAllCodes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	n, err := s.licenses.DeleteAllCodes(r.Context())
	if err != nil {
		s.fail(w, r, err, "delete_all_codes")
		return
	}
	logging.With(r.Context(), s.log).Warn().Int("deleted", n).Str("by", sessionSubject(r.Context())).Msg("all codes deleted")
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) handleFreeCodes(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	codes, err := s.licenses.FreeCodes(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err, "free_codes")
		return
	}
	out := make([]codeDTO, 0, len(codes))
	for _, c := range codes {
		out = append(out, toCodeDTO(c, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleCodeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.licenses.ActivationStatus(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err, "code_status")
		return
	}
	writeJSON(w, http.StatusOK, codeStatusDTO{Code: st.Code, State: st.State, HWID: st.HWID, ActivatedAt: st.ActivatedAt})
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	ok, err := s.licenses.DeleteCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err, "delete_code")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := model.NormalizeCode(chi.URLParam(r, "code"))
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ok, err := s.licenses.AssignCode(ctx, code, req.Username)
	if err != nil {
		s.fail(w, r, err, "assign_code")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	notified := false
	if username := model.NormalizeUsername(req.Username); username != "" && s.notifier != nil {
		notified, err = s.notifier.CodeAssigned(ctx, username, code)
		if err != nil {
			logging.With(ctx, s.log).Warn().Err(err).Str("username", username).Msg("assignment notification failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "notified": notified})
}

func (s *Server) handleRevokeCode(w http.ResponseWriter, r *http.Request) {
	ok, err := s.licenses.Revoke(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err, "revoke_code")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeOK(w)
}

// ===== Clients =====

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	switch sortBy {
	case "":
		sortBy = usecase.SortByDate
	case usecase.SortByDate, usecase.SortByName, usecase.SortByStatus:
	default:
		writeError(w, http.StatusBadRequest, "invalid_sort")
		return
	}
	list, err := s.identities.ListClients(r.Context(), sortBy)
	if err != nil {
		s.fail(w, r, err, "list_clients")
		return
	}
	now := time.Now()
	out := make([]clientDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toClientDTO(c, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleClientInfo(w http.ResponseWriter, r *http.Request) {
	tgID, username, ok := clientParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_client")
		return
	}
	info, err := s.identities.FullInfo(r.Context(), tgID, username)
	if err != nil {
		s.fail(w, r, err, "client_info")
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(info, time.Now()))
}

// updateClient applies a change to a registered user or, for a username, to
// the staged identity that is merged on first contact.
func (s *Server) updateClient(w http.ResponseWriter, r *http.Request, op string,
	registered func(tgID int64) (bool, error), staged func(username string) error,
) {
	tgID, username, ok := clientParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_client")
		return
	}
	if tgID > 0 {
		found, err := registered(tgID)
		if err != nil {
			s.fail(w, r, err, op)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeOK(w)
		return
	}
	if err := staged(username); err != nil {
		s.fail(w, r, err, op)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "staged": true})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.updateClient(w, r, "set_role",
		func(tgID int64) (bool, error) { return s.identities.SetRole(ctx, tgID, req.Role) },
		func(username string) error { return s.identities.SetPendingRole(ctx, username, req.Role) },
	)
}

func (s *Server) handleSetBlocked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.updateClient(w, r, "set_blocked",
		func(tgID int64) (bool, error) { return s.identities.SetBlocked(ctx, tgID, req.Blocked) },
		func(username string) error { return s.identities.SetPendingBlocked(ctx, username, req.Blocked) },
	)
}

// handleSetDiscount clears the custom percentage when pct is null.
func (s *Server) handleSetDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Pct *float64 `json:"pct"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.updateClient(w, r, "set_discount",
		func(tgID int64) (bool, error) { return s.identities.SetCustomDiscount(ctx, tgID, req.Pct) },
		func(username string) error { return s.identities.SetPendingDiscount(ctx, username, req.Pct) },
	)
}

func (s *Server) handleClientReferrals(w http.ResponseWriter, r *http.Request) {
	tgID, ok := registeredParam(w, r)
	if !ok {
		return
	}
	list, err := s.identities.ListReferrals(r.Context(), tgID)
	if err != nil {
		s.fail(w, r, err, "list_referrals")
		return
	}
	out := make([]referralDTO, 0, len(list))
	for _, ref := range list {
		out = append(out, referralDTO{ReferredID: ref.ReferredID, ReferredUsername: ref.ReferredUsername, CreatedAt: ref.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// ===== Referral payouts =====

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.payments.ReferralStats(r.Context())
	if err != nil {
		s.fail(w, r, err, "referral_stats")
		return
	}
	out := make([]referrerStatDTO, 0, len(stats))
	for _, st := range stats {
		out = append(out, referrerStatDTO(*st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleUserPayouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tgID, ok := registeredParam(w, r)
	if !ok {
		return
	}
	payouts, err := s.payments.UserPayouts(ctx, tgID)
	if err != nil {
		s.fail(w, r, err, "user_payouts")
		return
	}
	pending, err := s.payments.TotalPending(ctx, tgID)
	if err != nil {
		s.fail(w, r, err, "user_payouts")
		return
	}
	out := make([]payoutDTO, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, payoutDTO{
			PaymentID: p.PaymentID,
			AmountUSD: p.AmountUSD,
			Percent:   p.Percent,
			Status:    p.Status,
			CreatedAt: p.CreatedAt,
			PaidAt:    p.PaidAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_usd": pending, "items": out})
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	tgID, ok := registeredParam(w, r)
	if !ok {
		return
	}
	n, err := s.payments.MarkPayoutsPaid(r.Context(), tgID)
	if err != nil {
		s.fail(w, r, err, "mark_paid")
		return
	}
	logging.With(r.Context(), s.log).Info().Int64("referrer", tgID).Int64("marked", n).Str("by", sessionSubject(r.Context())).Msg("payouts marked paid")
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

// ===== Payments =====

func (s *Server) handleRecentPayments(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", defaultPaymentLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	list, err := s.payments.RecentPayments(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err, "recent_payments")
		return
	}
	out := make([]paymentDTO, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type manualPaymentRequest struct {
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Amount   decimal.Decimal `json:"amount"`
	Days     int             `json:"days"`
}

// handleManualPayment records a payment taken outside any gateway. The order
// id is generated here, so replaying the request records a second payment.
func (s *Server) handleManualPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req manualPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	orderID := "manual-" + strings.ToLower(ulid.Make().String())

	res, err := s.payments.FulfillOrder(ctx, model.Order{
		OrderID:       orderID,
		PayerID:       req.UserID,
		Username:      req.Username,
		AmountUSD:     req.Amount.InexactFloat64(),
		PlanDays:      req.Days,
		PaymentSystem: usecase.DefaultPaymentSystem,
	})
	if err != nil {
		s.fail(w, r, err, "manual_payment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment_id": res.PaymentID,
		"order_id":   orderID,
		"code":       res.Code,
	})
}

// ===== Settings =====

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	list, err := s.settings.List(r.Context())
	if err != nil {
		s.fail(w, r, err, "list_settings")
		return
	}
	out := make([]settingDTO, 0, len(list))
	for _, st := range list {
		out = append(out, settingDTO{Key: st.Key, Value: st.Value, UpdatedAt: st.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := s.settings.Get(r.Context(), key, "")
	if err != nil {
		s.fail(w, r, err, "get_setting")
		return
	}
	if v == "" {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.settings.Set(r.Context(), key, req.Value); err != nil {
		s.fail(w, r, err, "set_setting")
		return
	}
	logging.With(r.Context(), s.log).Info().Str("key", key).Str("by", sessionSubject(r.Context())).Msg("setting updated")
	writeOK(w)
}

// ===== Admins =====

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := s.admins.ListAdmins(r.Context())
	if err != nil {
		s.fail(w, r, err, "list_admins")
		return
	}
	out := make([]adminDTO, 0, len(list))
	for _, a := range list {
		out = append(out, adminDTO(*a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": s.admins.Owner(), "items": out})
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegram_id"`
		Username   string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addedBy, _ := strconv.ParseInt(sessionSubject(r.Context()), 10, 64)
	ok, err := s.admins.AddAdmin(r.Context(), req.TelegramID, req.Username, addedBy)
	if err != nil {
		s.fail(w, r, err, "add_admin")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "owner_is_permanent")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	tgID, ok := registeredParam(w, r)
	if !ok {
		return
	}
	removed, err := s.admins.RemoveAdmin(r.Context(), tgID)
	if err != nil {
		s.fail(w, r, err, "remove_admin")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
