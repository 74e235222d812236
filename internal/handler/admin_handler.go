package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-guard/internal/service"
)

const adminTokenHeader = "X-Admin-Token"

// AdminHandler exposes OTP state to operators.
type AdminHandler struct {
	admin  *service.AdminService
	token  string
	logger *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, token string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, token: token, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin/otp", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/stats", h.Stats)
		r.Get("/{email}", h.Inspect)
		r.Get("/{email}/events", h.History)
		r.Delete("/{email}/locks", h.Unlock)
	})
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get(adminTokenHeader)
		if h.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
			respondWithError(w, h.logger, http.StatusUnauthorized, "unauthorized", "Admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	email, ok := h.emailParam(w, r)
	if !ok {
		return
	}

	snap, err := h.admin.Inspect(r.Context(), email)
	if err != nil {
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "Failed to read OTP state")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(snap, "OTP state retrieved"))
}

func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	email, ok := h.emailParam(w, r)
	if !ok {
		return
	}

	if err := h.admin.Unlock(r.Context(), email); err != nil {
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "Failed to clear OTP restrictions")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "OTP restrictions cleared"))
}

const maxHistoryLimit = 500

func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	email, ok := h.emailParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			respondWithError(w, h.logger, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	history, err := h.admin.History(r.Context(), email, limit)
	switch {
	case errors.Is(err, service.ErrHistoryUnavailable):
		respondWithError(w, h.logger, http.StatusNotImplemented, "history_unavailable", "Security event history is not configured")
		return
	case err != nil:
		h.logger.Error("failed to read security event history", zap.Error(err))
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "Failed to read security events")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(history, "Security events retrieved"))
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "Failed to collect OTP stats")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(stats, "OTP stats retrieved"))
}

func (h *AdminHandler) emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := chi.URLParam(r, "email")
	if err := getValidator().Var(email, "required,email"); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "invalid_request", "email must be a valid email address")
		return "", false
	}
	return email, true
}
