package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-guard/internal/otp"
	"otp-guard/internal/service"
	"otp-guard/internal/util"
)

// AuthHandler serves the public OTP endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// OTPRequest asks for a code. Name is only used to greet the recipient.
type OTPRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	OTP   string `json:"otp" validate:"required,len=4,numeric"`
}

type otpRoute struct {
	requestPath string
	verifyPath  string
	purpose     service.Purpose
	sent        string
	verified    string
}

var otpRoutes = []otpRoute{
	{
		requestPath: "/user-registration",
		verifyPath:  "/verify-user",
		purpose:     service.PurposeUserRegistration,
		sent:        "OTP sent to your email. Please verify your account",
		verified:    "Email verified successfully",
	},
	{
		requestPath: "/seller-registration",
		verifyPath:  "/verify-seller",
		purpose:     service.PurposeSellerRegistration,
		sent:        "OTP sent to your email. Please verify your account",
		verified:    "Email verified successfully",
	},
	{
		requestPath: "/forgot-password-user",
		verifyPath:  "/verify-forgot-password-user",
		purpose:     service.PurposeUserForgotPassword,
		sent:        "OTP sent to your email. Please verify to reset your password",
		verified:    "OTP verified. You can now reset your password",
	},
	{
		requestPath: "/forgot-password-seller",
		verifyPath:  "/verify-forgot-password-seller",
		purpose:     service.PurposeSellerForgotPassword,
		sent:        "OTP sent to your email. Please verify to reset your password",
		verified:    "OTP verified. You can now reset your password",
	},
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		for _, route := range otpRoutes {
			r.Post(route.requestPath, h.requestOTP(route))
			r.Post(route.verifyPath, h.verifyOTP(route))
		}
	})
}

func (h *AuthHandler) requestOTP(route otpRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OTPRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			h.respondWithError(w, err)
			return
		}
		if util.ContainsSuspicious(req.Name) {
			h.respondWithError(w, &requestError{message: "name contains invalid characters"})
			return
		}

		if err := h.auth.RequestOTP(r.Context(), route.purpose, util.SanitizeInput(req.Name), req.Email); err != nil {
			h.respondWithError(w, err)
			return
		}

		respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, route.sent))
	}
}

func (h *AuthHandler) verifyOTP(route otpRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			h.respondWithError(w, err)
			return
		}

		if err := h.auth.VerifyOTP(r.Context(), route.purpose, req.Email, req.OTP); err != nil {
			h.respondWithError(w, err)
			return
		}

		respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, route.verified))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, err error) {
	status, code, message := classifyError(err)

	var verr *otp.ValidationError
	if errors.As(err, &verr) && verr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(verr.RetryAfter.Seconds())))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("OTP request failed", util.ErrorField(err))
	}
	respondWithError(w, h.logger, status, code, message)
}

// classifyError maps an error to its HTTP status, a stable error code and the
// message shown to the client.
func classifyError(err error) (int, string, string) {
	var reqErr *requestError
	var verr *otp.ValidationError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "invalid_request", reqErr.message
	case errors.As(err, &verr):
		return verr.StatusCode(), errorCode(verr.Kind), verr.Message
	case errors.Is(err, service.ErrUnknownPurpose):
		return http.StatusNotFound, "unknown_purpose", "Unknown OTP purpose"
	case errors.Is(err, otp.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable. Please try again later"
	default:
		return http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again later"
	}
}

func errorCode(kind error) string {
	switch {
	case errors.Is(kind, otp.ErrLocked):
		return "account_locked"
	case errors.Is(kind, otp.ErrSpamLock), errors.Is(kind, otp.ErrSpamThresholdExceeded):
		return "too_many_requests"
	case errors.Is(kind, otp.ErrCooldown):
		return "cooldown"
	case errors.Is(kind, otp.ErrCodeExpired):
		return "otp_expired"
	case errors.Is(kind, otp.ErrCodeIncorrect):
		return "otp_incorrect"
	case errors.Is(kind, otp.ErrAttemptsExhausted):
		return "account_locked"
	case errors.Is(kind, otp.ErrDeliveryFailed):
		return "delivery_failed"
	default:
		return "rejected"
	}
}
