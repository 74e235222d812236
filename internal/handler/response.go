package handler

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"otp-guard/internal/util"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   code,
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, statusCode int, code, message string) {
	if statusCode >= http.StatusInternalServerError {
		logger.Warn("HTTP error response",
			util.Int("status_code", statusCode),
			util.String("error", code),
			util.String("message", message),
		)
	}
	respondWithJSON(w, logger, statusCode, errorResponse(code, message))
}
