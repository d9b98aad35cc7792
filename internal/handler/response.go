package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"pengajuan-service/internal/captcha"
	"pengajuan-service/internal/otp"
	"pengajuan-service/internal/submission"
	"pengajuan-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ThrottleInfo is the 429 payload for rate-limit and suspicion
// rejections. RequireCaptcha tells the client to escalate to the
// CAPTCHA-gated flow.
type ThrottleInfo struct {
	Reason           string `json:"reason"`
	ResetTimeMinutes int    `json:"resetTimeMinutes,omitempty"`
	RequireCaptcha   bool   `json:"requireCaptcha,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		zap.Error(err),
		zap.Int("status_code", statusCode),
		zap.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

func respondThrottled(w http.ResponseWriter, info ThrottleInfo) {
	respondWithJSON(w, http.StatusTooManyRequests, Response{
		Success: false,
		Error:   info.Reason,
		Data:    info,
	})
}

func getStatusCode(err error) int {
	switch {
	case errors.Is(err, captcha.ErrExpiredOrInvalid),
		errors.Is(err, captcha.ErrTooManyAttempts),
		errors.Is(err, captcha.ErrIncorrectAnswer):
		return http.StatusBadRequest
	case errors.Is(err, otp.ErrExpiredOrNotFound),
		errors.Is(err, otp.ErrIncorrectCode):
		return http.StatusBadRequest
	case errors.Is(err, submission.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, submission.ErrInvalidStatus),
		errors.Is(err, submission.ErrInvalidTransition),
		errors.Is(err, submission.ErrNoDraft),
		errors.Is(err, submission.ErrDraftNotStaged),
		errors.Is(err, submission.ErrDraftNotVerified):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientIP returns the request's remote address without the port.
// The RealIP middleware has already unwrapped proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
