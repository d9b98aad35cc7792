package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/events"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/otp"
	"pengajuan-service/internal/ratelimit"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// OtpHandler serves direct OTP send/verify for clients that manage
// their own draft state.
type OtpHandler struct {
	gateway  *otp.Gateway
	limiter  *ratelimit.RateLimitStore
	detector *ratelimit.SuspiciousActivityDetector
	recorder events.Sink
	abuse    config.AbuseConfig
}

func NewOtpHandler(
	cfg *config.Config,
	gateway *otp.Gateway,
	limiter *ratelimit.RateLimitStore,
	detector *ratelimit.SuspiciousActivityDetector,
	recorder events.Sink,
) *OtpHandler {
	return &OtpHandler{
		gateway:  gateway,
		limiter:  limiter,
		detector: detector,
		recorder: recorder,
		abuse:    cfg.Abuse,
	}
}

func (h *OtpHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/send", h.Send)
		r.Post("/verify", h.Verify)
	})
}

type otpSendRequest struct {
	Phone string `json:"phone"`
}

func (h *OtpHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	var req otpSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}
	if !phonePattern.MatchString(req.Phone) {
		respondWithError(w, http.StatusBadRequest,
			errors.New("invalid phone number"), "Nomor HP tidak valid")
		return
	}

	detection, err := h.detector.Detect(ctx, ip, r.UserAgent())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if detection.Suspicious {
		eventType := models.EventBurstDetected
		if detection.Reason == ratelimit.ReasonSuspiciousUserAgent {
			eventType = models.EventSuspiciousUserAgent
		}
		h.recorder.Record(eventType, ip, r.UserAgent(), "endpoint=otp_send")
		respondThrottled(w, ThrottleInfo{
			Reason:         detection.Reason,
			RequireCaptcha: true,
		})
		return
	}

	limit, err := h.limiter.Check(ctx, "otp_send_"+ip, h.abuse.OTPSendMaxRequests, h.abuse.OTPSendWindow)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if !limit.Allowed {
		h.recorder.Record(models.EventRateLimitExceeded, ip, r.UserAgent(),
			fmt.Sprintf("key=otp_send_%s", ip))
		respondThrottled(w, ThrottleInfo{
			Reason:           "Terlalu banyak permintaan OTP",
			ResetTimeMinutes: limit.ResetTimeMinutes,
		})
		return
	}

	result, err := h.gateway.Send(ctx, req.Phone)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Gagal mengirim OTP")
		return
	}

	// A soft failure still answers 200; the client surfaces the message
	respondWithJSON(w, http.StatusOK, Response{
		Success: result.Success,
		Message: result.Message,
	})
}

type otpVerifyRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}
	if req.Phone == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("phone and otp are required"), "Nomor HP dan kode OTP wajib diisi")
		return
	}

	limit, err := h.limiter.Check(ctx, "otp_verify_"+ip, h.abuse.OTPVerifyMaxRequests, h.abuse.OTPVerifyWindow)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if !limit.Allowed {
		h.recorder.Record(models.EventRateLimitExceeded, ip, r.UserAgent(),
			fmt.Sprintf("key=otp_verify_%s", ip))
		respondThrottled(w, ThrottleInfo{
			Reason:           "Terlalu banyak percobaan verifikasi OTP",
			ResetTimeMinutes: limit.ResetTimeMinutes,
		})
		return
	}

	if err := h.gateway.Verify(ctx, req.Phone, req.OTP); err != nil {
		if errors.Is(err, otp.ErrIncorrectCode) {
			h.recorder.Record(models.EventOTPVerifyFailed, ip, r.UserAgent(), "")
		}
		respondWithJSON(w, http.StatusOK, Response{
			Success: false,
			Message: otpErrorMessage(err),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Kode OTP berhasil diverifikasi",
	})
}

func otpErrorMessage(err error) string {
	switch {
	case errors.Is(err, otp.ErrExpiredOrNotFound):
		return "Kode OTP sudah kedaluwarsa atau tidak ditemukan"
	case errors.Is(err, otp.ErrIncorrectCode):
		return "Kode OTP salah"
	default:
		return "Gagal memverifikasi kode OTP"
	}
}
