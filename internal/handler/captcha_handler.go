package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pengajuan-service/internal/captcha"
	"pengajuan-service/internal/config"
	"pengajuan-service/internal/events"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/ratelimit"
	"pengajuan-service/internal/util"
)

// CaptchaHandler serves challenge generation and verification, both
// gated by the suspicion pre-screen and per-IP rate limits.
type CaptchaHandler struct {
	challenges *captcha.ChallengeStore
	limiter    *ratelimit.RateLimitStore
	detector   *ratelimit.SuspiciousActivityDetector
	recorder   events.Sink
	abuse      config.AbuseConfig
}

func NewCaptchaHandler(
	cfg *config.Config,
	challenges *captcha.ChallengeStore,
	limiter *ratelimit.RateLimitStore,
	detector *ratelimit.SuspiciousActivityDetector,
	recorder events.Sink,
) *CaptchaHandler {
	return &CaptchaHandler{
		challenges: challenges,
		limiter:    limiter,
		detector:   detector,
		recorder:   recorder,
		abuse:      cfg.Abuse,
	}
}

func (h *CaptchaHandler) RegisterRoutes(router chi.Router) {
	router.Route("/captcha", func(r chi.Router) {
		r.Get("/generate", h.Generate)
		r.Post("/verify", h.Verify)
	})
}

func (h *CaptchaHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	detection, err := h.detector.Detect(ctx, ip, r.UserAgent())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if detection.Suspicious {
		h.recordDetection(detection, ip, r.UserAgent())
		respondThrottled(w, ThrottleInfo{
			Reason:         detection.Reason,
			RequireCaptcha: true,
		})
		return
	}

	limit, err := h.limiter.Check(ctx, ip, h.abuse.GenerateMaxRequests, h.abuse.GenerateWindow)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if !limit.Allowed {
		h.recorder.Record(models.EventRateLimitExceeded, ip, r.UserAgent(),
			fmt.Sprintf("key=%s", ip))
		respondThrottled(w, ThrottleInfo{
			Reason:           "Terlalu banyak permintaan captcha",
			ResetTimeMinutes: limit.ResetTimeMinutes,
		})
		return
	}

	challenge, err := h.challenges.Generate(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Gagal membuat captcha")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(challenge, ""))
}

type captchaVerifyRequest struct {
	Token  string `json:"token"`
	Answer string `json:"answer"`
}

func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	var req captchaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}
	if req.Token == "" || req.Answer == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("token and answer are required"), "Token dan jawaban wajib diisi")
		return
	}

	// Verification shares one budget per IP across all tokens
	limit, err := h.limiter.Check(ctx, "verify_"+ip, h.abuse.VerifyMaxRequests, h.abuse.VerifyWindow)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Terjadi kesalahan pada server")
		return
	}
	if !limit.Allowed {
		h.recorder.Record(models.EventRateLimitExceeded, ip, r.UserAgent(),
			fmt.Sprintf("key=verify_%s", ip))
		respondThrottled(w, ThrottleInfo{
			Reason:           "Terlalu banyak percobaan verifikasi",
			ResetTimeMinutes: limit.ResetTimeMinutes,
		})
		return
	}

	answer := util.SanitizeInput(req.Answer)
	if err := h.challenges.Verify(ctx, req.Token, answer); err != nil {
		if errors.Is(err, captcha.ErrTooManyAttempts) {
			h.recorder.Record(models.EventCaptchaExhausted, ip, r.UserAgent(),
				fmt.Sprintf("token=%s", req.Token))
		}
		respondWithError(w, getStatusCode(err), err, captchaErrorMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Captcha berhasil diverifikasi"))
}

func (h *CaptchaHandler) recordDetection(detection *ratelimit.Detection, ip, userAgent string) {
	eventType := models.EventBurstDetected
	if detection.Reason == ratelimit.ReasonSuspiciousUserAgent {
		eventType = models.EventSuspiciousUserAgent
	}
	h.recorder.Record(eventType, ip, userAgent, "")
}

func captchaErrorMessage(err error) string {
	switch {
	case errors.Is(err, captcha.ErrExpiredOrInvalid):
		return "Captcha sudah kedaluwarsa, silakan minta captcha baru"
	case errors.Is(err, captcha.ErrTooManyAttempts):
		return "Terlalu banyak percobaan, silakan minta captcha baru"
	case errors.Is(err, captcha.ErrIncorrectAnswer):
		return "Jawaban captcha salah"
	default:
		return "Gagal memverifikasi captcha"
	}
}
