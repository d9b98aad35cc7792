package models

import "time"

// Security event types recorded by the abuse layer.
const (
	EventSuspiciousUserAgent = "suspicious_user_agent"
	EventBurstDetected       = "burst_detected"
	EventRateLimitExceeded   = "rate_limit_exceeded"
	EventCaptchaExhausted    = "captcha_attempts_exhausted"
	EventOTPVerifyFailed     = "otp_verify_failed"
)

// SecurityEvent is an abuse-signal row batched into the analytics store.
// Recording is best-effort and never blocks a request.
type SecurityEvent struct {
	EventBucket int       `json:"event_bucket"`
	EventDate   string    `json:"event_date"`
	EventTime   time.Time `json:"event_time"`
	EventType   string    `json:"event_type"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Details     string    `json:"details"`
}
