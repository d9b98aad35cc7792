package models

import "time"

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Notification attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeConfigError = "configuration_error"
)

// NotificationAttempt is the per-channel outcome of one dispatch. It is
// logged and optionally indexed, but it never influences the status write
// that triggered it.
type NotificationAttempt struct {
	SubmissionID  string    `json:"submission_id"`
	ReferenceCode string    `json:"kode_referensi"`
	Channel       string    `json:"channel"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// DispatchRequest is the message consumed by the notification dispatcher
// after a status transition has been persisted.
type DispatchRequest struct {
	Record       SubmissionRecord `json:"record"`
	SendEmail    bool             `json:"send_email"`
	SendWhatsApp bool             `json:"send_whatsapp"`
	CustomText   string           `json:"custom_text,omitempty"`
}
