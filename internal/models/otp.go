package models

import "time"

// OTPChallenge is the stored half of a one-time code, keyed by phone
// number. The code itself is kept only as an argon2id hash. Sent is the
// sole state a challenge can move forward from; success, expiry and
// cancellation all destroy it.
type OTPChallenge struct {
	Phone         string    `json:"phone"`
	CodeHash      string    `json:"code_hash"`
	CodeSalt      string    `json:"code_salt"`
	PepperVersion int       `json:"pepper_version"`
	ExpiresAt     time.Time `json:"expires_at"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
}
