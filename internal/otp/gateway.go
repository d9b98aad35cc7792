package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/hashing"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/store"
	"pengajuan-service/internal/util"
)

const keyPrefix = "otp:"

var (
	ErrExpiredOrNotFound = errors.New("otp expired or not found")
	ErrIncorrectCode     = errors.New("incorrect otp code")
)

// CodeSender delivers a one-time code over an out-of-band channel.
type CodeSender interface {
	// Configured reports whether the channel credentials are present.
	Configured() bool
	Send(ctx context.Context, phone, code string) error
}

// Result is the caller-facing outcome of a send.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Gateway issues and verifies one-time codes keyed by phone number.
// Sending again for the same phone replaces the pending challenge.
type Gateway struct {
	store  store.Store
	hasher *hashing.Hasher
	sender CodeSender
	length int
	ttl    time.Duration
}

func NewGateway(cfg *config.Config, backend store.Store, hasher *hashing.Hasher, sender CodeSender) *Gateway {
	return &Gateway{
		store:  backend,
		hasher: hasher,
		sender: sender,
		length: cfg.Abuse.OTPLength,
		ttl:    cfg.Abuse.OTPTTL,
	}
}

// Send generates a code, stores its hash, and dispatches it. A missing
// channel configuration degrades to a soft failure; the request itself
// must not error out.
func (g *Gateway) Send(ctx context.Context, phone string) (*Result, error) {
	if !g.sender.Configured() {
		util.Warn("otp channel not configured, skipping send",
			zap.String("phone", maskPhone(phone)))
		return &Result{
			Success: false,
			Message: "Layanan OTP sedang tidak tersedia, silakan coba lagi nanti",
		}, nil
	}

	code, err := g.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp code: %w", err)
	}

	hashResult, err := g.hasher.HashOTP(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash otp code: %w", err)
	}

	now := time.Now()
	challenge := &models.OTPChallenge{
		Phone:         phone,
		CodeHash:      hashResult.Hash,
		CodeSalt:      hashResult.Salt,
		PepperVersion: hashResult.PepperVersion,
		ExpiresAt:     now.Add(g.ttl),
		Attempts:      0,
		CreatedAt:     now,
	}

	if err := g.save(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store otp challenge: %w", err)
	}

	if err := g.sender.Send(ctx, phone, code); err != nil {
		// Challenge stays stored; the user may request a resend
		util.Error("otp send failed",
			zap.String("phone", maskPhone(phone)),
			zap.Error(err))
		return &Result{
			Success: false,
			Message: "Gagal mengirim kode OTP, silakan coba lagi",
		}, nil
	}

	util.Info("otp sent", zap.String("phone", maskPhone(phone)))
	return &Result{
		Success: true,
		Message: "Kode OTP telah dikirim",
	}, nil
}

// Verify checks a code against the pending challenge. A mismatch
// leaves the challenge in place so the user can retry under the
// wrapping rate limit; success consumes it.
func (g *Gateway) Verify(ctx context.Context, phone, code string) error {
	challenge, err := g.load(ctx, phone)
	if err != nil {
		return ErrExpiredOrNotFound
	}

	if time.Now().After(challenge.ExpiresAt) {
		_ = g.store.Delete(ctx, keyPrefix+phone)
		return ErrExpiredOrNotFound
	}

	match, err := g.hasher.VerifyOTP(code, &hashing.HashResult{
		Hash:          challenge.CodeHash,
		Salt:          challenge.CodeSalt,
		PepperVersion: challenge.PepperVersion,
		Algorithm:     "argon2id-v1",
	})
	if err != nil {
		return fmt.Errorf("failed to verify otp code: %w", err)
	}

	if !match {
		challenge.Attempts++
		if err := g.save(ctx, challenge); err != nil {
			util.Warn("failed to persist otp attempt count", zap.Error(err))
		}
		return ErrIncorrectCode
	}

	if err := g.store.Delete(ctx, keyPrefix+phone); err != nil {
		util.Warn("failed to delete verified otp challenge", zap.Error(err))
	}
	return nil
}

// Cancel discards a pending challenge without verifying it.
func (g *Gateway) Cancel(ctx context.Context, phone string) error {
	return g.store.Delete(ctx, keyPrefix+phone)
}

func (g *Gateway) generateCode() (string, error) {
	digits := make([]byte, g.length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

func (g *Gateway) save(ctx context.Context, challenge *models.OTPChallenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return g.store.Delete(ctx, keyPrefix+challenge.Phone)
	}
	return g.store.Set(ctx, keyPrefix+challenge.Phone, data, ttl)
}

func (g *Gateway) load(ctx context.Context, phone string) (*models.OTPChallenge, error) {
	data, err := g.store.Get(ctx, keyPrefix+phone)
	if err != nil {
		return nil, err
	}

	var challenge models.OTPChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// maskPhone hides all but the last three digits in log output.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	masked := make([]byte, len(phone)-3)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + phone[len(phone)-3:]
}
