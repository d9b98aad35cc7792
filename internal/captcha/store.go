package captcha

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/store"
	"pengajuan-service/internal/util"
)

const keyPrefix = "captcha:"

var (
	ErrExpiredOrInvalid = errors.New("captcha expired or invalid")
	ErrTooManyAttempts  = errors.New("too many captcha attempts")
	ErrIncorrectAnswer  = errors.New("incorrect captcha answer")
)

// ChallengeStore issues arithmetic challenges and validates answers.
// Challenges are single-use: success and attempt exhaustion both
// destroy the entry.
type ChallengeStore struct {
	store         store.Store
	maxAttempts   int
	ttl           time.Duration
	sweepInterval time.Duration
}

func NewChallengeStore(cfg *config.Config, backend store.Store) *ChallengeStore {
	return &ChallengeStore{
		store:         backend,
		maxAttempts:   cfg.Abuse.CaptchaMaxAttempts,
		ttl:           cfg.Abuse.CaptchaTTL,
		sweepInterval: cfg.Abuse.CaptchaSweepInterval,
	}
}

// Generate mints a new challenge. The expected answer stays
// server-side; only the token and the question text go to the client.
func (s *ChallengeStore) Generate(ctx context.Context) (*models.ChallengeResponse, error) {
	var (
		a, b     int
		operator string
		answer   int
	)

	switch randInt(3) {
	case 0:
		a, b = 1+randInt(10), 1+randInt(10)
		operator = "+"
		answer = a + b
	case 1:
		a, b = 1+randInt(10), 1+randInt(10)
		// Keep the result non-negative
		if b > a {
			a, b = b, a
		}
		operator = "-"
		answer = a - b
	default:
		// Small operands keep mental multiplication easy
		a, b = 1+randInt(5), 1+randInt(5)
		operator = "x"
		answer = a * b
	}

	challenge := &models.Challenge{
		Token:          uuid.New().String(),
		ExpectedAnswer: fmt.Sprintf("%d", answer),
		Attempts:       0,
		CreatedAt:      time.Now(),
	}

	if err := s.save(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store captcha challenge: %w", err)
	}

	return &models.ChallengeResponse{
		Token:    challenge.Token,
		Question: fmt.Sprintf("Berapa hasil dari %d %s %d?", a, operator, b),
	}, nil
}

// Verify checks an answer against the stored challenge. The answer is
// trimmed and compared as an exact string, so "04" does not match "4".
func (s *ChallengeStore) Verify(ctx context.Context, token, userAnswer string) error {
	challenge, err := s.load(ctx, token)
	if err != nil {
		return ErrExpiredOrInvalid
	}

	challenge.Attempts++
	if challenge.Attempts > s.maxAttempts {
		_ = s.store.Delete(ctx, keyPrefix+token)
		return ErrTooManyAttempts
	}

	if strings.TrimSpace(userAnswer) != challenge.ExpectedAnswer {
		if challenge.Attempts >= s.maxAttempts {
			_ = s.store.Delete(ctx, keyPrefix+token)
			return ErrTooManyAttempts
		}
		if err := s.save(ctx, challenge); err != nil {
			util.Warn("failed to persist captcha attempt count", zap.Error(err))
		}
		return ErrIncorrectAnswer
	}

	// Single-use: consume on success
	_ = s.store.Delete(ctx, keyPrefix+token)
	return nil
}

// StartSweep evicts expired challenges periodically until ctx is done.
func (s *ChallengeStore) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.Sweep(ctx); err != nil {
					util.Warn("captcha sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ChallengeStore) save(ctx context.Context, challenge *models.Challenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	ttl := s.ttl - time.Since(challenge.CreatedAt)
	if ttl <= 0 {
		return s.store.Delete(ctx, keyPrefix+challenge.Token)
	}
	return s.store.Set(ctx, keyPrefix+challenge.Token, data, ttl)
}

func (s *ChallengeStore) load(ctx context.Context, token string) (*models.Challenge, error) {
	data, err := s.store.Get(ctx, keyPrefix+token)
	if err != nil {
		return nil, err
	}

	var challenge models.Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, err
	}

	if time.Since(challenge.CreatedAt) > s.ttl {
		_ = s.store.Delete(ctx, keyPrefix+token)
		return nil, ErrExpiredOrInvalid
	}

	return &challenge, nil
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		util.Fatal("failed to read random source", zap.Error(err))
	}
	return int(v.Int64())
}
