package captcha

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/store"
)

func newTestStore(t *testing.T) *ChallengeStore {
	t.Helper()

	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			CaptchaMaxAttempts:   3,
			CaptchaTTL:           10 * time.Minute,
			CaptchaSweepInterval: 10 * time.Minute,
		},
	}
	return NewChallengeStore(cfg, store.NewMemoryStore(10*time.Minute, 10*time.Minute))
}

func solve(t *testing.T, question string) string {
	t.Helper()

	var a, b int
	var op string
	_, err := fmt.Sscanf(question, "Berapa hasil dari %d %s %d?", &a, &op, &b)
	require.NoError(t, err)

	switch op {
	case "+":
		return fmt.Sprintf("%d", a+b)
	case "-":
		return fmt.Sprintf("%d", a-b)
	case "x":
		return fmt.Sprintf("%d", a*b)
	}
	t.Fatalf("unexpected operator %q", op)
	return ""
}

func TestGenerateReturnsSolvableQuestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		resp, err := s.Generate(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Token)

		var a, b int
		var op string
		_, err = fmt.Sscanf(resp.Question, "Berapa hasil dari %d %s %d?", &a, &op, &b)
		require.NoError(t, err)

		if op == "-" {
			assert.GreaterOrEqual(t, a, b, "subtraction result must be non-negative")
		}
		if op == "x" {
			assert.LessOrEqual(t, a, 5)
			assert.LessOrEqual(t, b, 5)
		}
	}
}

func TestVerifyCorrectAnswerConsumesToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp, err := s.Generate(ctx)
	require.NoError(t, err)

	answer := solve(t, resp.Question)
	require.NoError(t, s.Verify(ctx, resp.Token, answer))

	// Token is single-use
	err = s.Verify(ctx, resp.Token, answer)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestVerifyTrimsButDoesNotNormalize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp, err := s.Generate(ctx)
	require.NoError(t, err)
	answer := solve(t, resp.Question)

	// Leading zeros are not equivalent
	err = s.Verify(ctx, resp.Token, "0"+answer)
	assert.ErrorIs(t, err, ErrIncorrectAnswer)

	// Surrounding whitespace is
	require.NoError(t, s.Verify(ctx, resp.Token, "  "+answer+" "))
}

func TestVerifyUnknownToken(t *testing.T) {
	s := newTestStore(t)

	err := s.Verify(context.Background(), "no-such-token", "42")
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestVerifyAttemptExhaustionDeletesToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp, err := s.Generate(ctx)
	require.NoError(t, err)

	err = s.Verify(ctx, resp.Token, "wrong")
	assert.ErrorIs(t, err, ErrIncorrectAnswer)

	err = s.Verify(ctx, resp.Token, "wrong")
	assert.ErrorIs(t, err, ErrIncorrectAnswer)

	err = s.Verify(ctx, resp.Token, "wrong")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// Entry is gone, even with the right answer
	err = s.Verify(ctx, resp.Token, solve(t, resp.Question))
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestVerifyExpiredChallenge(t *testing.T) {
	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			CaptchaMaxAttempts:   3,
			CaptchaTTL:           50 * time.Millisecond,
			CaptchaSweepInterval: time.Minute,
		},
	}
	s := NewChallengeStore(cfg, store.NewMemoryStore(time.Minute, time.Minute))
	ctx := context.Background()

	resp, err := s.Generate(ctx)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	err = s.Verify(ctx, resp.Token, "anything")
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}
