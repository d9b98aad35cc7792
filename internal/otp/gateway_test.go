package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/hashing"
	"pengajuan-service/internal/store"
)

type fakeSender struct {
	configured bool
	sendErr    error
	sentCodes  []string
	sentPhones []string
}

func (f *fakeSender) Configured() bool {
	return f.configured
}

func (f *fakeSender) Send(_ context.Context, phone, code string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentPhones = append(f.sentPhones, phone)
	f.sentCodes = append(f.sentCodes, code)
	return nil
}

func testConfig(ttl time.Duration) *config.Config {
	return &config.Config{
		Abuse: config.AbuseConfig{
			OTPLength: 6,
			OTPTTL:    ttl,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
	}
}

func newTestGateway(t *testing.T, ttl time.Duration, sender CodeSender) *Gateway {
	t.Helper()

	cfg := testConfig(ttl)
	return NewGateway(cfg, store.NewMemoryStore(time.Minute, time.Minute), hashing.NewHasher(cfg), sender)
}

func TestSendAndVerify(t *testing.T) {
	sender := &fakeSender{configured: true}
	g := newTestGateway(t, 5*time.Minute, sender)
	ctx := context.Background()

	result, err := g.Send(ctx, "+628123456789")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, sender.sentCodes, 1)
	assert.Len(t, sender.sentCodes[0], 6)

	require.NoError(t, g.Verify(ctx, "+628123456789", sender.sentCodes[0]))

	// Challenge is consumed on success
	err = g.Verify(ctx, "+628123456789", sender.sentCodes[0])
	assert.ErrorIs(t, err, ErrExpiredOrNotFound)
}

func TestSendWithoutChannelConfigSoftFails(t *testing.T) {
	g := newTestGateway(t, 5*time.Minute, &fakeSender{configured: false})

	result, err := g.Send(context.Background(), "+628123456789")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
}

func TestSendTransportFailureSoftFails(t *testing.T) {
	sender := &fakeSender{configured: true, sendErr: assert.AnError}
	g := newTestGateway(t, 5*time.Minute, sender)

	result, err := g.Send(context.Background(), "+628123456789")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestVerifyIncorrectCodeKeepsChallenge(t *testing.T) {
	sender := &fakeSender{configured: true}
	g := newTestGateway(t, 5*time.Minute, sender)
	ctx := context.Background()

	_, err := g.Send(ctx, "+628111111111")
	require.NoError(t, err)

	err = g.Verify(ctx, "+628111111111", "000000")
	// The generated code could be 000000 once in a million runs; guard
	if sender.sentCodes[0] != "000000" {
		assert.ErrorIs(t, err, ErrIncorrectCode)
	}

	// Correct code still works after a mismatch
	require.NoError(t, g.Verify(ctx, "+628111111111", sender.sentCodes[0]))
}

func TestVerifyUnknownPhone(t *testing.T) {
	g := newTestGateway(t, 5*time.Minute, &fakeSender{configured: true})

	err := g.Verify(context.Background(), "+620000000000", "123456")
	assert.ErrorIs(t, err, ErrExpiredOrNotFound)
}

func TestVerifyExpiredChallenge(t *testing.T) {
	sender := &fakeSender{configured: true}
	g := newTestGateway(t, 50*time.Millisecond, sender)
	ctx := context.Background()

	_, err := g.Send(ctx, "+628222222222")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	err = g.Verify(ctx, "+628222222222", sender.sentCodes[0])
	assert.ErrorIs(t, err, ErrExpiredOrNotFound)
}

func TestResendReplacesChallenge(t *testing.T) {
	sender := &fakeSender{configured: true}
	g := newTestGateway(t, 5*time.Minute, sender)
	ctx := context.Background()

	_, err := g.Send(ctx, "+628333333333")
	require.NoError(t, err)
	_, err = g.Send(ctx, "+628333333333")
	require.NoError(t, err)
	require.Len(t, sender.sentCodes, 2)

	if sender.sentCodes[0] != sender.sentCodes[1] {
		err = g.Verify(ctx, "+628333333333", sender.sentCodes[0])
		assert.ErrorIs(t, err, ErrIncorrectCode)
	}

	require.NoError(t, g.Verify(ctx, "+628333333333", sender.sentCodes[1]))
}

func TestCancelDiscardsChallenge(t *testing.T) {
	sender := &fakeSender{configured: true}
	g := newTestGateway(t, 5*time.Minute, sender)
	ctx := context.Background()

	_, err := g.Send(ctx, "+628444444444")
	require.NoError(t, err)
	require.NoError(t, g.Cancel(ctx, "+628444444444"))

	err = g.Verify(ctx, "+628444444444", sender.sentCodes[0])
	assert.ErrorIs(t, err, ErrExpiredOrNotFound)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "**********789", maskPhone("+628123456789"))
	assert.Equal(t, "***", maskPhone("08"))
}
