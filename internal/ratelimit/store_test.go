package ratelimit

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

func newTestLimiter(t *testing.T) *RateLimitStore {
	t.Helper()

	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			BucketMaxAge:        time.Hour,
			BucketSweepInterval: time.Hour,
		},
	}
	return NewRateLimitStore(cfg, store.NewMemoryStore(time.Hour, time.Hour))
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	s := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := s.Check(ctx, "1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result, err := s.Check(ctx, "1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.ResetTimeMinutes, 0)
}

func TestCheckTwentyOneGenerateCalls(t *testing.T) {
	s := newTestLimiter(t)
	ctx := context.Background()

	var last *struct {
		allowed bool
		reset   int
	}
	for i := 0; i < 21; i++ {
		result, err := s.Check(ctx, "1.2.3.4", 20, 15*time.Minute)
		require.NoError(t, err)
		last = &struct {
			allowed bool
			reset   int
		}{result.Allowed, result.ResetTimeMinutes}
	}

	assert.False(t, last.allowed)
	assert.Greater(t, last.reset, 0)
}

func TestCheckWindowResetIsWhole(t *testing.T) {
	s := newTestLimiter(t)
	ctx := context.Background()

	window := 100 * time.Millisecond
	for i := 0; i < 3; i++ {
		_, err := s.Check(ctx, "client", 3, window)
		require.NoError(t, err)
	}

	result, err := s.Check(ctx, "client", 3, window)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	time.Sleep(window + 20*time.Millisecond)

	// Counter restarts at 1, not at a partially decayed value
	result, err = s.Check(ctx, "client", 3, window)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
}

func TestCheckKeysAreIndependent(t *testing.T) {
	s := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Check(ctx, "9.9.9.9", 3, time.Minute)
		require.NoError(t, err)
	}

	blocked, err := s.Check(ctx, "9.9.9.9", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	// A composite action key for the same IP has its own bucket
	scoped, err := s.Check(ctx, "verify_9.9.9.9", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, scoped.Allowed)
}

func TestDetectorFlagsBotUserAgents(t *testing.T) {
	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			BurstWindow:      time.Minute,
			BurstMaxRequests: 10,
		},
	}
	d := NewSuspiciousActivityDetector(cfg, store.NewMemoryStore(time.Minute, time.Minute))
	ctx := context.Background()

	agents := []string{
		"python-requests/2.28",
		"curl/8.0.1",
		"Googlebot/2.1",
		"Wget/1.21",
		"my-scraper 1.0",
	}
	for _, ua := range agents {
		detection, err := d.Detect(ctx, "5.6.7.8", ua)
		require.NoError(t, err)
		assert.True(t, detection.Suspicious, "user agent %q", ua)
		assert.Equal(t, ReasonSuspiciousUserAgent, detection.Reason)
	}

	detection, err := d.Detect(ctx, "5.6.7.8", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	require.NoError(t, err)
	assert.False(t, detection.Suspicious)
}

func TestDetectorFlagsBursts(t *testing.T) {
	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			BurstWindow:      time.Minute,
			BurstMaxRequests: 10,
		},
	}
	d := NewSuspiciousActivityDetector(cfg, store.NewMemoryStore(time.Minute, time.Minute))
	ctx := context.Background()

	browserUA := "Mozilla/5.0 (X11; Linux x86_64)"

	for i := 0; i < 10; i++ {
		detection, err := d.Detect(ctx, "7.7.7.7", browserUA)
		require.NoError(t, err)
		assert.False(t, detection.Suspicious, "request %d within burst budget", i+1)
	}

	detection, err := d.Detect(ctx, "7.7.7.7", browserUA)
	require.NoError(t, err)
	assert.True(t, detection.Suspicious)
	assert.Equal(t, ReasonTooManyRequests, detection.Reason)

	// Another IP is unaffected
	other, err := d.Detect(ctx, "8.8.8.8", browserUA)
	require.NoError(t, err)
	assert.False(t, other.Suspicious)
}

func TestDetectorPrunesOldEntries(t *testing.T) {
	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			BurstWindow:      100 * time.Millisecond,
			BurstMaxRequests: 3,
		},
	}
	d := NewSuspiciousActivityDetector(cfg, store.NewMemoryStore(time.Minute, time.Minute))
	ctx := context.Background()

	ua := "Mozilla/5.0"
	for i := 0; i < 3; i++ {
		_, err := d.Detect(ctx, "2.2.2.2", ua)
		require.NoError(t, err)
	}

	time.Sleep(150 * time.Millisecond)

	// Old entries fall out of the window, so this is request 1 again
	detection, err := d.Detect(ctx, "2.2.2.2", ua)
	require.NoError(t, err)
	assert.False(t, detection.Suspicious)
}

func TestCheckResetMinutesRoundsUp(t *testing.T) {
	s := newTestLimiter(t)
	ctx := context.Background()

	key := fmt.Sprintf("verify_%s", "3.3.3.3")
	for i := 0; i < 2; i++ {
		_, err := s.Check(ctx, key, 2, 5*time.Minute)
		require.NoError(t, err)
	}

	result, err := s.Check(ctx, key, 2, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 5, result.ResetTimeMinutes)
}
