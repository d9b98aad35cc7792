package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/store"
)

const activityPrefix = "activity:"

const (
	ReasonSuspiciousUserAgent = "Suspicious user agent"
	ReasonTooManyRequests     = "Too many requests in short time"
)

// Substrings that mark an automated client. Checked case-insensitive.
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python",
	"requests",
	"automation",
}

// Detection is the outcome of a pre-screen. A suspicious result
// short-circuits the caller with a 429 before any normal rate limit
// check runs.
type Detection struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
}

// SuspiciousActivityDetector flags automated clients by user-agent
// signature and by short-burst request volume per IP.
type SuspiciousActivityDetector struct {
	store        store.Store
	burstWindow  time.Duration
	burstMaxReqs int
}

func NewSuspiciousActivityDetector(cfg *config.Config, backend store.Store) *SuspiciousActivityDetector {
	return &SuspiciousActivityDetector{
		store:        backend,
		burstWindow:  cfg.Abuse.BurstWindow,
		burstMaxReqs: cfg.Abuse.BurstMaxRequests,
	}
}

// Detect classifies one request. The user-agent check wins outright;
// otherwise the current timestamp joins the per-IP activity window,
// entries older than the burst window are pruned, and the remaining
// count decides.
func (d *SuspiciousActivityDetector) Detect(ctx context.Context, ip, userAgent string) (*Detection, error) {
	ua := strings.ToLower(userAgent)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return &Detection{Suspicious: true, Reason: ReasonSuspiciousUserAgent}, nil
		}
	}

	window, err := d.loadWindow(ctx, ip)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load activity window: %w", err)
		}
		window = &models.ActivityWindow{Key: activityPrefix + ip}
	}

	now := time.Now()
	cutoff := now.Add(-d.burstWindow)

	pruned := window.RequestTimestamps[:0]
	for _, ts := range window.RequestTimestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	window.RequestTimestamps = append(pruned, now)

	if err := d.saveWindow(ctx, window); err != nil {
		return nil, err
	}

	if len(window.RequestTimestamps) > d.burstMaxReqs {
		return &Detection{Suspicious: true, Reason: ReasonTooManyRequests}, nil
	}

	return &Detection{Suspicious: false}, nil
}

func (d *SuspiciousActivityDetector) saveWindow(ctx context.Context, window *models.ActivityWindow) error {
	data, err := json.Marshal(window)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, window.Key, data, 2*d.burstWindow)
}

func (d *SuspiciousActivityDetector) loadWindow(ctx context.Context, ip string) (*models.ActivityWindow, error) {
	data, err := d.store.Get(ctx, activityPrefix+ip)
	if err != nil {
		return nil, err
	}

	var window models.ActivityWindow
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, err
	}
	return &window, nil
}
