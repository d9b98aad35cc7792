package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/store"
	"pengajuan-service/internal/util"
)

const bucketPrefix = "rate_limit:"

// RateLimitStore tracks fixed-window request counters. When a window
// elapses the counter resets whole, it does not decay; a client can
// therefore burst up to 2x the limit across a window boundary. That
// coarseness is the intended contract.
type RateLimitStore struct {
	store         store.Store
	bucketMaxAge  time.Duration
	sweepInterval time.Duration
}

func NewRateLimitStore(cfg *config.Config, backend store.Store) *RateLimitStore {
	return &RateLimitStore{
		store:         backend,
		bucketMaxAge:  cfg.Abuse.BucketMaxAge,
		sweepInterval: cfg.Abuse.BucketSweepInterval,
	}
}

// Check counts a request against the bucket for key. Callers compose
// keys per use-case (bare IP, or an action prefix such as "verify_"
// plus IP) so different limits never share a counter.
func (s *RateLimitStore) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (*models.RateLimitResult, error) {
	now := time.Now()

	bucket, err := s.load(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load rate limit bucket: %w", err)
		}
		bucket = nil
	}

	// First sighting, or the window has fully elapsed: start fresh
	if bucket == nil || now.Sub(bucket.WindowStart) >= window {
		bucket = &models.RateLimitBucket{
			Key:         key,
			Count:       1,
			WindowStart: now,
		}
		if err := s.save(ctx, bucket); err != nil {
			return nil, err
		}
		return &models.RateLimitResult{
			Allowed:   true,
			Remaining: maxAttempts - 1,
		}, nil
	}

	if bucket.Count >= maxAttempts {
		resetAt := bucket.WindowStart.Add(window)
		minutes := int(math.Ceil(resetAt.Sub(now).Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		return &models.RateLimitResult{
			Allowed:          false,
			Remaining:        0,
			ResetTimeMinutes: minutes,
		}, nil
	}

	bucket.Count++
	if err := s.save(ctx, bucket); err != nil {
		return nil, err
	}

	return &models.RateLimitResult{
		Allowed:   true,
		Remaining: maxAttempts - bucket.Count,
	}, nil
}

// StartSweep drops stale buckets periodically until ctx is done.
func (s *RateLimitStore) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.Sweep(ctx); err != nil {
					util.Warn("rate limit sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *RateLimitStore) save(ctx context.Context, bucket *models.RateLimitBucket) error {
	data, err := json.Marshal(bucket)
	if err != nil {
		return err
	}
	ttl := s.bucketMaxAge - time.Since(bucket.WindowStart)
	if ttl <= 0 {
		return s.store.Delete(ctx, bucketPrefix+bucket.Key)
	}
	return s.store.Set(ctx, bucketPrefix+bucket.Key, data, ttl)
}

func (s *RateLimitStore) load(ctx context.Context, key string) (*models.RateLimitBucket, error) {
	data, err := s.store.Get(ctx, bucketPrefix+key)
	if err != nil {
		return nil, err
	}

	var bucket models.RateLimitBucket
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, err
	}
	return &bucket, nil
}
