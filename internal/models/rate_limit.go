package models

import "time"

// RateLimitBucket is a fixed-window counter. Count only grows inside
// [WindowStart, WindowStart+window); an elapsed window resets the bucket
// to count 1 instead of decaying it.
type RateLimitBucket struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// RateLimitResult reports the outcome of a single check.
type RateLimitResult struct {
	Allowed          bool
	Remaining        int
	ResetTimeMinutes int
}

// ActivityWindow tracks recent request timestamps per client IP for the
// burst heuristic. Entries older than the window are pruned before the
// length check.
type ActivityWindow struct {
	Key               string      `json:"key"`
	RequestTimestamps []time.Time `json:"request_timestamps"`
}
