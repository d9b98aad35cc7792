package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"pengajuan-service/internal/config"
)

// Manager assigns submissions and security events to fixed-size
// partition buckets so wide rows stay bounded in the backing stores.
type Manager struct {
	submissionBuckets int
	eventBuckets      int
	hasherPool        sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		submissionBuckets: cfg.Bucketing.SubmissionBuckets,
		eventBuckets:      cfg.Bucketing.EventBuckets,
	}

	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// GetSubmissionBucket returns a stable bucket for a submission ID
// (0 to submissionBuckets-1).
func (m *Manager) GetSubmissionBucket(id uuid.UUID) int {
	return m.getBucket(id.String(), m.submissionBuckets)
}

// GetEventBucket returns a bucket for a security event identifier,
// usually the client IP.
func (m *Manager) GetEventBucket(identifier string) int {
	return m.getBucket(identifier, m.eventBuckets)
}

// GetTimeBucket truncates now to the given window size in seconds.
func (m *Manager) GetTimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

// GetDateBucket returns the UTC date partition for event tables.
func (m *Manager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) getBucket(key string, numBuckets int) int {
	h := m.getHash(key)
	return int(h % uint64(numBuckets))
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func (m *Manager) SubmissionBuckets() int {
	return m.submissionBuckets
}

func (m *Manager) EventBuckets() int {
	return m.eventBuckets
}
