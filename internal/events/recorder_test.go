package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pengajuan-service/internal/bucketing"
	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
)

type fakeBatchSink struct {
	mu   sync.Mutex
	rows [][]interface{}
}

func (f *fakeBatchSink) BatchInsert(_ context.Context, _ string, rows [][]interface{}) error {
	f.mu.Lock()
	f.rows = append(f.rows, rows...)
	f.mu.Unlock()
	return nil
}

func newTestRecorder(sink BatchSink) *Recorder {
	cfg := &config.Config{
		Bucketing: config.BucketingConfig{
			SubmissionBuckets: 64,
			EventBuckets:      32,
		},
	}
	return NewRecorder(sink, bucketing.NewManager(cfg))
}

func TestRecorderFlushesOnClose(t *testing.T) {
	sink := &fakeBatchSink{}
	r := newTestRecorder(sink)
	r.Start(context.Background())

	r.Record(models.EventSuspiciousUserAgent, "1.2.3.4", "curl/8.0", "")
	r.Record(models.EventRateLimitExceeded, "1.2.3.4", "Mozilla/5.0", "key=verify_1.2.3.4")

	require.NoError(t, r.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.rows, 2)
	assert.Equal(t, models.EventSuspiciousUserAgent, sink.rows[0][3])
	assert.Equal(t, "1.2.3.4", sink.rows[0][4])
}

func TestRecorderFlushesFullBatch(t *testing.T) {
	sink := &fakeBatchSink{}
	r := newTestRecorder(sink)
	r.batchSize = 5
	r.Start(context.Background())

	for i := 0; i < 12; i++ {
		r.Record(models.EventBurstDetected, "9.9.9.9", "Mozilla/5.0", "")
	}

	require.NoError(t, r.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.rows, 12)
}

func TestRecordNeverBlocksWhenFull(t *testing.T) {
	sink := &fakeBatchSink{}
	r := newTestRecorder(sink)
	r.events = make(chan models.SecurityEvent, 1)

	// No flush loop running; the second record must drop, not hang
	r.Record(models.EventOTPVerifyFailed, "3.3.3.3", "", "")
	r.Record(models.EventOTPVerifyFailed, "3.3.3.3", "", "")

	r.droppedMu.Lock()
	defer r.droppedMu.Unlock()
	assert.Equal(t, int64(1), r.dropped)
}
