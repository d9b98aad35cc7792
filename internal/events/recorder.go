package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pengajuan-service/internal/bucketing"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

const insertQuery = `
    INSERT INTO security_events (
        event_bucket, event_date, event_time, event_type,
        ip_address, user_agent, details
    )`

// Sink is what request handlers see: a non-blocking event intake.
type Sink interface {
	Record(eventType, ip, userAgent, details string)
}

// BatchSink receives flushed event rows. Backed by ClickHouse in
// production.
type BatchSink interface {
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

// Recorder accepts abuse signals from request handlers and batches
// them into the analytics store. Record never blocks: when the buffer
// is full the event is dropped and counted, not queued.
type Recorder struct {
	sink      BatchSink
	bucketing *bucketing.Manager

	events    chan models.SecurityEvent
	dropped   int64
	droppedMu sync.Mutex

	flushInterval time.Duration
	batchSize     int

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

func NewRecorder(sink BatchSink, bucketingManager *bucketing.Manager) *Recorder {
	return &Recorder{
		sink:          sink,
		bucketing:     bucketingManager,
		events:        make(chan models.SecurityEvent, 1024),
		flushInterval: 5 * time.Second,
		batchSize:     100,
		done:          make(chan struct{}),
	}
}

// Record enqueues one event. The caller's request never waits on the
// analytics store.
func (r *Recorder) Record(eventType, ip, userAgent, details string) {
	event := models.SecurityEvent{
		EventBucket: r.bucketing.GetEventBucket(ip),
		EventDate:   r.bucketing.GetDateBucket(),
		EventTime:   time.Now().UTC(),
		EventType:   eventType,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Details:     details,
	}

	select {
	case r.events <- event:
	default:
		r.droppedMu.Lock()
		r.dropped++
		r.droppedMu.Unlock()
	}
}

// Start launches the flush loop. Events flush when the batch fills or
// on the interval, whichever comes first.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()

		batch := make([]models.SecurityEvent, 0, r.batchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			r.flush(batch)
			batch = batch[:0]
		}

		for {
			select {
			case <-r.done:
				// Drain whatever is still buffered
				for {
					select {
					case event := <-r.events:
						batch = append(batch, event)
						if len(batch) >= r.batchSize {
							flush()
						}
					default:
						flush()
						return
					}
				}
			case <-ctx.Done():
				flush()
				return
			case event := <-r.events:
				batch = append(batch, event)
				if len(batch) >= r.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

func (r *Recorder) flush(batch []models.SecurityEvent) {
	rows := make([][]interface{}, 0, len(batch))
	for _, event := range batch {
		rows = append(rows, []interface{}{
			event.EventBucket, event.EventDate, event.EventTime,
			event.EventType, event.IPAddress, event.UserAgent, event.Details,
		})
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.sink.BatchInsert(flushCtx, insertQuery, rows); err != nil {
		util.Warn("failed to flush security events",
			zap.Int("batch_size", len(rows)),
			zap.Error(err))
	}
}

// Close flushes buffered events and stops the loop.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		r.droppedMu.Lock()
		dropped := r.dropped
		r.droppedMu.Unlock()
		if dropped > 0 {
			util.Warn("security events dropped under load", zap.Int64("count", dropped))
		}
	})
	return nil
}

// NopRecorder satisfies callers when analytics is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(string, string, string, string) {}
