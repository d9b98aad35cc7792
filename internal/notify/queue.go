package notify

import (
	"context"
	"errors"
	"sync"

	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

var ErrQueueClosed = errors.New("dispatch queue closed")

// Handler processes one dispatch request. It must never fail the
// status change that produced the request; errors stay inside.
type Handler func(ctx context.Context, req models.DispatchRequest)

// Queue decouples the status-update handler from notification
// transport. The handler publishes and returns; delivery runs behind
// the queue.
type Queue interface {
	Publish(ctx context.Context, req models.DispatchRequest) error
	Start(ctx context.Context, handler Handler)
	Close() error
}

// ChannelQueue is the in-process default. Close drains outstanding
// requests before returning, so shutdown does not drop accepted work.
type ChannelQueue struct {
	mu        sync.RWMutex
	requests  chan models.DispatchRequest
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewChannelQueue(buffer int) *ChannelQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelQueue{
		requests: make(chan models.DispatchRequest, buffer),
	}
}

func (q *ChannelQueue) Publish(ctx context.Context, req models.DispatchRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the consumer goroutine. The handler runs with the
// given long-lived context, not the publishing request's, so an HTTP
// request finishing early does not cancel in-flight deliveries.
func (q *ChannelQueue) Start(ctx context.Context, handler Handler) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for req := range q.requests {
			handler(ctx, req)
		}
	}()
}

func (q *ChannelQueue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.requests)
		q.mu.Unlock()

		q.wg.Wait()
		util.Info("dispatch queue drained")
	})
	return nil
}
