package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"pengajuan-service/internal/client"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

// KafkaQueue routes dispatch requests through a Kafka topic so a
// separate worker pool can own delivery. Used when multiple replicas
// share the notification load.
type KafkaQueue struct {
	producer  *client.KafkaProducer
	consumer  *client.KafkaConsumer
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewKafkaQueue(producer *client.KafkaProducer, consumer *client.KafkaConsumer) *KafkaQueue {
	return &KafkaQueue{
		producer: producer,
		consumer: consumer,
	}
}

func (q *KafkaQueue) Publish(ctx context.Context, req models.DispatchRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}
	return q.producer.Publish(ctx, []byte(req.Record.ID), value)
}

func (q *KafkaQueue) Start(ctx context.Context, handler Handler) {
	if q.consumer == nil {
		return
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			value, err := q.consumer.Fetch(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
					// Context cancelled or reader closed
					return
				}
				util.Warn("failed to fetch dispatch request", zap.Error(err))
				continue
			}

			var req models.DispatchRequest
			if err := json.Unmarshal(value, &req); err != nil {
				util.Warn("malformed dispatch request skipped", zap.Error(err))
				continue
			}

			handler(ctx, req)
		}
	}()
}

func (q *KafkaQueue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		if q.consumer != nil {
			err = q.consumer.Close()
		}
		q.wg.Wait()
	})
	return err
}
