package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pengajuan-service/internal/models"
	"pengajuan-service/internal/util"
)

// Channel is one delivery mechanism for a status notification.
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, record models.SubmissionRecord, customText string) error
}

// AttemptSink receives per-channel outcomes for audit. Indexing is
// best-effort; a sink failure is logged and forgotten.
type AttemptSink interface {
	IndexDocument(ctx context.Context, doc interface{}) error
}

// Dispatcher attempts the requested channels independently. A channel
// failure is recorded and logged but never reaches the caller: the
// status change it announces has already been committed.
type Dispatcher struct {
	channels []Channel
	sink     AttemptSink
}

func NewDispatcher(sink AttemptSink, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		sink:     sink,
	}
}

// Dispatch runs the requested channels concurrently and returns the
// per-channel attempts. It never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.DispatchRequest) []models.NotificationAttempt {
	wanted := map[string]bool{
		models.ChannelEmail:    req.SendEmail,
		models.ChannelWhatsApp: req.SendWhatsApp,
	}

	var (
		mu       sync.Mutex
		attempts []models.NotificationAttempt
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, channel := range d.channels {
		if !wanted[channel.Name()] {
			continue
		}
		channel := channel
		g.Go(func() error {
			attempt := d.attempt(gctx, channel, req)
			mu.Lock()
			attempts = append(attempts, attempt)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, attempt := range attempts {
		d.record(ctx, attempt)
	}
	return attempts
}

func (d *Dispatcher) attempt(ctx context.Context, channel Channel, req models.DispatchRequest) models.NotificationAttempt {
	attempt := models.NotificationAttempt{
		SubmissionID:  req.Record.ID,
		ReferenceCode: req.Record.ReferenceCode,
		Channel:       channel.Name(),
		AttemptedAt:   time.Now().UTC(),
	}

	// Missing credentials degrade the channel without touching transport
	if !channel.Configured() {
		attempt.Outcome = models.OutcomeConfigError
		attempt.Reason = "channel credentials not configured"
		return attempt
	}

	if err := channel.Send(ctx, req.Record, req.CustomText); err != nil {
		attempt.Outcome = models.OutcomeFailure
		attempt.Reason = err.Error()
		return attempt
	}

	attempt.Outcome = models.OutcomeSuccess
	return attempt
}

func (d *Dispatcher) record(ctx context.Context, attempt models.NotificationAttempt) {
	fields := []zap.Field{
		zap.String("submission_id", attempt.SubmissionID),
		zap.String("channel", attempt.Channel),
		zap.String("outcome", attempt.Outcome),
	}
	if attempt.Reason != "" {
		fields = append(fields, zap.String("reason", attempt.Reason))
	}

	if attempt.Outcome == models.OutcomeSuccess {
		util.Info("notification delivered", fields...)
	} else {
		util.Warn("notification not delivered", fields...)
	}

	if d.sink != nil {
		if err := d.sink.IndexDocument(ctx, attempt); err != nil {
			util.Warn("failed to index notification attempt", zap.Error(err))
		}
	}
}
