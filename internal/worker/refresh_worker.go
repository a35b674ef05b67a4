package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/forecast"
	"fincast/internal/services"

	"github.com/robfig/cron/v3"
)

// RefreshConsumer delivers refresh requests. amqp.Client implements it.
type RefreshConsumer interface {
	ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *amqp.RefreshRequestMessage) error) error
}

// Processor persists forecasts. services.SnapshotProcessor implements it.
type Processor interface {
	Process(ctx context.Context, horizon int, requestedAt time.Time) (*services.Report, bool, error)
	ProcessAll(ctx context.Context, horizons []int, requestedAt time.Time) (int, error)
}

// RefreshWorker recomputes forecast snapshots on a cron schedule and on
// demand from AMQP refresh requests.
type RefreshWorker struct {
	processor Processor
	consumer  RefreshConsumer
	schedule  string
	horizons  []int
	now       func() time.Time
}

// NewRefreshWorker creates a worker. consumer may be nil to run on the
// schedule only.
func NewRefreshWorker(processor Processor, consumer RefreshConsumer, schedule string) *RefreshWorker {
	return &RefreshWorker{
		processor: processor,
		consumer:  consumer,
		schedule:  schedule,
		horizons:  append([]int(nil), forecast.Horizons...),
		now:       time.Now,
	}
}

// HandleRefreshRequest processes a single refresh request from AMQP.
// Requests with an unsupported horizon are dropped; fetch failures are
// returned so the message is requeued.
func (w *RefreshWorker) HandleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequestMessage) error {
	slog.InfoContext(ctx, "Processing refresh request",
		"horizon", msg.Horizon,
		"requested_at", msg.RequestedAt)

	requestedAt := msg.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = w.now()
	}

	_, written, err := w.processor.Process(ctx, msg.Horizon, requestedAt)
	if errors.Is(err, forecast.ErrInvalidHorizon) {
		slog.WarnContext(ctx, "Dropping refresh request with invalid horizon",
			"horizon", msg.Horizon,
			"error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh horizon %d: %w", msg.Horizon, err)
	}
	if !written {
		slog.InfoContext(ctx, "Refresh request superseded by a newer one", "horizon", msg.Horizon)
	}
	return nil
}

// RefreshAll recomputes every supported horizon.
func (w *RefreshWorker) RefreshAll(ctx context.Context) error {
	n, err := w.processor.ProcessAll(ctx, w.horizons, w.now())
	if err != nil {
		return fmt.Errorf("scheduled refresh: %w", err)
	}
	slog.InfoContext(ctx, "Scheduled refresh complete", "snapshots", n)
	return nil
}

// Run performs a startup refresh, then serves the schedule and the consumer
// until ctx is cancelled or the consumer fails.
func (w *RefreshWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup refresh...")
	if err := w.RefreshAll(ctx); err != nil {
		// Keep running; the next scheduled run retries.
		slog.ErrorContext(ctx, "Startup refresh failed", "error", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() {
		if err := w.RefreshAll(ctx); err != nil {
			slog.ErrorContext(ctx, "Scheduled refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", w.schedule, err)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()
	slog.InfoContext(ctx, "Refresh schedule started", "schedule", w.schedule)

	if w.consumer == nil {
		slog.InfoContext(ctx, "Skipping AMQP message consumption - no broker configured")
		<-ctx.Done()
		return nil
	}

	err := w.consumer.ConsumeRefreshRequests(ctx, w.HandleRefreshRequest)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}
