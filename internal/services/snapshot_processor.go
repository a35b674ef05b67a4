package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/storage"
)

// SnapshotStore persists computed reports. storage.Repository implements it.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s storage.Snapshot) (bool, error)
	LatestSnapshot(ctx context.Context, horizon int) (storage.Snapshot, error)
}

// ComputedPublisher announces persisted snapshots. amqp.Client implements it.
type ComputedPublisher interface {
	PublishForecastComputed(ctx context.Context, msg *amqp.ForecastComputedMessage) error
}

// SnapshotProcessor refreshes forecasts and stores them as snapshots.
type SnapshotProcessor struct {
	service   *ForecastService
	store     SnapshotStore
	publisher ComputedPublisher
}

// NewSnapshotProcessor creates a processor. publisher may be nil.
func NewSnapshotProcessor(service *ForecastService, store SnapshotStore, publisher ComputedPublisher) *SnapshotProcessor {
	return &SnapshotProcessor{
		service:   service,
		store:     store,
		publisher: publisher,
	}
}

// Process refreshes one horizon and persists the result. The returned bool
// is false when a newer request had already stored its snapshot.
func (p *SnapshotProcessor) Process(ctx context.Context, horizon int, requestedAt time.Time) (*Report, bool, error) {
	if p.service == nil || p.store == nil {
		return nil, false, fmt.Errorf("processor not properly initialized")
	}
	report, err := p.service.Refresh(ctx, horizon)
	if err != nil {
		return nil, false, err
	}
	written, err := p.save(ctx, report, requestedAt)
	return report, written, err
}

// ProcessAll refreshes every horizon from a single ledger fetch and returns
// how many snapshots were written.
func (p *SnapshotProcessor) ProcessAll(ctx context.Context, horizons []int, requestedAt time.Time) (int, error) {
	if p.service == nil || p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	reports, err := p.service.RefreshAll(ctx, horizons)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, r := range reports {
		ok, err := p.save(ctx, r, requestedAt)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to store forecast snapshot",
				"horizon", r.Horizon,
				"error", err)
			continue
		}
		if ok {
			written++
		}
	}

	slog.InfoContext(ctx, "Forecast snapshots refreshed",
		"written", written,
		"horizons", horizons,
		"requested_at", requestedAt.Format(time.RFC3339))
	return written, nil
}

// Latest loads and decodes the stored snapshot for a horizon.
func (p *SnapshotProcessor) Latest(ctx context.Context, horizon int) (*Report, error) {
	snap, err := p.store.LatestSnapshot(ctx, horizon)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(snap.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode snapshot for horizon %d: %w", horizon, err)
	}
	return &r, nil
}

func (p *SnapshotProcessor) save(ctx context.Context, r *Report, requestedAt time.Time) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode report: %w", err)
	}
	written, err := p.store.SaveSnapshot(ctx, storage.Snapshot{
		Horizon:     r.Horizon,
		Generation:  r.Generation,
		RequestedAt: requestedAt,
		ComputedAt:  r.ComputedAt,
		Payload:     payload,
	})
	if err != nil {
		return false, err
	}
	if !written || p.publisher == nil {
		return written, nil
	}

	msg := &amqp.ForecastComputedMessage{
		Horizon:      r.Horizon,
		Generation:   r.Generation,
		RequestedAt:  requestedAt,
		ComputedAt:   r.ComputedAt,
		Jurisdiction: r.Tax.Estimate.Jurisdiction,
		DataErrors:   r.Warnings.DataErrors(),
	}
	if err := p.publisher.PublishForecastComputed(ctx, msg); err != nil {
		// The snapshot is stored; the announcement is best effort.
		slog.WarnContext(ctx, "Failed to publish forecast computed message",
			"horizon", r.Horizon,
			"error", err)
	}
	return true, nil
}
