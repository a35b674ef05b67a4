package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/forecast"
	"fincast/internal/services"
)

type processCall struct {
	horizon     int
	requestedAt time.Time
}

type fakeProcessor struct {
	mu       sync.Mutex
	calls    []processCall
	allCalls int
	err      error
	written  bool
}

func (p *fakeProcessor) Process(_ context.Context, horizon int, requestedAt time.Time) (*services.Report, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, processCall{horizon, requestedAt})
	if err := forecast.ValidateHorizon(horizon); err != nil {
		return nil, false, err
	}
	if p.err != nil {
		return nil, false, p.err
	}
	return &services.Report{Horizon: horizon}, p.written, nil
}

func (p *fakeProcessor) ProcessAll(_ context.Context, horizons []int, _ time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allCalls++
	if p.err != nil {
		return 0, p.err
	}
	return len(horizons), nil
}

type fakeConsumer struct {
	msgs []*amqp.RefreshRequestMessage
	errs []error
	err  error
}

func (c *fakeConsumer) ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *amqp.RefreshRequestMessage) error) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(ctx, m))
	}
	return c.err
}

func TestRefreshWorker_HandleRefreshRequest(t *testing.T) {
	requestedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	fetchErr := &services.FetchError{Source: services.SourceTransactions, Err: errors.New("timeout")}

	tests := []struct {
		name    string
		msg     *amqp.RefreshRequestMessage
		procErr error
		wantErr bool
	}{
		{
			name: "valid request",
			msg:  &amqp.RefreshRequestMessage{Horizon: 6, RequestedAt: requestedAt},
		},
		{
			name: "invalid horizon is dropped",
			msg:  &amqp.RefreshRequestMessage{Horizon: 5, RequestedAt: requestedAt},
		},
		{
			name:    "fetch failure is requeued",
			msg:     &amqp.RefreshRequestMessage{Horizon: 3, RequestedAt: requestedAt},
			procErr: fetchErr,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{err: tt.procErr, written: true}
			w := NewRefreshWorker(p, nil, "@hourly")

			err := w.HandleRefreshRequest(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleRefreshRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !services.IsFetchError(err) {
				t.Errorf("error should wrap the fetch error, got %v", err)
			}
			if len(p.calls) != 1 || !p.calls[0].requestedAt.Equal(requestedAt) {
				t.Errorf("calls = %+v", p.calls)
			}
		})
	}

	t.Run("missing timestamp uses now", func(t *testing.T) {
		p := &fakeProcessor{written: true}
		w := NewRefreshWorker(p, nil, "@hourly")
		now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		w.now = func() time.Time { return now }

		if err := w.HandleRefreshRequest(context.Background(), &amqp.RefreshRequestMessage{Horizon: 12}); err != nil {
			t.Fatalf("HandleRefreshRequest: %v", err)
		}
		if !p.calls[0].requestedAt.Equal(now) {
			t.Errorf("requestedAt = %v, want %v", p.calls[0].requestedAt, now)
		}
	})
}

func TestRefreshWorker_Run(t *testing.T) {
	t.Run("consumes until the consumer stops", func(t *testing.T) {
		p := &fakeProcessor{written: true}
		c := &fakeConsumer{
			msgs: []*amqp.RefreshRequestMessage{{Horizon: 3}, {Horizon: 12}},
			err:  fmt.Errorf("message channel closed"),
		}
		w := NewRefreshWorker(p, c, "0 * * * *")

		err := w.Run(context.Background())
		if err == nil {
			t.Fatal("consumer failure should be returned")
		}
		if p.allCalls != 1 {
			t.Errorf("startup refresh calls = %d, want 1", p.allCalls)
		}
		if len(p.calls) != 2 {
			t.Errorf("processed %d requests, want 2", len(p.calls))
		}
		for i, e := range c.errs {
			if e != nil {
				t.Errorf("message %d: %v", i, e)
			}
		}
	})

	t.Run("startup failure is not fatal", func(t *testing.T) {
		p := &fakeProcessor{err: errors.New("ledger down")}
		w := NewRefreshWorker(p, nil, "0 * * * *")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := w.Run(ctx); err != nil {
			t.Fatalf("Run() = %v, want nil on cancellation", err)
		}
	})

	t.Run("invalid schedule", func(t *testing.T) {
		w := NewRefreshWorker(&fakeProcessor{}, nil, "not a schedule")
		if err := w.Run(context.Background()); err == nil {
			t.Fatal("expected schedule error")
		}
	})
}
