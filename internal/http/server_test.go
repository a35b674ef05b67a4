package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/core"
	"fincast/internal/forecast"
	"fincast/internal/log"
	"fincast/internal/services"
	"fincast/internal/storage"

	"github.com/shopspring/decimal"
)

type fakeForecasts struct {
	mu         sync.Mutex
	err        error
	recomputes []int
	refreshes  []int
}

func (f *fakeForecasts) Recompute(ctx context.Context, horizon int) (*services.Report, error) {
	f.mu.Lock()
	f.recomputes = append(f.recomputes, horizon)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return sampleReport(horizon, 1), nil
}

func (f *fakeForecasts) Refresh(ctx context.Context, horizon int) (*services.Report, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, horizon)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return sampleReport(horizon, 2), nil
}

type fakeSnapshots struct {
	latestErr error
	processed []int
}

func (f *fakeSnapshots) Latest(ctx context.Context, horizon int) (*services.Report, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return sampleReport(horizon, 7), nil
}

func (f *fakeSnapshots) Process(ctx context.Context, horizon int, requestedAt time.Time) (*services.Report, bool, error) {
	f.processed = append(f.processed, horizon)
	return sampleReport(horizon, 8), true, nil
}

type fakePublisher struct {
	err  error
	sent []*amqp.RefreshRequestMessage
}

func (f *fakePublisher) PublishRefreshRequest(ctx context.Context, msg *amqp.RefreshRequestMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func sampleReport(horizon int, gen uint64) *services.Report {
	d := decimal.RequireFromString
	today := core.NewDate(2024, 1, 15)
	return &services.Report{
		Generation: gen,
		Horizon:    horizon,
		Today:      today,
		HorizonEnd: forecast.HorizonEnd(today, horizon),
		Settings:   core.JurisdictionSettings{CountryCode: "US", CurrencyCode: "USD"},
		Monthly: services.MonthlySection{
			Status: services.StatusOK,
			Points: []core.ForecastPoint{
				{Month: "2023-12", Label: "Dec 2023", Income: d("1000"), Expenses: d("400"), Savings: d("600")},
				{Month: "2024-01", Label: "Jan 2024", Income: d("1100"), Expenses: d("440"), Savings: d("660")},
				{Month: "2024-02", Label: "Feb 2024", Income: d("1210"), Expenses: d("484"), Savings: d("726"), IsPrediction: true},
			},
		},
		Categories: services.CategorySection{
			Status: services.StatusOK,
			Forecasts: []core.CategoryForecast{{
				Category:              core.CategoryRef{ID: "c1", Name: "Groceries", Color: "green"},
				CurrentMonthlyAverage: d("300"),
				ForecastNextMonth:     d("315"),
				PercentChange:         d("5"),
				Trend:                 core.TrendStable,
			}},
		},
		Upcoming: services.UpcomingSection{
			Status: services.StatusOK,
			Occurrences: []core.Occurrence{{
				RuleID: "r1", Date: core.NewDate(2024, 2, 1), Description: "Gym",
				Amount: d("50"), Type: core.Expense, CategoryName: "Health", CategoryColor: "red",
			}},
			ExpenseTotal: d("50"),
			IncomeTotal:  decimal.Zero,
		},
		Tax: services.TaxSection{
			Status: services.StatusOK,
			Estimate: core.TaxEstimate{
				Jurisdiction:         "US",
				TaxableIncome:        d("2100"),
				EstimatedTax:         d("210"),
				EffectiveRatePercent: d("10"),
			},
		},
		Warnings: services.Warnings{SkippedTransactions: 2},
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Forecasts == nil {
		deps.Forecasts = &fakeForecasts{}
	}
	srv := NewServer(Options{
		Addr:           ":0",
		DefaultHorizon: 6,
		Logger:         log.New(log.ConfigFor(io.Discard, "error", "test")),
	}, deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func serve(srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Deps{Ready: func(ctx context.Context) error { return nil }})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := serve(srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	down := newTestServer(t, Deps{Ready: func(ctx context.Context) error { return errors.New("db down") }})
	rr := serve(down, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing backend status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "db down") {
		t.Errorf("readyz body missing backend error: %s", rr.Body.String())
	}
}

func TestRequestLogsCarryComponent(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{target: "/api/forecast?horizon=3", want: "component=" + log.ComponentHTTP},
		{target: "/ui/forecast?horizon=3", want: "component=" + log.ComponentTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var buf bytes.Buffer
			srv := NewServer(Options{Logger: log.New(log.ConfigFor(&buf, "info", log.ComponentApp))}, Deps{Forecasts: &fakeForecasts{}})
			t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

			rr := serve(srv, http.MethodGet, tt.target, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				if !strings.Contains(line, "HTTP request") {
					continue
				}
				if strings.Count(line, "component=") != 1 || !strings.Contains(line, tt.want) {
					t.Errorf("want one %s in: %s", tt.want, line)
				}
			}
			if !strings.Contains(buf.String(), "HTTP request completed") {
				t.Errorf("request not logged:\n%s", buf.String())
			}
		})
	}
}

func TestGetForecast(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		err         error
		wantStatus  int
		wantHorizon int
		wantCalls   int
	}{
		{name: "explicit horizon", target: "/api/forecast?horizon=3", wantStatus: http.StatusOK, wantHorizon: 3, wantCalls: 1},
		{name: "default horizon", target: "/api/forecast", wantStatus: http.StatusOK, wantHorizon: 6, wantCalls: 1},
		{name: "unsupported horizon", target: "/api/forecast?horizon=5", wantStatus: http.StatusUnprocessableEntity},
		{name: "non numeric horizon", target: "/api/forecast?horizon=abc", wantStatus: http.StatusUnprocessableEntity},
		{
			name:       "ledger unavailable",
			target:     "/api/forecast?horizon=12",
			err:        &services.FetchError{Source: services.SourceTransactions, Err: errors.New("timeout")},
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
		},
		{name: "unexpected error", target: "/api/forecast?horizon=12", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeForecasts{err: tt.err}
			srv := newTestServer(t, Deps{Forecasts: fc})

			rr := serve(srv, http.MethodGet, tt.target, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d, body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if len(fc.recomputes) != tt.wantCalls {
				t.Fatalf("recompute calls=%d, want %d", len(fc.recomputes), tt.wantCalls)
			}
			switch tt.wantStatus {
			case http.StatusOK:
				var got services.Report
				if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode report: %v", err)
				}
				if got.Horizon != tt.wantHorizon {
					t.Errorf("horizon=%d, want %d", got.Horizon, tt.wantHorizon)
				}
				if !strings.Contains(rr.Body.String(), `"monthly_forecast"`) {
					t.Errorf("body missing monthly_forecast: %s", rr.Body.String())
				}
			case http.StatusServiceUnavailable:
				if rr.Header().Get("Retry-After") != "30" {
					t.Errorf("Retry-After=%q, want 30", rr.Header().Get("Retry-After"))
				}
				if !strings.Contains(rr.Body.String(), `"retryable":true`) {
					t.Errorf("body not marked retryable: %s", rr.Body.String())
				}
			}
		})
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rr := serve(srv, http.MethodGet, "/api/forecast?horizon=3", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "X-Request-ID"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	rr = serve(srv, http.MethodGet, "/api/forecast?horizon=3", http.Header{"X-Request-Id": {"abc-123"}})
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID=%q, want caller supplied id", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rr := serve(srv, http.MethodGet, "/api/forecast/refresh", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rr.Code)
	}
}

func TestRefreshForecast(t *testing.T) {
	t.Run("queues when a publisher is configured", func(t *testing.T) {
		fc := &fakeForecasts{}
		pub := &fakePublisher{}
		srv := newTestServer(t, Deps{Forecasts: fc, Publisher: pub})

		rr := serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=12", nil)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if len(pub.sent) != 1 || pub.sent[0].Horizon != 12 {
			t.Fatalf("published=%+v, want one request for horizon 12", pub.sent)
		}
		if len(fc.refreshes) != 0 {
			t.Errorf("inline refresh ran despite publisher")
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), "forecast:queued") {
			t.Errorf("missing forecast:queued trigger")
		}
	})

	t.Run("publish failure is retryable", func(t *testing.T) {
		srv := newTestServer(t, Deps{Publisher: &fakePublisher{err: amqp.ErrCircuitOpen}})
		rr := serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=3", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d, want 503", rr.Code)
		}
		if rr.Header().Get("Retry-After") == "" {
			t.Errorf("missing Retry-After")
		}
	})

	t.Run("inline refresh persists a snapshot", func(t *testing.T) {
		fc := &fakeForecasts{}
		snaps := &fakeSnapshots{}
		srv := newTestServer(t, Deps{Forecasts: fc, Snapshots: snaps})

		rr := serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=6", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if len(snaps.processed) != 1 || snaps.processed[0] != 6 {
			t.Fatalf("processed=%v, want [6]", snaps.processed)
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), `"generation":8`) {
			t.Errorf("HX-Trigger=%q, want generation 8", rr.Header().Get("HX-Trigger"))
		}
	})

	t.Run("inline refresh without snapshots", func(t *testing.T) {
		fc := &fakeForecasts{}
		srv := newTestServer(t, Deps{Forecasts: fc})

		rr := serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=3", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if len(fc.refreshes) != 1 || fc.refreshes[0] != 3 {
			t.Fatalf("refreshes=%v, want [3]", fc.refreshes)
		}
	})

	t.Run("invalid horizon is rejected before any work", func(t *testing.T) {
		fc := &fakeForecasts{}
		pub := &fakePublisher{}
		srv := newTestServer(t, Deps{Forecasts: fc, Publisher: pub})

		rr := serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=7", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d, want 422", rr.Code)
		}
		if len(pub.sent) != 0 || len(fc.refreshes) != 0 {
			t.Errorf("work done for invalid horizon")
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		var last int
		for i := 0; i < 11; i++ {
			last = serve(srv, http.MethodPost, "/api/forecast/refresh?horizon=3", nil).Code
		}
		if last != http.StatusTooManyRequests {
			t.Fatalf("11th refresh status=%d, want 429", last)
		}
	})
}

func TestGetSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		snapshots  SnapshotSource
		wantStatus int
	}{
		{name: "backend without snapshots", snapshots: nil, wantStatus: http.StatusNotFound},
		{name: "nothing stored yet", snapshots: &fakeSnapshots{latestErr: storage.ErrNoSnapshot}, wantStatus: http.StatusNotFound},
		{name: "stored", snapshots: &fakeSnapshots{}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Snapshots: tt.snapshots})
			rr := serve(srv, http.MethodGet, "/api/forecast/snapshot?horizon=3", nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d, body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(rr.Body.String(), `"generation":7`) {
				t.Errorf("body missing stored generation: %s", rr.Body.String())
			}
		})
	}
}

func TestForecastPartial(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rr := serve(srv, http.MethodGet, "/ui/forecast?horizon=3", http.Header{"Hx-Request": {"true"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"next 3 months", "Groceries", "$1,210.00", "Gym", "$210.00", "2 ledger records could not be used"} {
		if !strings.Contains(body, want) {
			t.Errorf("partial missing %q", want)
		}
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
		t.Errorf("expected data quality notification trigger")
	}

	failing := newTestServer(t, Deps{Forecasts: &fakeForecasts{
		err: &services.FetchError{Source: services.SourceSettings, Err: errors.New("403")},
	}})
	rr = serve(failing, http.MethodGet, "/ui/forecast", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Errorf("expected HTML error fragment, got %s", rr.Body.String())
	}
}

func TestBarWidth(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		amount, max string
		want        int
	}{
		{"0", "100", 0},
		{"50", "100", 50},
		{"100", "100", 100},
		{"0.5", "1000", 2},
		{"10", "0", 0},
	}
	for _, tt := range tests {
		if got := barWidth(d(tt.amount), d(tt.max)); got != tt.want {
			t.Errorf("barWidth(%s, %s)=%d, want %d", tt.amount, tt.max, got, tt.want)
		}
	}
}
