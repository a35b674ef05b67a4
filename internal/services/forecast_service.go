package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fincast/internal/cache"
	"fincast/internal/core"
	"fincast/internal/forecast"
	ports "fincast/internal/ledger"
	"fincast/internal/log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const datasetKey = "ledger"

// Dataset is everything one refresh reads from the ledger.
type Dataset struct {
	Transactions []core.Transaction
	Categories   []core.CategoryRef
	Rules        []core.RecurringRule
	Settings     core.JurisdictionSettings
	Since        core.Date
	FetchedAt    time.Time
	// MalformedTransactions counts rows the ledger adapter could not parse.
	MalformedTransactions int
	// Generation orders fetches by start time. Reports built from the
	// dataset carry it.
	Generation uint64
}

// Options configures a ForecastService.
type Options struct {
	// LookbackMonths bounds the transaction fetch (default 12).
	LookbackMonths int
	Schedules      forecast.ScheduleSet
	// TaxAdjustmentPercent scales every tax estimate by (1 + p/100).
	TaxAdjustmentPercent decimal.Decimal
	// CacheTTL keeps the last dataset for Recompute. Zero disables it.
	CacheTTL time.Duration
	Now      func() time.Time
	Logger   *log.Logger
}

// ForecastService fetches the ledger and turns it into forecast reports.
type ForecastService struct {
	reader     ports.Reader
	datasets   *cache.LRUCache[Dataset]
	lookback   int
	schedules  forecast.ScheduleSet
	adjustment decimal.Decimal
	now        func() time.Time
	logger     *log.Logger
	structured *log.StructuredLogger

	generation atomic.Uint64

	cacheMu sync.Mutex
	// cachedGen is the generation of the newest dataset ever cached.
	cachedGen uint64

	mu     sync.RWMutex
	latest map[int]*Report
}

func NewForecastService(reader ports.Reader, opts Options) *ForecastService {
	if opts.LookbackMonths <= 0 {
		opts.LookbackMonths = 12
	}
	if opts.Schedules == nil {
		opts.Schedules = forecast.DefaultSchedules()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentForecast)
	datasets := cache.NewLRUCache[Dataset](1, opts.CacheTTL).WithClock(opts.Now)
	return &ForecastService{
		reader:     reader,
		datasets:   datasets,
		lookback:   opts.LookbackMonths,
		schedules:  opts.Schedules,
		adjustment: opts.TaxAdjustmentPercent,
		now:        opts.Now,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		latest:     make(map[int]*Report),
	}
}

// Cache exposes the dataset cache so it can be registered with a cache.Manager.
func (s *ForecastService) Cache() *cache.LRUCache[Dataset] {
	return s.datasets
}

// Fetch reads the four ledger sources concurrently. The first failure
// cancels the others and is returned as a *FetchError. A fetch that
// finishes after a newer one is returned but never cached.
func (s *ForecastService) Fetch(ctx context.Context) (Dataset, error) {
	now := s.now()
	ds := Dataset{
		Since:      core.DateOf(now).AddMonthsClamped(-s.lookback),
		Generation: s.generation.Add(1),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, malformed, err := ports.ListTransactionsCounted(gctx, s.reader, ds.Since)
		if err != nil {
			return &FetchError{Source: SourceTransactions, Err: err}
		}
		ds.Transactions = txs
		ds.MalformedTransactions = malformed
		return nil
	})
	g.Go(func() error {
		cats, err := s.reader.ListCategories(gctx)
		if err != nil {
			return &FetchError{Source: SourceCategories, Err: err}
		}
		ds.Categories = cats
		return nil
	})
	g.Go(func() error {
		rules, err := s.reader.ListRecurringRules(gctx, true)
		if err != nil {
			return &FetchError{Source: SourceRecurringRules, Err: err}
		}
		ds.Rules = rules
		return nil
	})
	g.Go(func() error {
		settings, err := s.reader.JurisdictionSettings(gctx)
		if err != nil {
			return &FetchError{Source: SourceSettings, Err: err}
		}
		ds.Settings = settings
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Ledger fetch failed", log.FieldOperation, log.OpFetch, log.FieldError, err)
		return Dataset{}, err
	}

	if ds.Settings.CountryCode == "" {
		ds.Settings.CountryCode = ports.DefaultSettings.CountryCode
	}
	if ds.Settings.CurrencyCode == "" {
		ds.Settings.CurrencyCode = ports.DefaultSettings.CurrencyCode
	}
	ds.FetchedAt = now
	s.cacheDataset(ds)
	return ds, nil
}

func (s *ForecastService) cacheDataset(ds Dataset) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if ds.Generation <= s.cachedGen {
		s.logger.Info("Skipped caching stale dataset", log.FieldGeneration, ds.Generation)
		return
	}
	s.cachedGen = ds.Generation
	s.datasets.Set(datasetKey, ds)
}

// Refresh always re-reads the ledger before computing.
func (s *ForecastService) Refresh(ctx context.Context, horizon int) (*Report, error) {
	if err := forecast.ValidateHorizon(horizon); err != nil {
		return nil, err
	}
	ds, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, ds, horizon)
}

// Recompute reuses the cached dataset when one is available and falls back
// to Refresh otherwise.
func (s *ForecastService) Recompute(ctx context.Context, horizon int) (*Report, error) {
	if err := forecast.ValidateHorizon(horizon); err != nil {
		return nil, err
	}
	ds, ok := s.datasets.Get(datasetKey)
	if !ok {
		return s.Refresh(ctx, horizon)
	}
	return s.build(ctx, ds, horizon)
}

// RefreshAll fetches once and computes a report for every horizon.
func (s *ForecastService) RefreshAll(ctx context.Context, horizons []int) ([]*Report, error) {
	for _, h := range horizons {
		if err := forecast.ValidateHorizon(h); err != nil {
			return nil, err
		}
	}
	ds, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*Report, 0, len(horizons))
	for _, h := range horizons {
		r, err := s.build(ctx, ds, h)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Latest returns the newest published report for a horizon.
func (s *ForecastService) Latest(horizon int) (*Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[horizon]
	return r, ok
}

// Invalidate drops the cached dataset so the next Recompute refetches.
func (s *ForecastService) Invalidate() {
	s.datasets.Purge()
}

func (s *ForecastService) build(ctx context.Context, ds Dataset, horizon int) (*Report, error) {
	gen := ds.Generation
	today := core.DateOf(s.now())
	r, err := Compute(ds, ComputeParams{
		Horizon:              horizon,
		Today:                today,
		Schedules:            s.schedules,
		TaxAdjustmentPercent: s.adjustment,
	})
	if err != nil {
		return nil, fmt.Errorf("compute forecast: %w", err)
	}
	r.Generation = gen
	r.ComputedAt = s.now()

	if n := r.Warnings.DataErrors(); n > 0 {
		s.logger.WarnContext(ctx, "Skipped malformed ledger records",
			log.FieldHorizon, horizon,
			log.FieldSkipped, r.Warnings.SkippedTransactions,
			log.FieldUnresolved, r.Warnings.UnresolvedCategories,
			"invalid_rules", r.Warnings.InvalidRules,
			"unknown_frequencies", r.Warnings.UnknownFrequencies,
			"truncated_rules", r.Warnings.TruncatedRules)
	}

	if s.publish(r) {
		s.structured.LogForecastComputed(ctx, horizon, gen, r.Tax.Estimate.Jurisdiction,
			len(ds.Transactions), len(ds.Rules), r.Warnings.SkippedTransactions, r.Warnings.UnresolvedCategories)
	} else {
		s.logger.InfoContext(ctx, "Discarded stale forecast", log.FieldHorizon, horizon, log.FieldGeneration, gen)
	}
	return r, nil
}

// publish stores r as the latest report unless one built from a newer
// dataset already won. Reports from the same dataset replace each other.
func (s *ForecastService) publish(r *Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[r.Horizon]; ok && cur.Generation > r.Generation {
		return false
	}
	s.latest[r.Horizon] = r
	return true
}

// ComputeParams are the explicit inputs of Compute besides the dataset.
type ComputeParams struct {
	Horizon              int
	Today                core.Date
	Schedules            forecast.ScheduleSet
	TaxAdjustmentPercent decimal.Decimal
}

// Compute builds a report from a dataset without any I/O. Generation and
// ComputedAt are left for the caller.
func Compute(ds Dataset, p ComputeParams) (*Report, error) {
	if p.Schedules == nil {
		p.Schedules = forecast.DefaultSchedules()
	}
	idx := forecast.NewCategoryIndex(ds.Categories)
	txs, unresolvedTxs := forecast.ResolveCategories(ds.Transactions, idx)
	rules, unresolvedRules := forecast.ResolveRuleCategories(ds.Rules, idx)

	monthly := forecast.AggregateMonthly(txs)
	points, err := forecast.ForecastMonthly(monthly, p.Horizon)
	if err != nil {
		return nil, err
	}
	cats := forecast.ForecastCategories(txs)
	end := forecast.HorizonEnd(p.Today, p.Horizon)
	proj := forecast.ProjectOccurrences(rules, p.Today, end)

	r := &Report{
		Horizon:          p.Horizon,
		Today:            p.Today,
		HorizonEnd:       end,
		DatasetFetchedAt: ds.FetchedAt,
		Settings:         ds.Settings,
		Monthly:          MonthlySection{Status: StatusOK, Points: points},
		Categories:       CategorySection{Status: StatusOK, Forecasts: cats.Forecasts},
		Upcoming: UpcomingSection{
			Status:       StatusOK,
			Occurrences:  proj.Occurrences,
			ExpenseTotal: forecast.Total(proj.Expenses()),
			IncomeTotal:  forecast.Total(proj.Occurrences).Sub(forecast.Total(proj.Expenses())),
		},
		Tax: TaxSection{
			Status:   StatusOK,
			Estimate: forecast.Estimate(txs, ds.Settings, p.Schedules, p.TaxAdjustmentPercent),
		},
		Warnings: Warnings{
			SkippedTransactions:    monthly.Skipped + ds.MalformedTransactions,
			Transfers:              monthly.Transfers,
			UnresolvedCategories:   unresolvedTxs + unresolvedRules,
			UncategorizedExpenses:  cats.Unresolved,
			InsufficientCategories: cats.Insufficient,
			InvalidRules:           proj.Invalid,
			UnknownFrequencies:     proj.UnknownFrequency,
			TruncatedRules:         proj.Truncated,
		},
	}

	if len(monthly.Months) < forecast.MinTrendMonths {
		r.Monthly.Status = StatusInsufficientData
	}
	if len(cats.Forecasts) == 0 {
		r.Categories.Status = StatusInsufficientData
	}
	if len(rules) == 0 {
		r.Upcoming.Status = StatusInsufficientData
	}
	if monthly.IsEmpty() {
		r.Tax.Status = StatusInsufficientData
	}
	return r, nil
}
