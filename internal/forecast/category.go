package forecast

import (
	"sort"
	"strings"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// CategoryWindow is the number of most recent months a category forecast uses.
const CategoryWindow = 3

var (
	trendThreshold = decimal.RequireFromString("0.05")
	hundred        = decimal.NewFromInt(100)
)

// CategoryIndex resolves category links against the full category list.
type CategoryIndex struct {
	byID map[string]core.CategoryRef
}

func NewCategoryIndex(categories []core.CategoryRef) CategoryIndex {
	idx := CategoryIndex{byID: make(map[string]core.CategoryRef, len(categories))}
	for _, c := range categories {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			continue
		}
		idx.byID[id] = c
	}
	return idx
}

// Resolve returns the canonical reference for a link: the embedded reference
// when present, otherwise the category whose id matches.
func (idx CategoryIndex) Resolve(link core.CategoryLink) (core.CategoryRef, bool) {
	if link.Ref != nil {
		return *link.Ref, true
	}
	id := strings.TrimSpace(link.ID)
	if id == "" {
		return core.CategoryRef{}, false
	}
	ref, ok := idx.byID[id]
	return ref, ok
}

// ResolveCategories returns a copy of txs with every resolvable category link
// replaced by its canonical reference. Non-empty links that cannot be
// resolved are left without a reference and counted.
func ResolveCategories(txs []core.Transaction, idx CategoryIndex) ([]core.Transaction, int) {
	out := make([]core.Transaction, len(txs))
	unresolved := 0
	for i, tx := range txs {
		if ref, ok := idx.Resolve(tx.Category); ok {
			tx.Category = core.LinkByRef(ref)
		} else if !tx.Category.IsEmpty() {
			tx.Category = core.CategoryLink{ID: tx.Category.ID}
			unresolved++
		}
		out[i] = tx
	}
	return out, unresolved
}

// ResolveRuleCategories does the same for recurring rules.
func ResolveRuleCategories(rules []core.RecurringRule, idx CategoryIndex) ([]core.RecurringRule, int) {
	out := make([]core.RecurringRule, len(rules))
	unresolved := 0
	for i, r := range rules {
		if ref, ok := idx.Resolve(r.Category); ok {
			r.Category = core.LinkByRef(ref)
		} else if !r.Category.IsEmpty() {
			r.Category = core.CategoryLink{ID: r.Category.ID}
			unresolved++
		}
		out[i] = r
	}
	return out, unresolved
}

// CategoryResult is the output of ForecastCategories.
type CategoryResult struct {
	Forecasts []core.CategoryForecast
	// Unresolved counts expense records without a resolved category.
	Unresolved int
	// Skipped counts malformed expense records.
	Skipped int
	// Insufficient counts categories dropped for having fewer than CategoryWindow months.
	Insufficient int
}

// ForecastCategories forecasts next month's spend for every expense category
// with at least CategoryWindow months of history. Transactions must already be
// resolved (see ResolveCategories). Output is sorted by forecast, descending.
func ForecastCategories(txs []core.Transaction) CategoryResult {
	type series struct {
		ref    core.CategoryRef
		months map[string]decimal.Decimal
	}
	byCategory := make(map[string]*series)
	res := CategoryResult{}

	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		if err := tx.Validate(); err != nil {
			res.Skipped++
			continue
		}
		if tx.Category.Ref == nil {
			res.Unresolved++
			continue
		}
		ref := *tx.Category.Ref
		key := categoryKey(ref)
		s, ok := byCategory[key]
		if !ok {
			s = &series{ref: ref, months: make(map[string]decimal.Decimal)}
			byCategory[key] = s
		}
		m := tx.Date.MonthKey()
		s.months[m] = s.months[m].Add(tx.Amount)
	}

	for _, s := range byCategory {
		if len(s.months) < CategoryWindow {
			res.Insufficient++
			continue
		}
		keys := make([]string, 0, len(s.months))
		for k := range s.months {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		keys = keys[len(keys)-CategoryWindow:]

		values := make([]decimal.Decimal, len(keys))
		total := decimal.Zero
		for i, k := range keys {
			values[i] = s.months[k]
			total = total.Add(values[i])
		}
		avgChange, _ := AverageChange(values)
		current := total.Div(decimal.NewFromInt(CategoryWindow))

		res.Forecasts = append(res.Forecasts, core.CategoryForecast{
			Category:              s.ref,
			CurrentMonthlyAverage: current.Round(2),
			ForecastNextMonth:     current.Mul(one.Add(avgChange)).Round(0),
			PercentChange:         avgChange.Mul(hundred).Round(2),
			Trend:                 classifyTrend(avgChange),
		})
	}

	sort.SliceStable(res.Forecasts, func(i, j int) bool {
		a, b := res.Forecasts[i], res.Forecasts[j]
		if c := a.ForecastNextMonth.Cmp(b.ForecastNextMonth); c != 0 {
			return c > 0
		}
		return a.Category.Name < b.Category.Name
	})
	return res
}

func classifyTrend(avgChange decimal.Decimal) core.Trend {
	switch {
	case avgChange.GreaterThan(trendThreshold):
		return core.TrendUp
	case avgChange.LessThan(trendThreshold.Neg()):
		return core.TrendDown
	default:
		return core.TrendStable
	}
}

func categoryKey(ref core.CategoryRef) string {
	if id := strings.TrimSpace(ref.ID); id != "" {
		return "id:" + id
	}
	return "name:" + strings.ToLower(strings.TrimSpace(ref.Name))
}
