package forecast

import (
	"errors"
	"fmt"
	"time"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// TrendWindow is the number of most recent months used to estimate growth.
const TrendWindow = 6

// MinTrendMonths is the minimum history needed before anything is extrapolated.
const MinTrendMonths = 2

// Horizons lists the supported forecast lengths in months.
var Horizons = []int{3, 6, 12}

var ErrInvalidHorizon = errors.New("invalid forecast horizon")

var one = decimal.NewFromInt(1)

// ValidateHorizon returns ErrInvalidHorizon unless h is one of Horizons.
func ValidateHorizon(h int) error {
	for _, v := range Horizons {
		if v == h {
			return nil
		}
	}
	return fmt.Errorf("%w: %d (want one of %v)", ErrInvalidHorizon, h, Horizons)
}

// AverageChange averages the fractional change between consecutive values.
// Pairs whose previous value is not positive are skipped; with no usable
// pair the average is zero. The second return value is the number of pairs
// that contributed.
func AverageChange(values []decimal.Decimal) (decimal.Decimal, int) {
	sum := decimal.Zero
	n := 0
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if !prev.IsPositive() {
			continue
		}
		sum = sum.Add(values[i].Sub(prev).Div(prev))
		n++
	}
	if n == 0 {
		return decimal.Zero, 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))), n
}

// Growth carries the trend estimated from the recent window.
type Growth struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

// EstimateGrowth computes the average month-over-month change of income and
// expenses over the last TrendWindow buckets.
func EstimateGrowth(buckets []core.MonthlyBucket) Growth {
	window := recentWindow(buckets)
	incomes := make([]decimal.Decimal, len(window))
	expenses := make([]decimal.Decimal, len(window))
	for i, b := range window {
		incomes[i] = b.Income
		expenses[i] = b.Expenses
	}
	g := Growth{}
	g.Income, _ = AverageChange(incomes)
	g.Expenses, _ = AverageChange(expenses)
	return g
}

// ForecastMonthly returns the historical points of the recent window
// followed by horizon predicted points. Each predicted month compounds on the
// previous prediction. With fewer than MinTrendMonths months only the
// historical points are returned.
func ForecastMonthly(monthly MonthlyResult, horizon int) ([]core.ForecastPoint, error) {
	if err := ValidateHorizon(horizon); err != nil {
		return nil, err
	}

	window := recentWindow(monthly.Ordered())
	points := make([]core.ForecastPoint, 0, len(window)+horizon)
	for _, b := range window {
		points = append(points, core.ForecastPoint{
			Month:    b.Month,
			Label:    monthLabel(b.Month),
			Income:   b.Income,
			Expenses: b.Expenses,
			Savings:  b.Savings(),
		})
	}
	if len(window) < MinTrendMonths {
		return points, nil
	}

	g := EstimateGrowth(window)
	last := window[len(window)-1]
	cursor, err := time.Parse(core.MonthLayout, last.Month)
	if err != nil {
		return nil, fmt.Errorf("parse month %q: %w", last.Month, err)
	}

	income, expenses := last.Income, last.Expenses
	for i := 0; i < horizon; i++ {
		cursor = cursor.AddDate(0, 1, 0)
		income = income.Mul(one.Add(g.Income)).Round(0)
		expenses = expenses.Mul(one.Add(g.Expenses)).Round(0)
		month := cursor.Format(core.MonthLayout)
		points = append(points, core.ForecastPoint{
			Month:        month,
			Label:        monthLabel(month),
			Income:       income,
			Expenses:     expenses,
			Savings:      income.Sub(expenses),
			IsPrediction: true,
		})
	}
	return points, nil
}

func recentWindow(buckets []core.MonthlyBucket) []core.MonthlyBucket {
	if len(buckets) > TrendWindow {
		return buckets[len(buckets)-TrendWindow:]
	}
	return buckets
}

// monthLabel turns "2024-02" into "Feb 2024".
func monthLabel(key string) string {
	t, err := time.Parse(core.MonthLayout, key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2006")
}
