package http

import (
	"fincast/internal/core"
	"fincast/internal/services"

	"github.com/shopspring/decimal"
)

// forecastView is the data handed to forecast.html.
type forecastView struct {
	Horizon    int
	Generation uint64
	Today      string
	HorizonEnd string
	Currency   string
	Report     *services.Report

	Monthly      []pointRow
	MaxAmount    decimal.Decimal
	Insufficient map[string]bool
	DataErrors   int
}

type pointRow struct {
	core.ForecastPoint
	// IncomeWidth and ExpenseWidth are bar widths in percent of MaxAmount.
	IncomeWidth  int
	ExpenseWidth int
}

func newForecastView(r *services.Report) forecastView {
	v := forecastView{
		Horizon:    r.Horizon,
		Generation: r.Generation,
		Today:      r.Today.String(),
		HorizonEnd: r.HorizonEnd.String(),
		Currency:   r.Settings.CurrencyCode,
		Report:     r,
		MaxAmount:  decimal.Zero,
		DataErrors: r.Warnings.DataErrors(),
		Insufficient: map[string]bool{
			"monthly":    r.Monthly.Status == services.StatusInsufficientData,
			"categories": r.Categories.Status == services.StatusInsufficientData,
			"upcoming":   r.Upcoming.Status == services.StatusInsufficientData,
			"tax":        r.Tax.Status == services.StatusInsufficientData,
		},
	}
	for _, p := range r.Monthly.Points {
		v.MaxAmount = decimal.Max(v.MaxAmount, p.Income, p.Expenses)
	}
	for _, p := range r.Monthly.Points {
		v.Monthly = append(v.Monthly, pointRow{
			ForecastPoint: p,
			IncomeWidth:   barWidth(p.Income, v.MaxAmount),
			ExpenseWidth:  barWidth(p.Expenses, v.MaxAmount),
		})
	}
	return v
}

// barWidth scales amount against max into 0..100, keeping any positive
// amount visible.
func barWidth(amount, max decimal.Decimal) int {
	if !max.IsPositive() || !amount.IsPositive() {
		return 0
	}
	width := int(amount.Mul(decimal.NewFromInt(100)).Div(max).Round(0).IntPart())
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}
