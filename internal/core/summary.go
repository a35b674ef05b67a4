package core

import "github.com/shopspring/decimal"

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type (
	Trend string

	// MonthlyBucket sums income and expenses for one calendar month.
	MonthlyBucket struct {
		Month    string          `json:"month"`
		Income   decimal.Decimal `json:"income"`
		Expenses decimal.Decimal `json:"expenses"`
	}

	ForecastPoint struct {
		Month        string          `json:"month"`
		Label        string          `json:"label"`
		Income       decimal.Decimal `json:"income"`
		Expenses     decimal.Decimal `json:"expenses"`
		Savings      decimal.Decimal `json:"savings"`
		IsPrediction bool            `json:"is_prediction"`
	}

	CategoryForecast struct {
		Category              CategoryRef     `json:"category"`
		CurrentMonthlyAverage decimal.Decimal `json:"current_monthly_average"`
		ForecastNextMonth     decimal.Decimal `json:"forecast_next_month"`
		PercentChange         decimal.Decimal `json:"percent_change"`
		Trend                 Trend           `json:"trend"`
	}

	// Occurrence is one projected instance of a recurring rule.
	Occurrence struct {
		RuleID        string          `json:"rule_id"`
		Date          Date            `json:"date"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
		Type          TransactionType `json:"type"`
		CategoryName  string          `json:"category_name"`
		CategoryColor string          `json:"category_color"`
	}

	TaxBracket struct {
		Threshold decimal.Decimal `json:"threshold"`
		Rate      decimal.Decimal `json:"rate"`
	}

	TaxEstimate struct {
		Jurisdiction         string          `json:"jurisdiction"`
		TaxableIncome        decimal.Decimal `json:"taxable_income"`
		DeductibleExpenses   decimal.Decimal `json:"deductible_expenses"`
		EstimatedTax         decimal.Decimal `json:"estimated_tax"`
		EffectiveRatePercent decimal.Decimal `json:"effective_rate_percent"`
		AdjustmentPercent    decimal.Decimal `json:"adjustment_percent"`
	}
)

// Savings is income minus expenses; it may be negative.
func (b MonthlyBucket) Savings() decimal.Decimal {
	return b.Income.Sub(b.Expenses)
}
