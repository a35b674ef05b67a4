package services

import (
	"time"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// SectionStatus tells the presentation layer how to render a report section.
type SectionStatus string

const (
	StatusOK SectionStatus = "ok"
	// StatusInsufficientData marks a section that has too little history to
	// compute. It is not an error.
	StatusInsufficientData SectionStatus = "insufficient_data"
)

type (
	// Report is one complete forecast for a horizon.
	Report struct {
		Generation       uint64                    `json:"generation"`
		Horizon          int                       `json:"horizon"`
		Today            core.Date                 `json:"today"`
		HorizonEnd       core.Date                 `json:"horizon_end"`
		ComputedAt       time.Time                 `json:"computed_at"`
		DatasetFetchedAt time.Time                 `json:"dataset_fetched_at"`
		Settings         core.JurisdictionSettings `json:"settings"`
		Monthly          MonthlySection            `json:"monthly_forecast"`
		Categories       CategorySection           `json:"category_forecasts"`
		Upcoming         UpcomingSection           `json:"upcoming_occurrences"`
		Tax              TaxSection                `json:"tax_estimate"`
		Warnings         Warnings                  `json:"warnings"`
	}

	MonthlySection struct {
		Status SectionStatus        `json:"status"`
		Points []core.ForecastPoint `json:"points"`
	}

	CategorySection struct {
		Status    SectionStatus           `json:"status"`
		Forecasts []core.CategoryForecast `json:"forecasts"`
	}

	UpcomingSection struct {
		Status      SectionStatus     `json:"status"`
		Occurrences []core.Occurrence `json:"occurrences"`
		// ExpenseTotal sums only expense occurrences.
		ExpenseTotal decimal.Decimal `json:"expense_total"`
		IncomeTotal  decimal.Decimal `json:"income_total"`
	}

	TaxSection struct {
		Status   SectionStatus    `json:"status"`
		Estimate core.TaxEstimate `json:"estimate"`
	}

	// Warnings counts records that were skipped or could not be fully used.
	Warnings struct {
		SkippedTransactions    int `json:"skipped_transactions"`
		Transfers              int `json:"transfers"`
		UnresolvedCategories   int `json:"unresolved_categories"`
		UncategorizedExpenses  int `json:"uncategorized_expenses"`
		InsufficientCategories int `json:"insufficient_categories"`
		InvalidRules           int `json:"invalid_rules"`
		UnknownFrequencies     int `json:"unknown_frequencies"`
		TruncatedRules         int `json:"truncated_rules"`
	}
)

// DataErrors is the number of malformed records. Transfers and categories
// with short history are expected and not included.
func (w Warnings) DataErrors() int {
	return w.SkippedTransactions + w.UnresolvedCategories + w.InvalidRules + w.UnknownFrequencies + w.TruncatedRules
}

// Predictions returns only the predicted points of the monthly section.
func (r *Report) Predictions() []core.ForecastPoint {
	out := make([]core.ForecastPoint, 0, r.Horizon)
	for _, p := range r.Monthly.Points {
		if p.IsPrediction {
			out = append(out, p)
		}
	}
	return out
}
