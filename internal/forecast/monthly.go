// Package forecast holds the pure computations behind the forecasting
// dashboard: monthly aggregation, trend extrapolation, per-category
// forecasts, recurring-rule projection and progressive tax estimates.
//
// Nothing in this package performs I/O or keeps state between calls; every
// function builds fresh output from its inputs.
package forecast

import (
	"sort"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// MonthlyResult is the output of AggregateMonthly.
type MonthlyResult struct {
	// Buckets holds one entry per month with at least one counted transaction.
	Buckets map[string]core.MonthlyBucket
	// Months lists the bucket keys in ascending order.
	Months []string
	// Skipped counts malformed records (missing date, invalid amount or type).
	Skipped int
	// Transfers counts transfer records, which never contribute to a bucket.
	Transfers int
}

// Ordered returns the buckets sorted by month.
func (r MonthlyResult) Ordered() []core.MonthlyBucket {
	out := make([]core.MonthlyBucket, 0, len(r.Months))
	for _, m := range r.Months {
		out = append(out, r.Buckets[m])
	}
	return out
}

// IsEmpty reports whether no month could be built.
func (r MonthlyResult) IsEmpty() bool {
	return len(r.Months) == 0
}

// AggregateMonthly buckets transactions by calendar month. Input order does
// not matter; transfers are ignored and malformed records are counted and
// skipped.
func AggregateMonthly(txs []core.Transaction) MonthlyResult {
	res := MonthlyResult{Buckets: make(map[string]core.MonthlyBucket)}

	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			res.Skipped++
			continue
		}
		if tx.Type == core.Transfer {
			res.Transfers++
			continue
		}

		key := tx.Date.MonthKey()
		b, ok := res.Buckets[key]
		if !ok {
			b = core.MonthlyBucket{Month: key, Income: decimal.Zero, Expenses: decimal.Zero}
		}
		switch tx.Type {
		case core.Income:
			b.Income = b.Income.Add(tx.Amount)
		case core.Expense:
			b.Expenses = b.Expenses.Add(tx.Amount)
		}
		res.Buckets[key] = b
	}

	res.Months = make([]string, 0, len(res.Buckets))
	for k := range res.Buckets {
		res.Months = append(res.Months, k)
	}
	// YYYY-MM sorts lexically in chronological order.
	sort.Strings(res.Months)
	return res
}
