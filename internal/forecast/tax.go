package forecast

import (
	"errors"
	"fmt"
	"strings"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

var ErrInvalidSchedule = errors.New("invalid tax schedule")

// Schedule is a jurisdiction's bracket table and the expense categories it
// lets a business deduct.
type Schedule struct {
	Code       string
	Brackets   []core.TaxBracket
	Deductible []string
}

// Validate checks that brackets are non-empty, strictly ascending, and carry
// rates between 0 and 1.
func (s Schedule) Validate() error {
	if len(s.Brackets) == 0 {
		return fmt.Errorf("%w: %s has no brackets", ErrInvalidSchedule, s.Code)
	}
	for i, b := range s.Brackets {
		if b.Threshold.IsNegative() {
			return fmt.Errorf("%w: %s bracket %d has a negative threshold", ErrInvalidSchedule, s.Code, i)
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			return fmt.Errorf("%w: %s bracket %d rate %s outside [0, 1]", ErrInvalidSchedule, s.Code, i, b.Rate)
		}
		if i > 0 && !b.Threshold.GreaterThan(s.Brackets[i-1].Threshold) {
			return fmt.Errorf("%w: %s thresholds not strictly ascending at bracket %d", ErrInvalidSchedule, s.Code, i)
		}
	}
	return nil
}

// IsDeductible reports whether a category name is on the allowlist, ignoring case.
func (s Schedule) IsDeductible(name string) bool {
	name = strings.TrimSpace(name)
	for _, d := range s.Deductible {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// ScheduleSet holds schedules keyed by upper-case country code.
type ScheduleSet map[string]Schedule

// For returns the schedule registered for code, or DefaultSchedule.
func (set ScheduleSet) For(code string) Schedule {
	if s, ok := set[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return DefaultSchedule()
}

// Merge returns a copy of set with overrides replacing same-code entries.
func (set ScheduleSet) Merge(overrides ScheduleSet) ScheduleSet {
	out := make(ScheduleSet, len(set)+len(overrides))
	for k, v := range set {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// TaxBase is the split of income used for an estimate.
type TaxBase struct {
	Income     decimal.Decimal
	Deductible decimal.Decimal
}

// Taxable is income minus deductible expenses. It may be negative.
func (b TaxBase) Taxable() decimal.Decimal {
	return b.Income.Sub(b.Deductible)
}

// TaxableIncome sums income and the deductible expenses of txs. Categories
// must already be resolved; transactions without one are never deductible.
func TaxableIncome(txs []core.Transaction, schedule Schedule) TaxBase {
	base := TaxBase{Income: decimal.Zero, Deductible: decimal.Zero}
	for _, tx := range txs {
		if tx.Validate() != nil {
			continue
		}
		switch tx.Type {
		case core.Income:
			base.Income = base.Income.Add(tx.Amount)
		case core.Expense:
			if tx.Category.Ref != nil && schedule.IsDeductible(tx.Category.Ref.Name) {
				base.Deductible = base.Deductible.Add(tx.Amount)
			}
		}
	}
	return base
}

// EstimateTax applies the marginal brackets to taxable and scales the result
// by (1 + adjustmentPercent/100) when the adjustment is non-zero. Brackets
// must be sorted ascending. Non-positive taxable income owes nothing.
func EstimateTax(taxable decimal.Decimal, brackets []core.TaxBracket, adjustmentPercent decimal.Decimal) decimal.Decimal {
	tax := decimal.Zero
	if !taxable.IsPositive() {
		return tax
	}
	for i, b := range brackets {
		if !taxable.GreaterThan(b.Threshold) {
			break
		}
		upper := taxable
		if i+1 < len(brackets) && brackets[i+1].Threshold.LessThan(taxable) {
			upper = brackets[i+1].Threshold
		}
		tax = tax.Add(upper.Sub(b.Threshold).Mul(b.Rate))
	}
	if !adjustmentPercent.IsZero() {
		tax = tax.Mul(one.Add(adjustmentPercent.Div(hundred)))
	}
	return tax.Round(2)
}

// EffectiveRatePercent is tax as a percentage of taxable income, 0 when
// taxable income is not positive.
func EffectiveRatePercent(tax, taxable decimal.Decimal) decimal.Decimal {
	if !taxable.IsPositive() {
		return decimal.Zero
	}
	return tax.Div(taxable).Mul(hundred).Round(2)
}

// Estimate builds the full tax estimate for the jurisdiction in settings.
func Estimate(txs []core.Transaction, settings core.JurisdictionSettings, schedules ScheduleSet, adjustmentPercent decimal.Decimal) core.TaxEstimate {
	schedule := schedules.For(settings.CountryCode)
	base := TaxableIncome(txs, schedule)
	taxable := base.Taxable()
	tax := EstimateTax(taxable, schedule.Brackets, adjustmentPercent)
	return core.TaxEstimate{
		Jurisdiction:         schedule.Code,
		TaxableIncome:        taxable,
		DeductibleExpenses:   base.Deductible,
		EstimatedTax:         tax,
		EffectiveRatePercent: EffectiveRatePercent(tax, taxable),
		AdjustmentPercent:    adjustmentPercent,
	}
}
