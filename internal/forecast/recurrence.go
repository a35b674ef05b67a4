package forecast

import (
	"sort"

	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// MaxRecurrenceSteps caps how many occurrences a single rule may emit. Rules
// whose stepper stops advancing are cut off as well.
const MaxRecurrenceSteps = 5000

const (
	DefaultCategoryName  = "Uncategorized"
	DefaultCategoryColor = "gray"
)

// ProjectionResult is the output of ProjectOccurrences.
type ProjectionResult struct {
	// Occurrences is sorted ascending by date.
	Occurrences []core.Occurrence
	// Invalid counts rules missing required fields.
	Invalid int
	// UnknownFrequency counts rules whose frequency has no registered stepper.
	UnknownFrequency int
	// Truncated counts rules cut off by MaxRecurrenceSteps or a stepper
	// that does not advance.
	Truncated int
}

// Expenses returns only the expense occurrences, still in date order.
func (r ProjectionResult) Expenses() []core.Occurrence {
	out := make([]core.Occurrence, 0, len(r.Occurrences))
	for _, o := range r.Occurrences {
		if o.Type == core.Expense {
			out = append(out, o)
		}
	}
	return out
}

// Total sums the amounts of the given occurrences.
func Total(occs []core.Occurrence) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range occs {
		sum = sum.Add(o.Amount)
	}
	return sum
}

// HorizonEnd is the last day a projection for the given number of months covers.
func HorizonEnd(today core.Date, months int) core.Date {
	return today.AddMonthsClamped(months)
}

// ProjectOccurrences expands every rule into the occurrences falling between
// today and end, both inclusive. Rule categories must already be resolved
// (see ResolveRuleCategories).
func ProjectOccurrences(rules []core.RecurringRule, today, end core.Date) ProjectionResult {
	res := ProjectionResult{}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			res.Invalid++
			continue
		}
		stepper, err := GetStepper(rule.Frequency)
		if err != nil {
			res.UnknownFrequency++
			continue
		}

		name, color := DefaultCategoryName, DefaultCategoryColor
		if ref := rule.Category.Ref; ref != nil {
			if ref.Name != "" {
				name = ref.Name
			}
			if ref.Color != "" {
				color = ref.Color
			}
		}

		n := stepper.StepsUntil(rule.StartDate, today)
		d := stepper.Nth(rule.StartDate, n)
		if d.Before(today.Time) {
			res.Truncated++
			continue
		}
		for emitted := 0; !d.After(end.Time); emitted++ {
			if emitted == MaxRecurrenceSteps {
				res.Truncated++
				break
			}
			res.Occurrences = append(res.Occurrences, core.Occurrence{
				RuleID:        rule.ID,
				Date:          d,
				Description:   rule.Description,
				Amount:        rule.Amount,
				Type:          rule.Type,
				CategoryName:  name,
				CategoryColor: color,
			})
			n++
			next := stepper.Nth(rule.StartDate, n)
			if !next.After(d.Time) {
				res.Truncated++
				break
			}
			d = next
		}
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		a, b := res.Occurrences[i], res.Occurrences[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return a.RuleID < b.RuleID
	})
	return res
}
