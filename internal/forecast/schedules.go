package forecast

import (
	"fincast/internal/core"

	"github.com/shopspring/decimal"
)

// DefaultCode names the fallback schedule used for unknown jurisdictions.
const DefaultCode = "DEFAULT"

// bracket builds a TaxBracket from a threshold and a percentage rate.
func bracket(threshold int64, ratePercent string) core.TaxBracket {
	return core.TaxBracket{
		Threshold: decimal.NewFromInt(threshold),
		Rate:      decimal.RequireFromString(ratePercent).Div(hundred),
	}
}

// DefaultSchedule is a simple three-bracket table.
func DefaultSchedule() Schedule {
	return Schedule{
		Code: DefaultCode,
		Brackets: []core.TaxBracket{
			bracket(0, "10"),
			bracket(10000, "20"),
			bracket(50000, "30"),
		},
		Deductible: []string{"Office Supplies", "Travel", "Utilities", "Insurance", "Professional Services"},
	}
}

// DefaultSchedules returns the built-in jurisdictions. Each call builds a
// fresh set so callers may merge overrides into it.
func DefaultSchedules() ScheduleSet {
	return ScheduleSet{
		"US": {
			Code: "US",
			Brackets: []core.TaxBracket{
				bracket(0, "10"),
				bracket(11600, "12"),
				bracket(47150, "22"),
				bracket(100525, "24"),
				bracket(191950, "32"),
				bracket(243725, "35"),
				bracket(609350, "37"),
			},
			Deductible: []string{"Office Supplies", "Travel", "Meals", "Utilities", "Rent", "Insurance", "Advertising", "Professional Services", "Software"},
		},
		"GB": {
			Code: "GB",
			Brackets: []core.TaxBracket{
				bracket(0, "0"),
				bracket(12570, "20"),
				bracket(50270, "40"),
				bracket(125140, "45"),
			},
			Deductible: []string{"Office Supplies", "Travel", "Utilities", "Rent", "Insurance", "Professional Services", "Training"},
		},
		"CA": {
			Code: "CA",
			Brackets: []core.TaxBracket{
				bracket(0, "15"),
				bracket(55867, "20.5"),
				bracket(111733, "26"),
				bracket(173205, "29"),
				bracket(246752, "33"),
			},
			Deductible: []string{"Office Supplies", "Travel", "Meals", "Utilities", "Rent", "Insurance", "Advertising", "Professional Services"},
		},
		"AU": {
			Code: "AU",
			Brackets: []core.TaxBracket{
				bracket(0, "0"),
				bracket(18200, "16"),
				bracket(45000, "30"),
				bracket(135000, "37"),
				bracket(190000, "45"),
			},
			Deductible: []string{"Office Supplies", "Travel", "Utilities", "Rent", "Insurance", "Professional Services", "Software"},
		},
		"IT": {
			Code: "IT",
			Brackets: []core.TaxBracket{
				bracket(0, "23"),
				bracket(28000, "35"),
				bracket(50000, "43"),
			},
			Deductible: []string{"Office Supplies", "Travel", "Utilities", "Rent", "Insurance", "Professional Services"},
		},
	}
}
