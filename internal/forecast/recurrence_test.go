package forecast

import (
	"testing"

	"fincast/internal/core"
)

func rule(id, start string, freq core.Frequency) core.RecurringRule {
	return core.RecurringRule{
		ID:          id,
		Description: "rule " + id,
		Amount:      dec("50"),
		StartDate:   date(start),
		Frequency:   freq,
		Type:        core.Expense,
		Active:      true,
	}
}

func occurrenceDates(occs []core.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Date.String()
	}
	return out
}

func TestProjectOccurrences(t *testing.T) {
	today := date("2024-01-15")

	tests := []struct {
		name  string
		rule  core.RecurringRule
		today core.Date
		end   core.Date
		want  []string
	}{
		{
			name:  "monthly catches up past today",
			rule:  rule("r1", "2024-01-01", core.Monthly),
			today: today,
			end:   HorizonEnd(today, 3),
			want:  []string{"2024-02-01", "2024-03-01", "2024-04-01"},
		},
		{
			name:  "weekly",
			rule:  rule("r2", "2024-01-01", core.Weekly),
			today: today,
			end:   date("2024-02-05"),
			want:  []string{"2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05"},
		},
		{
			name:  "biweekly",
			rule:  rule("r3", "2024-01-01", core.Biweekly),
			today: today,
			end:   date("2024-02-20"),
			want:  []string{"2024-01-15", "2024-01-29", "2024-02-12"},
		},
		{
			name:  "quarterly",
			rule:  rule("r4", "2023-11-15", core.Quarterly),
			today: today,
			end:   HorizonEnd(today, 12),
			want:  []string{"2024-02-15", "2024-05-15", "2024-08-15", "2024-11-15"},
		},
		{
			name:  "yearly",
			rule:  rule("r5", "2020-06-30", core.Yearly),
			today: today,
			end:   HorizonEnd(today, 12),
			want:  []string{"2024-06-30"},
		},
		{
			name:  "start after today",
			rule:  rule("r6", "2024-03-10", core.Monthly),
			today: today,
			end:   HorizonEnd(today, 3),
			want:  []string{"2024-03-10", "2024-04-10"},
		},
		{
			name:  "month end clamps without drifting",
			rule:  rule("r7", "2024-01-31", core.Monthly),
			today: date("2024-02-01"),
			end:   date("2024-05-01"),
			want:  []string{"2024-02-29", "2024-03-31", "2024-04-30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ProjectOccurrences([]core.RecurringRule{tt.rule}, tt.today, tt.end)
			got := occurrenceDates(res.Occurrences)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
			for _, o := range res.Occurrences {
				if o.Date.Before(tt.rule.StartDate.Time) || o.Date.After(tt.end.Time) {
					t.Errorf("occurrence %s outside [%s, %s]", o.Date, tt.rule.StartDate, tt.end)
				}
			}
		})
	}
}

func TestProjectOccurrences_MergesAndSorts(t *testing.T) {
	today := date("2024-01-15")
	rules := []core.RecurringRule{
		rule("a", "2024-01-01", core.Monthly),
		rule("b", "2024-01-10", core.Weekly),
	}
	res := ProjectOccurrences(rules, today, HorizonEnd(today, 3))
	if len(res.Occurrences) == 0 {
		t.Fatal("expected occurrences")
	}
	for i := 1; i < len(res.Occurrences); i++ {
		if res.Occurrences[i].Date.Before(res.Occurrences[i-1].Date.Time) {
			t.Fatalf("occurrences out of order at %d", i)
		}
	}
}

func TestProjectOccurrences_Categories(t *testing.T) {
	today := date("2024-01-15")
	withCat := rule("a", "2024-02-01", core.Monthly)
	withCat.Category = core.LinkByRef(rent)
	bare := rule("b", "2024-02-01", core.Monthly)

	res := ProjectOccurrences([]core.RecurringRule{withCat, bare}, today, date("2024-02-01"))
	if len(res.Occurrences) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(res.Occurrences))
	}
	a, b := res.Occurrences[0], res.Occurrences[1]
	if a.CategoryName != "Rent" || a.CategoryColor != "blue" {
		t.Errorf("resolved category = %s/%s, want Rent/blue", a.CategoryName, a.CategoryColor)
	}
	if b.CategoryName != DefaultCategoryName || b.CategoryColor != DefaultCategoryColor {
		t.Errorf("default category = %s/%s", b.CategoryName, b.CategoryColor)
	}
}

func TestProjectOccurrences_DataErrors(t *testing.T) {
	today := date("2024-01-15")
	unknown := rule("u", "2024-01-01", "fortnightly")
	invalid := rule("i", "2024-01-01", core.Monthly)
	invalid.Description = ""

	res := ProjectOccurrences([]core.RecurringRule{unknown, invalid}, today, HorizonEnd(today, 12))

	if res.UnknownFrequency != 1 {
		t.Errorf("UnknownFrequency = %d, want 1", res.UnknownFrequency)
	}
	if res.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", res.Invalid)
	}
	if len(res.Occurrences) != 0 {
		t.Errorf("expected no occurrences, got %v", occurrenceDates(res.Occurrences))
	}
}

func TestProjectOccurrences_AncientStart(t *testing.T) {
	today := date("2024-01-15")
	tests := []struct {
		name      string
		rule      core.RecurringRule
		wantFirst string
		wantCount int
	}{
		// 1900-01-01 and 2024-01-15 are both Mondays, 6472 weeks apart.
		{name: "weekly", rule: rule("w", "1900-01-01", core.Weekly), wantFirst: "2024-01-15", wantCount: 53},
		{name: "monthly", rule: rule("m", "1900-01-31", core.Monthly), wantFirst: "2024-01-31", wantCount: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ProjectOccurrences([]core.RecurringRule{tt.rule}, today, HorizonEnd(today, 12))
			if res.Truncated != 0 {
				t.Errorf("Truncated = %d, want 0", res.Truncated)
			}
			if len(res.Occurrences) != tt.wantCount {
				t.Fatalf("got %d occurrences, want %d", len(res.Occurrences), tt.wantCount)
			}
			if got := res.Occurrences[0].Date.String(); got != tt.wantFirst {
				t.Errorf("first occurrence = %s, want %s", got, tt.wantFirst)
			}
		})
	}
}

func TestProjectOccurrences_StalledStepper(t *testing.T) {
	const stalled core.Frequency = "stalled"
	steppers[stalled] = DayStepper{Days: 0}
	t.Cleanup(func() { delete(steppers, stalled) })

	today := date("2024-01-15")
	tests := []struct {
		name      string
		start     string
		wantCount int
	}{
		{name: "start before today", start: "2024-01-01", wantCount: 0},
		{name: "start on today", start: "2024-01-15", wantCount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ProjectOccurrences([]core.RecurringRule{rule("s", tt.start, stalled)}, today, HorizonEnd(today, 3))
			if res.Truncated != 1 {
				t.Errorf("Truncated = %d, want 1", res.Truncated)
			}
			if len(res.Occurrences) != tt.wantCount {
				t.Errorf("got %v, want %d occurrences", occurrenceDates(res.Occurrences), tt.wantCount)
			}
		})
	}
}

func TestStepsUntil(t *testing.T) {
	tests := []struct {
		name    string
		stepper Stepper
		start   string
		target  string
		want    int
	}{
		{"weekly exact", DayStepper{Days: 7}, "2024-01-01", "2024-01-15", 2},
		{"weekly rounds up", DayStepper{Days: 7}, "2024-01-01", "2024-01-16", 3},
		{"target before start", DayStepper{Days: 7}, "2024-02-01", "2024-01-01", 0},
		{"monthly", MonthStepper{Months: 1}, "2024-01-10", "2024-03-10", 2},
		{"monthly past day", MonthStepper{Months: 1}, "2024-01-10", "2024-03-11", 3},
		{"month end clamp", MonthStepper{Months: 1}, "2024-01-31", "2024-02-29", 1},
		{"quarterly", MonthStepper{Months: 3}, "2023-11-15", "2024-01-15", 1},
		{"yearly", MonthStepper{Months: 12}, "2020-06-30", "2024-01-15", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := date(tt.start)
			target := date(tt.target)
			n := tt.stepper.StepsUntil(start, target)
			if n != tt.want {
				t.Errorf("StepsUntil = %d, want %d", n, tt.want)
			}
			if got := tt.stepper.Nth(start, n); target.After(start.Time) && got.Before(target.Time) {
				t.Errorf("Nth(%d) = %s is before %s", n, got, tt.target)
			}
		})
	}
}

func TestProjectionResult_Expenses(t *testing.T) {
	today := date("2024-01-15")
	salary := rule("s", "2024-02-01", core.Monthly)
	salary.Type = core.Income
	salary.Amount = dec("3000")
	rentRule := rule("r", "2024-02-01", core.Monthly)

	res := ProjectOccurrences([]core.RecurringRule{salary, rentRule}, today, HorizonEnd(today, 3))
	expenses := res.Expenses()
	if len(expenses) != 3 {
		t.Fatalf("got %d expense occurrences, want 3", len(expenses))
	}
	if !Total(expenses).Equal(dec("150")) {
		t.Errorf("Total = %s, want 150", Total(expenses))
	}
}
