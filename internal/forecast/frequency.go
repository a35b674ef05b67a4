// This file implements the Strategy Pattern for recurrence steps.
// Each frequency has its own stepper that computes the n-th occurrence of a
// rule from its start date. Computing from the start (rather than adding one
// step to the previous occurrence) keeps month-end rules from drifting.

package forecast

import (
	"fmt"
	"time"

	"fincast/internal/core"
)

// Stepper is the strategy interface for a recurrence frequency.
type Stepper interface {
	// Nth returns the n-th occurrence (n >= 0) of a rule starting at start.
	Nth(start core.Date, n int) core.Date
	// StepsUntil returns the smallest n >= 0 with Nth(start, n) on or after target.
	StepsUntil(start, target core.Date) int
}

// DayStepper advances a fixed number of days per step.
type DayStepper struct {
	Days int
}

func (s DayStepper) Nth(start core.Date, n int) core.Date {
	return core.Date{Time: start.AddDate(0, 0, s.Days*n)}
}

func (s DayStepper) StepsUntil(start, target core.Date) int {
	days := int(target.Sub(start.Time) / (24 * time.Hour))
	if days <= 0 || s.Days <= 0 {
		return 0
	}
	return (days + s.Days - 1) / s.Days
}

// MonthStepper advances a fixed number of calendar months per step, pinning
// the day to the end of shorter months.
type MonthStepper struct {
	Months int
}

func (s MonthStepper) Nth(start core.Date, n int) core.Date {
	return start.AddMonthsClamped(s.Months * n)
}

func (s MonthStepper) StepsUntil(start, target core.Date) int {
	if !target.After(start.Time) || s.Months <= 0 {
		return 0
	}
	months := (target.Year()-start.Year())*12 + int(target.Month()) - int(start.Month())
	n := months / s.Months
	// Clamping can leave Nth(n) a few days short of target.
	for s.Nth(start, n).Before(target.Time) {
		n++
	}
	return n
}

// steppers maps frequencies to their corresponding step strategy.
var steppers = map[core.Frequency]Stepper{
	core.Weekly:    DayStepper{Days: 7},
	core.Biweekly:  DayStepper{Days: 14},
	core.Monthly:   MonthStepper{Months: 1},
	core.Quarterly: MonthStepper{Months: 3},
	core.Yearly:    MonthStepper{Months: 12},
}

// GetStepper returns the step strategy for a frequency.
// Returns an error wrapping core.ErrUnknownFrequency if none is registered.
func GetStepper(frequency core.Frequency) (Stepper, error) {
	s, ok := steppers[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownFrequency, frequency)
	}
	return s, nil
}
