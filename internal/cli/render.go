package cli

import (
	"fmt"
	"io"
	"strings"

	"fincast/internal/core"
	"fincast/internal/services"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
)

var (
	heading   = color.New(color.FgCyan, color.Bold).SprintFunc()
	muted     = color.New(color.FgHiBlack).SprintFunc()
	positive  = color.New(color.FgGreen).SprintFunc()
	negative  = color.New(color.FgRed).SprintFunc()
	predicted = color.New(color.FgYellow).SprintFunc()
)

const barLength = 30

// RenderReport prints a report as terminal tables.
func RenderReport(w io.Writer, r *services.Report) error {
	cur := r.Settings.CurrencyCode
	money := func(d decimal.Decimal) string { return core.FormatAmount(d, cur) }

	fmt.Fprintln(w, heading(fmt.Sprintf("Forecast for the next %d months", r.Horizon)),
		muted(fmt.Sprintf("(%s to %s, %s)", r.Today, r.HorizonEnd, r.Settings.CountryCode)))
	fmt.Fprintln(w)

	if err := renderMonthly(w, r, money); err != nil {
		return err
	}
	if err := renderCategories(w, r, money); err != nil {
		return err
	}
	if err := renderUpcoming(w, r, money); err != nil {
		return err
	}
	renderTax(w, r, money)
	renderWarnings(w, r.Warnings)
	return nil
}

func renderMonthly(w io.Writer, r *services.Report, money func(decimal.Decimal) string) error {
	fmt.Fprintln(w, heading("Income and expenses"))
	if r.Monthly.Status == services.StatusInsufficientData {
		fmt.Fprintln(w, muted("Not enough history for a trend yet."))
	}
	if len(r.Monthly.Points) == 0 {
		fmt.Fprintln(w)
		return nil
	}

	max := decimal.Zero
	for _, p := range r.Monthly.Points {
		max = decimal.Max(max, p.Income, p.Expenses)
	}

	data := pterm.TableData{{"Month", "Income", "Expenses", "Savings", ""}}
	for _, p := range r.Monthly.Points {
		label := p.Label
		if p.IsPrediction {
			label = predicted(label + " *")
		}
		savings := money(p.Savings)
		if p.Savings.IsNegative() {
			savings = negative(savings)
		} else {
			savings = positive(savings)
		}
		data = append(data, []string{label, money(p.Income), money(p.Expenses), savings, bar(p.Expenses, max)})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render monthly table: %w", err)
	}
	fmt.Fprintln(w, table)
	fmt.Fprintln(w, muted("* predicted"))
	fmt.Fprintln(w)
	return nil
}

func renderCategories(w io.Writer, r *services.Report, money func(decimal.Decimal) string) error {
	fmt.Fprintln(w, heading("Categories next month"))
	if r.Categories.Status == services.StatusInsufficientData {
		fmt.Fprintln(w, muted("Categories need three months of history."))
		fmt.Fprintln(w)
		return nil
	}

	data := pterm.TableData{{"Category", "Average", "Forecast", "Change", "Trend"}}
	for _, f := range r.Categories.Forecasts {
		data = append(data, []string{
			f.Category.Name,
			money(f.CurrentMonthlyAverage),
			money(f.ForecastNextMonth),
			f.PercentChange.StringFixed(2) + "%",
			trendLabel(f.Trend),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render category table: %w", err)
	}
	fmt.Fprintln(w, table)
	fmt.Fprintln(w)
	return nil
}

func renderUpcoming(w io.Writer, r *services.Report, money func(decimal.Decimal) string) error {
	fmt.Fprintln(w, heading("Upcoming recurring"))
	if r.Upcoming.Status == services.StatusInsufficientData {
		fmt.Fprintln(w, muted("No recurring rules."))
		fmt.Fprintln(w)
		return nil
	}

	data := pterm.TableData{{"Date", "Description", "Category", "Amount"}}
	for _, o := range r.Upcoming.Occurrences {
		amount := money(o.Amount)
		if o.Type == core.Income {
			amount = positive("+" + amount)
		}
		data = append(data, []string{o.Date.String(), o.Description, o.CategoryName, amount})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render upcoming table: %w", err)
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "Expenses %s, income %s\n\n", money(r.Upcoming.ExpenseTotal), money(r.Upcoming.IncomeTotal))
	return nil
}

func renderTax(w io.Writer, r *services.Report, money func(decimal.Decimal) string) {
	est := r.Tax.Estimate
	fmt.Fprintln(w, heading(fmt.Sprintf("Estimated tax (%s)", est.Jurisdiction)))
	if r.Tax.Status == services.StatusInsufficientData {
		fmt.Fprintln(w, muted("No transactions to estimate from."))
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  Taxable income       %s\n", money(est.TaxableIncome))
	fmt.Fprintf(w, "  Deductible expenses  %s\n", money(est.DeductibleExpenses))
	fmt.Fprintf(w, "  Estimated tax        %s\n", money(est.EstimatedTax))
	fmt.Fprintf(w, "  Effective rate       %s%%\n", est.EffectiveRatePercent.StringFixed(2))
	if !est.AdjustmentPercent.IsZero() {
		fmt.Fprintf(w, "  Adjustment           %s%%\n", est.AdjustmentPercent.String())
	}
	fmt.Fprintln(w)
}

func renderWarnings(w io.Writer, warn services.Warnings) {
	lines := []struct {
		n    int
		what string
	}{
		{warn.SkippedTransactions, "malformed transactions skipped"},
		{warn.UnresolvedCategories, "category links could not be resolved"},
		{warn.UncategorizedExpenses, "expenses have no category"},
		{warn.InvalidRules, "recurring rules are incomplete"},
		{warn.UnknownFrequencies, "recurring rules have an unknown frequency"},
		{warn.TruncatedRules, "recurring rules were cut off"},
	}
	for _, l := range lines {
		if l.n > 0 {
			fmt.Fprintln(w, pterm.Warning.Sprintf("%d %s", l.n, l.what))
		}
	}
}

func trendLabel(t core.Trend) string {
	switch t {
	case core.TrendUp:
		return negative("up")
	case core.TrendDown:
		return positive("down")
	default:
		return "stable"
	}
}

// bar draws amount as a horizontal bar scaled against max.
func bar(amount, max decimal.Decimal) string {
	if !max.IsPositive() || !amount.IsPositive() {
		return ""
	}
	n := int(amount.Mul(decimal.NewFromInt(barLength)).Div(max).Round(0).IntPart())
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}
