package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MonthLayout is the key format of a calendar month bucket.
const MonthLayout = "2006-01"

// DateLayout is the wire format of a calendar day.
const DateLayout = "2006-01-02"

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

type (
	TransactionType string

	Frequency string

	Date struct {
		time.Time
	}

	// CategoryRef is the canonical category a transaction resolves to.
	CategoryRef struct {
		ID    string          `json:"id" yaml:"id"`
		Name  string          `json:"name" yaml:"name"`
		Color string          `json:"color" yaml:"color"`
		Type  TransactionType `json:"type" yaml:"type"`
	}

	// CategoryLink is what the ledger hands over for a transaction's category:
	// an embedded reference, a bare id to look up, or nothing.
	CategoryLink struct {
		Ref *CategoryRef
		ID  string
	}

	Transaction struct {
		ID       string
		Date     Date
		Amount   decimal.Decimal
		Type     TransactionType
		Category CategoryLink
	}

	RecurringRule struct {
		ID          string
		Description string
		Amount      decimal.Decimal
		StartDate   Date
		Frequency   Frequency
		Type        TransactionType
		Category    CategoryLink
		Active      bool
	}

	// JurisdictionSettings selects the tax schedule and display currency.
	JurisdictionSettings struct {
		CountryCode  string `json:"country_code" yaml:"country_code"`
		CurrencyCode string `json:"currency_code" yaml:"currency_code"`
	}
)

var (
	ErrMissingDate        = errors.New("missing date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrUnknownFrequency   = errors.New("unknown frequency")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyIdentifier    = errors.New("empty identifier")
	ErrMissingStartDate   = errors.New("missing start date")
	ErrUnresolvedCategory = errors.New("unresolved category")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string. Longer ISO timestamps are truncated to the day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// MonthKey returns the YYYY-MM bucket key of the date.
func (d Date) MonthKey() string {
	return d.Format(MonthLayout)
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddMonthsClamped moves the date n calendar months, pinning the day to the
// last day of the target month when it would overflow (Jan 31 + 1 = Feb 28/29).
func (d Date) AddMonthsClamped(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return Date{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

// IsValid reports whether the transaction type is one of the known values.
func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// IsValid reports whether the frequency is one of the supported recurrence steps.
func (f Frequency) IsValid() bool {
	switch f {
	case Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// IsEmpty reports whether the link carries neither a reference nor an id.
func (l CategoryLink) IsEmpty() bool {
	return l.Ref == nil && strings.TrimSpace(l.ID) == ""
}

// LinkByID builds a link that must be resolved against a category list.
func LinkByID(id string) CategoryLink {
	return CategoryLink{ID: strings.TrimSpace(id)}
}

// LinkByRef builds an already-resolved link.
func LinkByRef(ref CategoryRef) CategoryLink {
	return CategoryLink{Ref: &ref, ID: ref.ID}
}

// Validate checks the fields every aggregation depends on.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyIdentifier
	}
	if r.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if r.Type != Income && r.Type != Expense {
		return ErrInvalidType
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	// Frequency is checked by the projector, which skips unknown values per rule.
	return nil
}

// MarshalJSON encodes the date as YYYY-MM-DD, or null for the zero date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON accepts YYYY-MM-DD (or a longer ISO timestamp) and null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
