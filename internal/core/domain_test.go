package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-01-15", NewDate(2024, 1, 15), true},
		{"2024-02-10T09:30:00Z", NewDate(2024, 2, 10), true},
		{" 2024-03-01 ", NewDate(2024, 3, 1), true},
		{"", Date{}, false},
		{"15/01/2024", Date{}, false},
	}
	for i, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok && (err != nil || !got.Equal(tc.want.Time)) {
			t.Fatalf("case %d expected %s, got %s (err=%v)", i, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		start Date
		n     int
		want  Date
	}{
		{NewDate(2024, 1, 31), 1, NewDate(2024, 2, 29)},
		{NewDate(2023, 1, 31), 1, NewDate(2023, 2, 28)},
		{NewDate(2024, 1, 31), 2, NewDate(2024, 3, 31)},
		{NewDate(2024, 11, 30), 3, NewDate(2025, 2, 28)},
		{NewDate(2024, 2, 29), 12, NewDate(2025, 2, 28)},
		{NewDate(2024, 1, 15), 0, NewDate(2024, 1, 15)},
	}
	for _, tc := range cases {
		got := tc.start.AddMonthsClamped(tc.n)
		if !got.Equal(tc.want.Time) {
			t.Errorf("%s + %d months = %s, want %s", tc.start, tc.n, got, tc.want)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{ID: "t1", Date: NewDate(2024, 1, 1), Amount: decimal.NewFromInt(10), Type: Income}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		tx   Transaction
		want error
	}{
		{Transaction{Amount: decimal.NewFromInt(1), Type: Income}, ErrMissingDate},
		{Transaction{Date: NewDate(2024, 1, 1), Amount: decimal.NewFromInt(-1), Type: Expense}, ErrInvalidAmount},
		{Transaction{Date: NewDate(2024, 1, 1), Amount: decimal.NewFromInt(1), Type: "refund"}, ErrInvalidType},
	}
	for i, tc := range bads {
		if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestRecurringRuleValidate(t *testing.T) {
	good := RecurringRule{
		ID:          "r1",
		Description: "Rent",
		Amount:      decimal.NewFromInt(1500),
		StartDate:   NewDate(2024, 1, 1),
		Frequency:   Monthly,
		Type:        Expense,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	unknownFreq := good
	unknownFreq.Frequency = "fortnightly"
	if err := unknownFreq.Validate(); err != nil {
		t.Fatalf("unknown frequency must not fail validation, got %v", err)
	}

	noStart := good
	noStart.StartDate = Date{}
	if err := noStart.Validate(); !errors.Is(err, ErrMissingStartDate) {
		t.Fatalf("expected ErrMissingStartDate, got %v", err)
	}

	transfer := good
	transfer.Type = Transfer
	if err := transfer.Validate(); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: NewDate(2024, 4, 1)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2024-04-01","z":null}` {
		t.Fatalf("unexpected json: %s", b)
	}

	var out struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-04-01"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.D.Equal(NewDate(2024, 4, 1).Time) {
		t.Fatalf("unexpected date: %s", out.D)
	}
}
