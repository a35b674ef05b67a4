package services

import (
	"errors"
	"fmt"
)

// Ledger sources named by FetchError.
const (
	SourceTransactions   = "transactions"
	SourceCategories     = "categories"
	SourceRecurringRules = "recurring_rules"
	SourceSettings       = "settings"
)

// FetchError reports that a ledger read failed. No report is produced when
// any source fails; callers should offer a retry.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable is always true: the ledger may recover on the next attempt.
func (e *FetchError) Retryable() bool {
	return true
}

// IsFetchError reports whether err wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
