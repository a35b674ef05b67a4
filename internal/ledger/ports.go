// Package ledger defines the read ports the forecasting core consumes.
// Adapters live in subpackages (memory, google) and in internal/storage.
package ledger

import (
	"context"

	"fincast/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionReader interface {
		// ListTransactions returns every transaction dated on or after since.
		// Records without a date are returned as well so callers can count them.
		ListTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.CategoryRef, error)
	}

	RecurringRuleReader interface {
		ListRecurringRules(ctx context.Context, activeOnly bool) ([]core.RecurringRule, error)
	}

	SettingsReader interface {
		JurisdictionSettings(ctx context.Context) (core.JurisdictionSettings, error)
	}

	// CountingTransactionReader is implemented by adapters that drop rows
	// they cannot parse. skipped counts the rows dropped from this listing.
	CountingTransactionReader interface {
		ListTransactionsCounted(ctx context.Context, since core.Date) (txs []core.Transaction, skipped int, err error)
	}

	// Reader is the full set of ports a forecast refresh needs.
	Reader interface {
		TransactionReader
		CategoryReader
		RecurringRuleReader
		SettingsReader
	}
)

// DefaultSettings is used when a ledger carries no jurisdiction settings.
var DefaultSettings = core.JurisdictionSettings{CountryCode: "US", CurrencyCode: "USD"}

// ListTransactionsCounted lists transactions through r, reporting dropped
// rows when r can count them.
func ListTransactionsCounted(ctx context.Context, r TransactionReader, since core.Date) ([]core.Transaction, int, error) {
	if cr, ok := r.(CountingTransactionReader); ok {
		return cr.ListTransactionsCounted(ctx, since)
	}
	txs, err := r.ListTransactions(ctx, since)
	return txs, 0, err
}

// FilterSince keeps transactions dated on or after since, plus undated ones.
func FilterSince(txs []core.Transaction, since core.Date) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if !t.Date.IsZero() && !since.IsZero() && t.Date.Before(since.Time) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterActive drops inactive rules when activeOnly is set.
func FilterActive(rules []core.RecurringRule, activeOnly bool) []core.RecurringRule {
	if !activeOnly {
		return append([]core.RecurringRule(nil), rules...)
	}
	out := make([]core.RecurringRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
