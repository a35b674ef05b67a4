package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fincast/internal/core"
	ports "fincast/internal/ledger"

	"gopkg.in/yaml.v3"
)

// SeedFile is the ledger file NewFromFiles looks for in the data directory.
const SeedFile = "ledger.yaml"

// Ensure interface conformance
var (
	_ ports.Reader                    = (*Store)(nil)
	_ ports.CountingTransactionReader = (*Store)(nil)
)

type Store struct {
	mu         sync.Mutex
	settings   core.JurisdictionSettings
	categories []core.CategoryRef
	txs        []core.Transaction
	rules      []core.RecurringRule
	// skipped counts seed records dropped for malformed fields, skippedTxs
	// the transactions among them.
	skipped    int
	skippedTxs int
}

func New(settings core.JurisdictionSettings, categories []core.CategoryRef) *Store {
	if settings.CountryCode == "" {
		settings.CountryCode = ports.DefaultSettings.CountryCode
	}
	if settings.CurrencyCode == "" {
		settings.CurrencyCode = ports.DefaultSettings.CurrencyCode
	}
	return &Store{settings: settings, categories: dedupeCategories(categories)}
}

// NewFromFiles loads base/ledger.yaml. A missing file yields an empty ledger
// with default settings; a malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	path := filepath.Join(base, SeedFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("No ledger seed found, starting empty", "path", path)
		return New(ports.DefaultSettings, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if s.skipped > 0 {
		slog.Warn("Skipped malformed seed records", "path", path, "count", s.skipped)
	}
	return s, nil
}

// Parse builds a store from a YAML ledger document.
func Parse(data []byte) (*Store, error) {
	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	s := New(doc.Settings, doc.Categories)
	for _, raw := range doc.Transactions {
		tx, ok := raw.toTransaction()
		if !ok {
			s.skipped++
			s.skippedTxs++
			continue
		}
		s.txs = append(s.txs, tx)
	}
	for _, raw := range doc.RecurringRules {
		r, ok := raw.toRule()
		if !ok {
			s.skipped++
			continue
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// Skipped returns how many seed records were dropped while loading.
func (s *Store) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// AddTransaction appends a transaction to the ledger.
func (s *Store) AddTransaction(t core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, t)
}

func (s *Store) ListTransactions(_ context.Context, since core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.FilterSince(s.txs, since), nil
}

// ListTransactionsCounted also reports the seed transactions dropped while
// loading. Their dates are unknown, so every listing counts all of them.
func (s *Store) ListTransactionsCounted(ctx context.Context, since core.Date) ([]core.Transaction, int, error) {
	txs, err := s.ListTransactions(ctx, since)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return txs, s.skippedTxs, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.CategoryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CategoryRef(nil), s.categories...), nil
}

func (s *Store) ListRecurringRules(_ context.Context, activeOnly bool) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.FilterActive(s.rules, activeOnly), nil
}

func (s *Store) JurisdictionSettings(_ context.Context) (core.JurisdictionSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func dedupeCategories(in []core.CategoryRef) []core.CategoryRef {
	seen := map[string]struct{}{}
	out := make([]core.CategoryRef, 0, len(in))
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
