package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fincast/internal/core"
	ports "fincast/internal/ledger"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned when no snapshot was stored for a horizon.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot is a persisted forecast report for one horizon.
type Snapshot struct {
	Horizon     int
	Generation  uint64
	RequestedAt time.Time
	ComputedAt  time.Time
	Payload     []byte
}

// Ensure interface conformance
var (
	_ ports.Reader                    = (*Repository)(nil)
	_ ports.CountingTransactionReader = (*Repository)(nil)
)

// Repository is the SQL-backed ledger and snapshot store.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	queries *Queries
}

// NewSQLiteRepository opens (creating if needed) the database file at dbPath
// and applies migrations.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, dbPath)
}

// NewPostgresRepository connects to a hosted Postgres database and applies migrations.
func NewPostgresRepository(dsn string) (*Repository, error) {
	return open(Postgres, dsn)
}

func open(dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect, queries: New(db, dialect)}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListTransactions implements ledger.TransactionReader.
func (r *Repository) ListTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error) {
	txs, _, err := r.ListTransactionsCounted(ctx, since)
	return txs, err
}

// ListTransactionsCounted implements ledger.CountingTransactionReader. Rows
// with an unparseable amount or date are skipped, logged and counted.
func (r *Repository) ListTransactionsCounted(ctx context.Context, since core.Date) ([]core.Transaction, int, error) {
	sinceKey := "0001-01-01"
	if !since.IsZero() {
		sinceKey = since.String()
	}
	rows, err := r.queries.ListTransactionsSince(ctx, sinceKey)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		amount, err := core.ParseAmount(row.Amount)
		if err != nil {
			skipped++
			continue
		}
		var date core.Date
		if row.Date.Valid && row.Date.String != "" {
			if date, err = core.ParseDate(row.Date.String); err != nil {
				skipped++
				continue
			}
		}
		out = append(out, core.Transaction{
			ID:       row.ID,
			Date:     date,
			Amount:   amount,
			Type:     core.TransactionType(row.Type),
			Category: core.LinkByID(row.CategoryID.String),
		})
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped malformed transaction rows", "count", skipped)
	}
	return out, skipped, nil
}

// ListCategories implements ledger.CategoryReader.
func (r *Repository) ListCategories(ctx context.Context) ([]core.CategoryRef, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.CategoryRef, len(rows))
	for i, c := range rows {
		out[i] = core.CategoryRef{ID: c.ID, Name: c.Name, Color: c.Color, Type: core.TransactionType(c.Type)}
	}
	return out, nil
}

// ListRecurringRules implements ledger.RecurringRuleReader.
func (r *Repository) ListRecurringRules(ctx context.Context, activeOnly bool) ([]core.RecurringRule, error) {
	rows, err := r.queries.ListRecurringRules(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	out := make([]core.RecurringRule, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		amount, err := core.ParseAmount(row.Amount)
		if err != nil {
			skipped++
			continue
		}
		start, err := core.ParseDate(row.StartDate)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, core.RecurringRule{
			ID:          row.ID,
			Description: row.Description,
			Amount:      amount,
			StartDate:   start,
			Frequency:   core.Frequency(row.Frequency),
			Type:        core.TransactionType(row.Type),
			Category:    core.LinkByID(row.CategoryID.String),
			Active:      row.Active,
		})
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped malformed recurring rule rows", "count", skipped)
	}
	return out, nil
}

// JurisdictionSettings implements ledger.SettingsReader. Missing keys fall
// back to the default settings.
func (r *Repository) JurisdictionSettings(ctx context.Context) (core.JurisdictionSettings, error) {
	s := ports.DefaultSettings
	for key, dst := range map[string]*string{"country_code": &s.CountryCode, "currency_code": &s.CurrencyCode} {
		v, err := r.queries.GetSetting(ctx, key)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return core.JurisdictionSettings{}, fmt.Errorf("get setting %s: %w", key, err)
		}
		if v != "" {
			*dst = v
		}
	}
	return s, nil
}

// SaveCategory inserts or updates a category.
func (r *Repository) SaveCategory(ctx context.Context, c core.CategoryRef) error {
	err := r.queries.UpsertCategory(ctx, Category{ID: c.ID, Name: c.Name, Color: c.Color, Type: string(c.Type)})
	if err != nil {
		return fmt.Errorf("save category %s: %w", c.ID, err)
	}
	return nil
}

// SaveTransaction inserts or updates a transaction.
func (r *Repository) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if t.ID == "" {
		return fmt.Errorf("save transaction: %w", core.ErrEmptyIdentifier)
	}
	row := Transaction{
		ID:         t.ID,
		Date:       nullString(t.Date.String()),
		Amount:     t.Amount.String(),
		Type:       string(t.Type),
		CategoryID: nullString(categoryID(t.Category)),
	}
	if err := r.queries.UpsertTransaction(ctx, row); err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

// SaveRecurringRule inserts or updates a recurring rule.
func (r *Repository) SaveRecurringRule(ctx context.Context, rule core.RecurringRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("save recurring rule: %w", err)
	}
	row := RecurringRule{
		ID:          rule.ID,
		Description: rule.Description,
		Amount:      rule.Amount.String(),
		StartDate:   rule.StartDate.String(),
		Frequency:   string(rule.Frequency),
		Type:        string(rule.Type),
		CategoryID:  nullString(categoryID(rule.Category)),
		Active:      rule.Active,
	}
	if err := r.queries.UpsertRecurringRule(ctx, row); err != nil {
		return fmt.Errorf("save recurring rule %s: %w", rule.ID, err)
	}
	return nil
}

// SaveSettings stores the jurisdiction settings.
func (r *Repository) SaveSettings(ctx context.Context, s core.JurisdictionSettings) error {
	if err := r.queries.SetSetting(ctx, "country_code", s.CountryCode); err != nil {
		return fmt.Errorf("save country code: %w", err)
	}
	if err := r.queries.SetSetting(ctx, "currency_code", s.CurrencyCode); err != nil {
		return fmt.Errorf("save currency code: %w", err)
	}
	return nil
}

// SaveSnapshot stores a snapshot unless a newer request already wrote one for
// the same horizon. It reports whether the row was written.
func (r *Repository) SaveSnapshot(ctx context.Context, s Snapshot) (bool, error) {
	n, err := r.queries.SaveSnapshot(ctx, SnapshotRow{
		Horizon:       int64(s.Horizon),
		Generation:    int64(s.Generation),
		RequestedAtNs: s.RequestedAt.UnixNano(),
		ComputedAt:    s.ComputedAt.UTC().Format(time.RFC3339Nano),
		Payload:       string(s.Payload),
	})
	if err != nil {
		return false, fmt.Errorf("save snapshot for horizon %d: %w", s.Horizon, err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "Discarded stale forecast snapshot",
			"horizon", s.Horizon,
			"generation", s.Generation,
			"requested_at", s.RequestedAt)
	}
	return n > 0, nil
}

// LatestSnapshot returns the stored snapshot for a horizon, or ErrNoSnapshot.
func (r *Repository) LatestSnapshot(ctx context.Context, horizon int) (Snapshot, error) {
	row, err := r.queries.GetSnapshot(ctx, int64(horizon))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("horizon %d: %w", horizon, ErrNoSnapshot)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot for horizon %d: %w", horizon, err)
	}
	computed, err := time.Parse(time.RFC3339Nano, row.ComputedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse computed_at %q: %w", row.ComputedAt, err)
	}
	return Snapshot{
		Horizon:     int(row.Horizon),
		Generation:  uint64(row.Generation),
		RequestedAt: time.Unix(0, row.RequestedAtNs).UTC(),
		ComputedAt:  computed,
		Payload:     []byte(row.Payload),
	}, nil
}

// Import copies an entire ledger into the database inside one transaction.
func (r *Repository) Import(ctx context.Context, src ports.Reader) (int, error) {
	cats, err := src.ListCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("read categories: %w", err)
	}
	txs, err := src.ListTransactions(ctx, core.Date{})
	if err != nil {
		return 0, fmt.Errorf("read transactions: %w", err)
	}
	rules, err := src.ListRecurringRules(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("read recurring rules: %w", err)
	}
	settings, err := src.JurisdictionSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("read settings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	scoped := &Repository{db: r.db, dialect: r.dialect, queries: r.queries.WithTx(tx)}
	count := 0
	for _, c := range cats {
		if err := scoped.SaveCategory(ctx, c); err != nil {
			return 0, err
		}
		count++
	}
	for _, t := range txs {
		// Inline categories only exist on the transaction; keep them resolvable.
		if ref := t.Category.Ref; ref != nil && ref.ID != "" {
			if err := scoped.SaveCategory(ctx, *ref); err != nil {
				return 0, err
			}
		}
		if err := scoped.SaveTransaction(ctx, t); err != nil {
			return 0, err
		}
		count++
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			slog.WarnContext(ctx, "Skipping invalid recurring rule on import", "id", rule.ID, "error", err)
			continue
		}
		if err := scoped.SaveRecurringRule(ctx, rule); err != nil {
			return 0, err
		}
		count++
	}
	if err := scoped.SaveSettings(ctx, settings); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	slog.InfoContext(ctx, "Ledger imported", "records", count, "dialect", r.dialect)
	return count, nil
}

func categoryID(l core.CategoryLink) string {
	if l.Ref != nil {
		return l.Ref.ID
	}
	return l.ID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
