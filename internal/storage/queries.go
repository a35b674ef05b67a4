package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL used by the repository, written once with '?'
// placeholders and rebound per dialect.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

// Category, Transaction and RecurringRule rows mirror the tables; amounts and
// dates travel as text so decimals stay exact.
type (
	Category struct {
		ID    string
		Name  string
		Color string
		Type  string
	}

	Transaction struct {
		ID         string
		Date       sql.NullString
		Amount     string
		Type       string
		CategoryID sql.NullString
	}

	RecurringRule struct {
		ID          string
		Description string
		Amount      string
		StartDate   string
		Frequency   string
		Type        string
		CategoryID  sql.NullString
		Active      bool
	}

	SnapshotRow struct {
		Horizon       int64
		Generation    int64
		RequestedAtNs int64
		ComputedAt    string
		Payload       string
	}
)

const listCategories = `
SELECT id, name, color, type FROM categories ORDER BY name, id
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Color, &i.Type); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertCategory = `
INSERT INTO categories (id, name, color, type) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, color = excluded.color, type = excluded.type
`

func (q *Queries) UpsertCategory(ctx context.Context, c Category) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(upsertCategory), c.ID, c.Name, c.Color, c.Type)
	return err
}

const listTransactionsSince = `
SELECT id, date, amount, type, category_id FROM transactions
WHERE date IS NULL OR date >= ?
ORDER BY date, id
`

func (q *Queries) ListTransactionsSince(ctx context.Context, since string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(listTransactionsSince), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(&i.ID, &i.Date, &i.Amount, &i.Type, &i.CategoryID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertTransaction = `
INSERT INTO transactions (id, date, amount, type, category_id) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET date = excluded.date, amount = excluded.amount,
    type = excluded.type, category_id = excluded.category_id
`

func (q *Queries) UpsertTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(upsertTransaction), t.ID, t.Date, t.Amount, t.Type, t.CategoryID)
	return err
}

const listRecurringRules = `
SELECT id, description, amount, start_date, frequency, type, category_id, active
FROM recurring_rules
WHERE active = ? OR ?
ORDER BY start_date, id
`

func (q *Queries) ListRecurringRules(ctx context.Context, activeOnly bool) ([]RecurringRule, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(listRecurringRules), true, !activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringRule
	for rows.Next() {
		var i RecurringRule
		if err := rows.Scan(&i.ID, &i.Description, &i.Amount, &i.StartDate, &i.Frequency, &i.Type, &i.CategoryID, &i.Active); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertRecurringRule = `
INSERT INTO recurring_rules (id, description, amount, start_date, frequency, type, category_id, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET description = excluded.description, amount = excluded.amount,
    start_date = excluded.start_date, frequency = excluded.frequency, type = excluded.type,
    category_id = excluded.category_id, active = excluded.active
`

func (q *Queries) UpsertRecurringRule(ctx context.Context, r RecurringRule) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(upsertRecurringRule),
		r.ID, r.Description, r.Amount, r.StartDate, r.Frequency, r.Type, r.CategoryID, r.Active)
	return err
}

const getSetting = `
SELECT value FROM settings WHERE key = ?
`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(getSetting), key).Scan(&value)
	return value, err
}

const setSetting = `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`

func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(setSetting), key, value)
	return err
}

// saveSnapshot only replaces an existing row when the incoming request is newer.
const saveSnapshot = `
INSERT INTO forecast_snapshots (horizon, generation, requested_at_ns, computed_at, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (horizon) DO UPDATE SET generation = excluded.generation,
    requested_at_ns = excluded.requested_at_ns, computed_at = excluded.computed_at,
    payload = excluded.payload
WHERE excluded.requested_at_ns > forecast_snapshots.requested_at_ns
`

func (q *Queries) SaveSnapshot(ctx context.Context, s SnapshotRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(saveSnapshot),
		s.Horizon, s.Generation, s.RequestedAtNs, s.ComputedAt, s.Payload)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSnapshot = `
SELECT horizon, generation, requested_at_ns, computed_at, payload
FROM forecast_snapshots WHERE horizon = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, horizon int64) (SnapshotRow, error) {
	var s SnapshotRow
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(getSnapshot), horizon).
		Scan(&s.Horizon, &s.Generation, &s.RequestedAtNs, &s.ComputedAt, &s.Payload)
	return s, err
}
