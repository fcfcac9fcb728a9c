package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// EntryRow is one row of the entries table.
type EntryRow struct {
	ID          int64
	Kind        string
	Amount      string
	Date        sql.NullString
	Category    sql.NullString
	Description sql.NullString
	Frequency   sql.NullString
	Month       sql.NullInt64
	Year        sql.NullInt64
}

type CreateEntryParams struct {
	Kind        string
	Amount      string
	Date        sql.NullString
	Category    sql.NullString
	Description sql.NullString
	Frequency   sql.NullString
	Month       sql.NullInt64
	Year        sql.NullInt64
}

const createEntry = `
INSERT INTO entries (kind, amount, date, category, description, frequency, month, year)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createEntry,
		arg.Kind,
		arg.Amount,
		arg.Date,
		arg.Category,
		arg.Description,
		arg.Frequency,
		arg.Month,
		arg.Year,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listEntries = `
SELECT id, kind, amount, date, category, description, frequency, month, year
FROM entries
ORDER BY id
`

func (q *Queries) ListEntries(ctx context.Context) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntryRow
	for rows.Next() {
		var i EntryRow
		if err := rows.Scan(
			&i.ID,
			&i.Kind,
			&i.Amount,
			&i.Date,
			&i.Category,
			&i.Description,
			&i.Frequency,
			&i.Month,
			&i.Year,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countEntries = `SELECT COUNT(*) FROM entries`

func (q *Queries) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countEntries).Scan(&n)
	return n, err
}
