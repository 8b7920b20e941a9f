// Package sqlite stores the audit log in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/michaelpento.lv/flasharb/audit"
	"github.com/michaelpento.lv/flasharb/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	opportunity_id TEXT    NOT NULL,
	cycle          TEXT    NOT NULL,
	cycle_key      TEXT    NOT NULL,
	loan_asset     TEXT    NOT NULL,
	loan_amount    TEXT    NOT NULL,
	tx_hash        TEXT    NOT NULL DEFAULT '',
	success        INTEGER NOT NULL,
	profit         TEXT    NOT NULL,
	failure_reason TEXT    NOT NULL DEFAULT '',
	attempts       INTEGER NOT NULL,
	gas_price      TEXT    NOT NULL,
	ts             INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions(ts);
`

type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Append(ctx context.Context, result *types.ExecutionResult) error {
	e := audit.NewEntry(result)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (opportunity_id, cycle, cycle_key, loan_asset, loan_amount,
			tx_hash, success, profit, failure_reason, attempts, gas_price, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OpportunityID, e.Cycle, e.CycleKey, e.LoanAsset, e.LoanAmount,
		e.TxHash, e.Success, e.Profit, e.FailureReason, e.Attempts, e.GasPrice, e.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: append %s: %w", e.OpportunityID, err)
	}
	return nil
}

func (l *Log) List(ctx context.Context, limit int) ([]*types.ExecutionResult, error) {
	query := `
		SELECT opportunity_id, cycle, cycle_key, loan_asset, loan_amount,
			tx_hash, success, profit, failure_reason, attempts, gas_price, ts
		FROM executions ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var results []*types.ExecutionResult
	for rows.Next() {
		var (
			e  audit.Entry
			ts int64
		)
		if err := rows.Scan(&e.OpportunityID, &e.Cycle, &e.CycleKey, &e.LoanAsset, &e.LoanAmount,
			&e.TxHash, &e.Success, &e.Profit, &e.FailureReason, &e.Attempts, &e.GasPrice, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		r, err := e.Result()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (l *Log) Close() error {
	return l.db.Close()
}

var _ audit.Log = (*Log)(nil)
