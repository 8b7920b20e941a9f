// Package postgres stores the audit log in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/michaelpento.lv/flasharb/audit"
	"github.com/michaelpento.lv/flasharb/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id             BIGSERIAL PRIMARY KEY,
	opportunity_id TEXT        NOT NULL,
	cycle          TEXT        NOT NULL,
	cycle_key      TEXT        NOT NULL,
	loan_asset     TEXT        NOT NULL,
	loan_amount    NUMERIC     NOT NULL,
	tx_hash        TEXT        NOT NULL DEFAULT '',
	success        BOOLEAN     NOT NULL,
	profit         NUMERIC     NOT NULL,
	failure_reason TEXT        NOT NULL DEFAULT '',
	attempts       INTEGER     NOT NULL,
	gas_price      NUMERIC     NOT NULL,
	ts             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions (ts DESC);
`

type Log struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn, pings it and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*Log, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	l := &Log{pool: pool}
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

func (l *Log) Append(ctx context.Context, result *types.ExecutionResult) error {
	e := audit.NewEntry(result)
	_, err := l.pool.Exec(ctx, `
		INSERT INTO executions (opportunity_id, cycle, cycle_key, loan_asset, loan_amount,
			tx_hash, success, profit, failure_reason, attempts, gas_price, ts)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8::text::numeric, $9, $10, $11::text::numeric, $12)`,
		e.OpportunityID, e.Cycle, e.CycleKey, e.LoanAsset, e.LoanAmount,
		e.TxHash, e.Success, e.Profit, e.FailureReason, e.Attempts, e.GasPrice, e.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: append %s: %w", e.OpportunityID, err)
	}
	return nil
}

func (l *Log) List(ctx context.Context, limit int) ([]*types.ExecutionResult, error) {
	query := `
		SELECT opportunity_id, cycle, cycle_key, loan_asset, loan_amount::text,
			tx_hash, success, profit::text, failure_reason, attempts, gas_price::text, ts
		FROM executions ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var results []*types.ExecutionResult
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.OpportunityID, &e.Cycle, &e.CycleKey, &e.LoanAsset, &e.LoanAmount,
			&e.TxHash, &e.Success, &e.Profit, &e.FailureReason, &e.Attempts, &e.GasPrice, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		r, err := e.Result()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (l *Log) Close() error {
	l.pool.Close()
	return nil
}

var _ audit.Log = (*Log)(nil)
