// Package audit records the terminal outcome of every dispatch.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/sugawarayuuta/sonnet"
)

// Log is an append-only record of execution results. Entries are never
// updated or deleted.
type Log interface {
	Append(ctx context.Context, result *types.ExecutionResult) error
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*types.ExecutionResult, error)
	Close() error
}

// Entry is the storage form of an ExecutionResult. Amounts are decimal
// strings and the cycle key is fixed-width hex so both survive any backend.
type Entry struct {
	OpportunityID string    `json:"opportunity_id"`
	Cycle         string    `json:"cycle"`
	CycleKey      string    `json:"cycle_key"`
	LoanAsset     string    `json:"loan_asset"`
	LoanAmount    string    `json:"loan_amount"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Success       bool      `json:"success"`
	Profit        string    `json:"profit"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Attempts      int       `json:"attempts"`
	GasPrice      string    `json:"gas_price"`
	Timestamp     time.Time `json:"timestamp"`
}

func decimal(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func NewEntry(r *types.ExecutionResult) Entry {
	e := Entry{
		OpportunityID: r.OpportunityID,
		Cycle:         r.Cycle,
		CycleKey:      fmt.Sprintf("%016x", r.CycleKey),
		LoanAsset:     r.LoanAsset.Hex(),
		LoanAmount:    decimal(r.LoanAmount),
		Success:       r.Success,
		Profit:        decimal(r.Profit),
		FailureReason: r.FailureReason,
		Attempts:      r.Attempts,
		GasPrice:      decimal(r.GasPrice),
		Timestamp:     r.Timestamp.UTC(),
	}
	if r.TxHash != (common.Hash{}) {
		e.TxHash = r.TxHash.Hex()
	}
	return e
}

// Result converts the entry back into an ExecutionResult.
func (e Entry) Result() (*types.ExecutionResult, error) {
	key, err := strconv.ParseUint(e.CycleKey, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle key %q: %w", e.CycleKey, err)
	}
	amounts := make([]*big.Int, 3)
	for i, s := range []string{e.LoanAmount, e.Profit, e.GasPrice} {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		amounts[i] = v
	}

	r := &types.ExecutionResult{
		OpportunityID: e.OpportunityID,
		Cycle:         e.Cycle,
		CycleKey:      key,
		LoanAsset:     common.HexToAddress(e.LoanAsset),
		LoanAmount:    amounts[0],
		Success:       e.Success,
		Profit:        amounts[1],
		FailureReason: e.FailureReason,
		Attempts:      e.Attempts,
		GasPrice:      amounts[2],
		Timestamp:     e.Timestamp,
	}
	if e.TxHash != "" {
		r.TxHash = common.HexToHash(e.TxHash)
	}
	return r, nil
}

// EncodeJSONL renders results one JSON object per line.
func EncodeJSONL(results []*types.ExecutionResult) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range results {
		line, err := sonnet.Marshal(NewEntry(r))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", r.OpportunityID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeJSONL is the inverse of EncodeJSONL.
func DecodeJSONL(data []byte) ([]*types.ExecutionResult, error) {
	var results []*types.ExecutionResult
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := sonnet.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		r, err := e.Result()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		results = append(results, r)
	}
	return results, nil
}
