package testutils

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/types"
)

// ExecutorAddress is a stand-in executor deployment used across tests.
var ExecutorAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// NewKey generates a fresh secp256k1 key.
func NewKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// SignedTx signs a legacy executor call for chain 1.
func SignedTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, gasPrice int64) *gethtypes.Transaction {
	t.Helper()
	to := ExecutorAddress
	tx, err := gethtypes.SignTx(gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      400_000,
		GasPrice: big.NewInt(gasPrice),
		Data:     []byte{0xde, 0xad},
	}), gethtypes.NewEIP155Signer(big.NewInt(1)), key)
	require.NoError(t, err)
	return tx
}

// MemoryLog is an in-memory audit log.
type MemoryLog struct {
	mu      sync.Mutex
	entries []*types.ExecutionResult
}

func (m *MemoryLog) Append(ctx context.Context, r *types.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, r)
	return nil
}

// List returns up to limit entries, newest first.
func (m *MemoryLog) List(ctx context.Context, limit int) ([]*types.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.ExecutionResult
	for i := len(m.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryLog) Close() error { return nil }

// Entries returns every appended result in append order.
func (m *MemoryLog) Entries() []*types.ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.ExecutionResult(nil), m.entries...)
}
