package audit

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []*types.ExecutionResult {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*types.ExecutionResult{
		{
			OpportunityID: "a",
			Cycle:         "WETH -[uniswap]-> USDC -[sushiswap]-> WETH",
			CycleKey:      0xfedcba9876543210,
			LoanAsset:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			LoanAmount:    new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil),
			TxHash:        common.HexToHash("0xabc"),
			Success:       true,
			Profit:        big.NewInt(16),
			Attempts:      1,
			GasPrice:      big.NewInt(30_000_000_000),
			Timestamp:     ts,
		},
		{
			OpportunityID: "b",
			Cycle:         "WETH -[sushiswap]-> USDC -[uniswap]-> WETH",
			CycleKey:      7,
			LoanAsset:     common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			LoanAmount:    big.NewInt(1000),
			FailureReason: "DispatchTimeout",
			Attempts:      2,
			GasPrice:      big.NewInt(33),
			Timestamp:     ts.Add(time.Minute),
		},
	}
}

func TestJSONL(t *testing.T) {
	results := sampleResults()

	data, err := EncodeJSONL(results)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"loan_amount":"10000000000000000000000"`)
	assert.Contains(t, lines[0], `"cycle_key":"fedcba9876543210"`)
	assert.NotContains(t, lines[1], "tx_hash")

	decoded, err := DecodeJSONL(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, results[0].LoanAmount, decoded[0].LoanAmount)
	assert.Equal(t, results[0].CycleKey, decoded[0].CycleKey)
	assert.Equal(t, results[0].TxHash, decoded[0].TxHash)
	assert.Equal(t, int64(0), decoded[1].Profit.Int64())
	assert.Equal(t, "DispatchTimeout", decoded[1].FailureReason)
	assert.True(t, results[1].Timestamp.Equal(decoded[1].Timestamp))
}

func TestDecodeJSONLErrors(t *testing.T) {
	_, err := DecodeJSONL([]byte("{not json}\n"))
	assert.Error(t, err)

	_, err = DecodeJSONL([]byte(`{"cycle_key":"zz","loan_amount":"1","profit":"0","gas_price":"1"}` + "\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cycle key")
}
