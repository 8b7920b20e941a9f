package contract

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	executor = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// dataError mimics the JSON-RPC error returned for a reverted call.
type dataError struct {
	msg  string
	data interface{}
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorData() interface{} { return e.data }

func TestPackCalls(t *testing.T) {
	data, err := PackInitiateFlashLoan(weth, big.NewInt(1000), []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data[:4], ExecutorABI.Methods["initiateFlashLoan"].ID))

	args, err := ExecutorABI.Methods["initiateFlashLoan"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, weth, args[0])
	assert.Equal(t, int64(1000), args[1].(*big.Int).Int64())
	assert.Equal(t, []byte{0xde, 0xad}, args[2])

	data, err = PackWithdraw(weth)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data[:4], ExecutorABI.Methods["withdraw"].ID))
}

func TestParseProfit(t *testing.T) {
	l, err := ProfitLog(executor, weth, big.NewInt(16))
	require.NoError(t, err)

	other := &types.Log{Address: common.HexToAddress("0x01"), Topics: []common.Hash{{}}}
	ev, ok := ParseProfit([]*types.Log{other, l}, executor)
	require.True(t, ok)
	assert.Equal(t, weth, ev.Asset)
	assert.Equal(t, int64(16), ev.Profit.Int64())

	_, ok = ParseProfit([]*types.Log{l}, common.HexToAddress("0x02"))
	assert.False(t, ok)
}

func TestDecodeRevert(t *testing.T) {
	slippage, err := PackError("SlippageExceeded", big.NewInt(1), big.NewInt(990), big.NewInt(995))
	require.NoError(t, err)
	unauthorized, err := PackError("Unauthorized")
	require.NoError(t, err)
	repay, err := PackError("InsufficientRepayment", big.NewInt(1005), big.NewInt(1009))
	require.NoError(t, err)

	errorString := func(msg string) []byte {
		strType, _ := abi.NewType("string", "", nil)
		packed, _ := abi.Arguments{{Type: strType}}.Pack(msg)
		return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"custom slippage", slippage, "SlippageExceeded"},
		{"custom unauthorized", unauthorized, "Unauthorized"},
		{"custom repayment", repay, "InsufficientRepayment"},
		{"owner require", errorString("Caller is not the owner"), "Unauthorized"},
		{"other require", errorString("TRANSFER_FAILED"), "TRANSFER_FAILED"},
		{"empty", nil, "reverted without reason"},
		{"unknown selector", []byte{1, 2, 3, 4}, "unknown revert 0x01020304"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeRevert(tt.data))
		})
	}
}

func TestRevertReason(t *testing.T) {
	repay, err := PackError("InsufficientRepayment", big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)

	reason, ok := RevertReason(fmt.Errorf("call failed: %w", &dataError{msg: "execution reverted", data: hexutil.Encode(repay)}))
	require.True(t, ok)
	assert.Equal(t, "InsufficientRepayment", reason)

	reason, ok = RevertReason(errors.New("execution reverted: Caller is not the owner"))
	require.True(t, ok)
	assert.Equal(t, "Unauthorized", reason)

	reason, ok = RevertReason(errors.New("execution reverted"))
	require.True(t, ok)
	assert.Equal(t, "reverted without reason", reason)

	_, ok = RevertReason(errors.New("connection refused"))
	assert.False(t, ok)
}

func TestBundleRevertReason(t *testing.T) {
	slippage, err := PackError("SlippageExceeded", big.NewInt(1), big.NewInt(1020), big.NewInt(1024))
	require.NoError(t, err)

	tests := []struct {
		name   string
		errMsg string
		revert string
		want   string
	}{
		{"HexCustomError", "execution reverted", hexutil.Encode(slippage), "SlippageExceeded"},
		{"DecodedMessage", "execution reverted", "Ownable: caller is not the owner", "Unauthorized"},
		{"MessageInError", "execution reverted: UniswapV2: K", "", "UniswapV2: K"},
		{"NoReason", "execution reverted", "", "reverted without reason"},
		{"OtherFailure", "out of gas", "", "out of gas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BundleRevertReason(tt.errMsg, tt.revert))
		})
	}
}
