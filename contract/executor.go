package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Arbitrage executor contract interface.
const executorABIJson = `[
	{
		"type": "function",
		"name": "initiateFlashLoan",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "params", "type": "bytes"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "withdraw",
		"inputs": [{"name": "token", "type": "address"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "owner",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view"
	},
	{
		"type": "event",
		"name": "ProfitRealized",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "profit", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "error",
		"name": "Unauthorized",
		"inputs": []
	},
	{
		"type": "error",
		"name": "SlippageExceeded",
		"inputs": [
			{"name": "leg", "type": "uint256"},
			{"name": "amountOut", "type": "uint256"},
			{"name": "minOut", "type": "uint256"}
		]
	},
	{
		"type": "error",
		"name": "InsufficientRepayment",
		"inputs": [
			{"name": "balance", "type": "uint256"},
			{"name": "owed", "type": "uint256"}
		]
	}
]`

// ExecutorABI is the parsed executor interface.
var ExecutorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(executorABIJson))
	if err != nil {
		panic(fmt.Sprintf("failed to parse executor ABI: %v", err))
	}
	ExecutorABI = parsed
}

// PackInitiateFlashLoan builds the calldata of initiateFlashLoan(asset, amount, params).
func PackInitiateFlashLoan(asset common.Address, amount *big.Int, params []byte) ([]byte, error) {
	data, err := ExecutorABI.Pack("initiateFlashLoan", asset, amount, params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack initiateFlashLoan: %w", err)
	}
	return data, nil
}

// PackWithdraw builds the calldata of withdraw(token).
func PackWithdraw(token common.Address) ([]byte, error) {
	data, err := ExecutorABI.Pack("withdraw", token)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdraw: %w", err)
	}
	return data, nil
}

// Owner reads the owner of the executor at address.
func Owner(ctx context.Context, caller bind.ContractCaller, address common.Address) (common.Address, error) {
	contract := bind.NewBoundContract(address, ExecutorABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		return common.Address{}, fmt.Errorf("failed to read owner: %w", err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unexpected owner output length %d", len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse owner address")
	}
	return owner, nil
}

// ProfitRealized is the event emitted when a cycle completes.
type ProfitRealized struct {
	Asset  common.Address
	Profit *big.Int
}

// ProfitEventID is topic 0 of ProfitRealized logs.
func ProfitEventID() common.Hash {
	return ExecutorABI.Events["ProfitRealized"].ID
}

// ParseProfit finds the ProfitRealized event emitted by executor in logs.
func ParseProfit(logs []*types.Log, executor common.Address) (*ProfitRealized, bool) {
	event := ExecutorABI.Events["ProfitRealized"]
	for _, l := range logs {
		if l == nil || l.Address != executor || len(l.Topics) != 2 || l.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		profit, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		return &ProfitRealized{
			Asset:  common.BytesToAddress(l.Topics[1].Bytes()),
			Profit: profit,
		}, true
	}
	return nil, false
}

// ProfitLog builds the log a successful execution emits.
func ProfitLog(executor, asset common.Address, profit *big.Int) (*types.Log, error) {
	event := ExecutorABI.Events["ProfitRealized"]
	data, err := event.Inputs.NonIndexed().Pack(profit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack profit: %w", err)
	}
	return &types.Log{
		Address: executor,
		Topics:  []common.Hash{event.ID, common.BytesToHash(asset.Bytes())},
		Data:    data,
	}, nil
}
