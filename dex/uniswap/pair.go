package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/flasharb/dex"
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// PairABI is the parsed subset of the V2 pair interface the feed reads.
var PairABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		panic(fmt.Sprintf("failed to parse pair ABI: %v", err))
	}
	PairABI = parsed
}

// Pair reads a V2 pair contract.
type Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewPair binds the pair at address for reading.
func NewPair(address common.Address, caller bind.ContractCaller) *Pair {
	return &Pair{
		contract: bind.NewBoundContract(address, PairABI, caller, nil, nil),
		address:  address,
	}
}

// GetReserves returns the current reserves of the pair
func (p *Pair) GetReserves(ctx context.Context) (*dex.Reserves, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("unexpected getReserves output length %d", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve1")
	}
	ts, _ := out[2].(uint32)

	return &dex.Reserves{Reserve0: reserve0, Reserve1: reserve1, BlockTimestampLast: ts}, nil
}

// Token0 returns the address of token0
func (p *Pair) Token0(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "token0"); err != nil {
		return common.Address{}, fmt.Errorf("failed to get token0: %w", err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unexpected token0 output length %d", len(out))
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse token0 address")
	}
	return addr, nil
}

// SortTokens orders two tokens the way V2 factories do.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives the CREATE2 address of the a/b pair of a V2 factory.
func PairAddress(factory common.Address, initCodeHash []byte, a, b common.Address) common.Address {
	token0, token1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash)
}
