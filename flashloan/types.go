package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

// LegParams is one swap as the executor contract receives it.
type LegParams struct {
	Pool     common.Address
	TokenIn  common.Address
	TokenOut common.Address
	MinOut   *big.Int
}

var legArgs abi.Arguments

func init() {
	addresses, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	amounts, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	legArgs = abi.Arguments{
		{Name: "pools", Type: addresses},
		{Name: "tokensIn", Type: addresses},
		{Name: "tokensOut", Type: addresses},
		{Name: "minOuts", Type: amounts},
	}
}

// LegsFromCycle converts a cycle to the contract's leg list.
func LegsFromCycle(cycle *types.ArbitrageCycle) []LegParams {
	legs := make([]LegParams, len(cycle.Legs))
	for i, leg := range cycle.Legs {
		minOut := new(big.Int)
		if leg.MinOut != nil {
			minOut.Set(leg.MinOut)
		}
		legs[i] = LegParams{
			Pool:     leg.Pair.Pool,
			TokenIn:  leg.TokenIn,
			TokenOut: leg.TokenOut,
			MinOut:   minOut,
		}
	}
	return legs
}

// EncodeParams ABI-encodes legs as the callback data of a flash loan:
// (address[] pools, address[] tokensIn, address[] tokensOut, uint256[] minOuts).
func EncodeParams(legs []LegParams) ([]byte, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("no legs to encode")
	}
	pools := make([]common.Address, len(legs))
	ins := make([]common.Address, len(legs))
	outs := make([]common.Address, len(legs))
	mins := make([]*big.Int, len(legs))
	for i, l := range legs {
		if l.MinOut == nil || l.MinOut.Sign() < 0 {
			return nil, fmt.Errorf("leg %d has an invalid minimum output", i)
		}
		pools[i], ins[i], outs[i], mins[i] = l.Pool, l.TokenIn, l.TokenOut, l.MinOut
	}
	data, err := legArgs.Pack(pools, ins, outs, mins)
	if err != nil {
		return nil, fmt.Errorf("failed to pack legs: %w", err)
	}
	return data, nil
}

// DecodeParams reverses EncodeParams.
func DecodeParams(data []byte) ([]LegParams, error) {
	values, err := legArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack legs: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected number of leg fields %d", len(values))
	}
	pools, ok1 := values[0].([]common.Address)
	ins, ok2 := values[1].([]common.Address)
	outs, ok3 := values[2].([]common.Address)
	mins, ok4 := values[3].([]*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("malformed leg fields")
	}
	if len(ins) != len(pools) || len(outs) != len(pools) || len(mins) != len(pools) {
		return nil, fmt.Errorf("leg field lengths differ")
	}
	legs := make([]LegParams, len(pools))
	for i := range pools {
		legs[i] = LegParams{Pool: pools[i], TokenIn: ins[i], TokenOut: outs[i], MinOut: mins[i]}
	}
	return legs, nil
}
