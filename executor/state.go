package executor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// Pool is a constant-product pool holding two reserves.
type Pool struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint32
}

func (p Pool) clone() Pool {
	p.Reserve0 = fpmath.Clone(p.Reserve0)
	p.Reserve1 = fpmath.Clone(p.Reserve1)
	return p
}

// State is the slice of chain state an execution touches: token balances per
// holder and pool reserves. Operations never mutate a State they are given.
type State struct {
	balances map[common.Address]map[common.Address]*big.Int
	pools    map[common.Address]Pool
}

func NewState() *State {
	return &State{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		pools:    make(map[common.Address]Pool),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := NewState()
	for token, holders := range s.balances {
		m := make(map[common.Address]*big.Int, len(holders))
		for h, v := range holders {
			m[h] = new(big.Int).Set(v)
		}
		out.balances[token] = m
	}
	for addr, p := range s.pools {
		out.pools[addr] = p.clone()
	}
	return out
}

// BalanceOf returns a copy of holder's balance of token.
func (s *State) BalanceOf(token, holder common.Address) *big.Int {
	if v, ok := s.balances[token][holder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// WithBalance returns a copy of s where holder owns amount of token.
func (s *State) WithBalance(token, holder common.Address, amount *big.Int) *State {
	out := s.Clone()
	out.setBalance(token, holder, new(big.Int).Set(amount))
	return out
}

// WithPool returns a copy of s containing p.
func (s *State) WithPool(p Pool) *State {
	out := s.Clone()
	out.pools[p.Address] = p.clone()
	return out
}

// Pool returns a copy of the pool at address.
func (s *State) Pool(address common.Address) (Pool, bool) {
	p, ok := s.pools[address]
	if !ok {
		return Pool{}, false
	}
	return p.clone(), true
}

func (s *State) setBalance(token, holder common.Address, amount *big.Int) {
	holders, ok := s.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		s.balances[token] = holders
	}
	holders[holder] = amount
}

func (s *State) transfer(token, from, to common.Address, amount *big.Int) error {
	bal := s.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return revert("TransferFailed")
	}
	s.setBalance(token, from, bal.Sub(bal, amount))
	s.setBalance(token, to, new(big.Int).Add(s.BalanceOf(token, to), amount))
	return nil
}

// swap moves amountIn of tokenIn from trader into the pool and pays the
// constant-product output back to trader.
func (s *State) swap(poolAddr, trader, tokenIn common.Address, amountIn *big.Int) (*big.Int, common.Address, error) {
	p, ok := s.pools[poolAddr]
	if !ok {
		return nil, common.Address{}, revert(fmt.Sprintf("UnknownPool(%s)", poolAddr.Hex()))
	}

	var reserveIn, reserveOut *big.Int
	var tokenOut common.Address
	switch tokenIn {
	case p.Token0:
		reserveIn, reserveOut, tokenOut = p.Reserve0, p.Reserve1, p.Token1
	case p.Token1:
		reserveIn, reserveOut, tokenOut = p.Reserve1, p.Reserve0, p.Token0
	default:
		return nil, common.Address{}, revert("InvalidToken")
	}

	out := fpmath.GetAmountOut(amountIn, reserveIn, reserveOut, p.FeeBps)
	if out.Sign() == 0 {
		return nil, common.Address{}, revert("InsufficientOutputAmount")
	}
	bal := s.BalanceOf(tokenIn, trader)
	if bal.Cmp(amountIn) < 0 {
		return nil, common.Address{}, revert("TransferFailed")
	}
	s.setBalance(tokenIn, trader, bal.Sub(bal, amountIn))
	s.setBalance(tokenOut, trader, new(big.Int).Add(s.BalanceOf(tokenOut, trader), out))

	reserveIn = new(big.Int).Add(reserveIn, amountIn)
	reserveOut = new(big.Int).Sub(reserveOut, out)
	if tokenIn == p.Token0 {
		p.Reserve0, p.Reserve1 = reserveIn, reserveOut
	} else {
		p.Reserve1, p.Reserve0 = reserveIn, reserveOut
	}
	s.pools[poolAddr] = p
	return out, tokenOut, nil
}
