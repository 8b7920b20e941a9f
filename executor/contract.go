package executor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// Phase is a step of one flash-loan execution.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoanReceived
	PhaseLegsExecuting
	PhaseRepaying
	PhaseSucceeded
	PhaseReverted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseLoanReceived:
		return "LoanReceived"
	case PhaseLegsExecuting:
		return "LegsExecuting"
	case PhaseRepaying:
		return "Repaying"
	case PhaseSucceeded:
		return "Succeeded"
	case PhaseReverted:
		return "Reverted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Trace lists the phases an execution went through.
type Trace []Phase

// Last returns the final phase.
func (t Trace) Last() Phase {
	if len(t) == 0 {
		return PhaseIdle
	}
	return t[len(t)-1]
}

// RevertError aborts a whole execution. It matches the taxonomy sentinels
// through errors.Is.
type RevertError struct {
	Reason string
}

func revert(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return types.ErrorForReason(e.Reason)
}

// ProfitEvent mirrors the ProfitRealized log.
type ProfitEvent struct {
	Asset  common.Address
	Profit *big.Int
}

// LendingPool lends to the executor and pulls principal plus premium back
// after the callback returns.
type LendingPool struct {
	Address common.Address
	FeeBps  uint32
}

// Premium returns the fee charged on amount.
func (l LendingPool) Premium(amount *big.Int) *big.Int {
	return fpmath.BpsCeil(amount, l.FeeBps)
}

// Contract is the arbitrage executor: only Owner may start a flash loan or
// withdraw, and only Provider may call it back.
type Contract struct {
	Address  common.Address
	Owner    common.Address
	Provider LendingPool
}

// InitiateFlashLoan borrows amount of asset from the provider and runs the legs
// encoded in params inside the provider's callback. On error st is returned
// untouched along with a trace ending in PhaseReverted.
func (c *Contract) InitiateFlashLoan(st *State, caller, asset common.Address, amount *big.Int, params []byte) (*State, *ProfitEvent, Trace, error) {
	trace := Trace{PhaseIdle}
	if caller != c.Owner {
		return st, nil, append(trace, PhaseReverted), revert("Unauthorized")
	}
	if amount == nil || amount.Sign() <= 0 {
		return st, nil, append(trace, PhaseReverted), revert("InvalidAmount")
	}

	next := st.Clone()
	ev, err := c.flashLoan(next, caller, asset, amount, params, &trace)
	if err != nil {
		return st, nil, append(trace, PhaseReverted), err
	}
	return next, ev, append(trace, PhaseSucceeded), nil
}

// flashLoan is the provider side: lend, call back, collect.
func (c *Contract) flashLoan(st *State, initiator, asset common.Address, amount *big.Int, params []byte, trace *Trace) (*ProfitEvent, error) {
	if err := st.transfer(asset, c.Provider.Address, c.Address, amount); err != nil {
		return nil, revert("InsufficientLiquidity")
	}
	premium := c.Provider.Premium(amount)

	ev, err := c.executeOperation(st, c.Provider.Address, asset, amount, premium, initiator, params, trace)
	if err != nil {
		return nil, err
	}

	owed := new(big.Int).Add(amount, premium)
	if err := st.transfer(asset, c.Address, c.Provider.Address, owed); err != nil {
		return nil, revert("InsufficientRepayment")
	}
	return ev, nil
}

// ExecuteOperation is the provider callback. Calling it directly exercises the
// caller and initiator guards.
func (c *Contract) ExecuteOperation(st *State, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (*State, *ProfitEvent, Trace, error) {
	trace := Trace{PhaseIdle}
	next := st.Clone()
	ev, err := c.executeOperation(next, caller, asset, amount, premium, initiator, params, &trace)
	if err != nil {
		return st, nil, append(trace, PhaseReverted), err
	}
	return next, ev, append(trace, PhaseSucceeded), nil
}

func (c *Contract) executeOperation(st *State, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte, trace *Trace) (*ProfitEvent, error) {
	if caller != c.Provider.Address || initiator != c.Owner {
		return nil, revert("Unauthorized")
	}
	*trace = append(*trace, PhaseLoanReceived)

	// Balance held before the principal arrived stays in the executor.
	opening := new(big.Int).Sub(st.BalanceOf(asset, c.Address), amount)
	if opening.Sign() < 0 {
		opening.SetInt64(0)
	}

	legs, err := flashloan.DecodeParams(params)
	if err != nil {
		return nil, revert("InvalidParams")
	}
	if len(legs) == 0 || legs[0].TokenIn != asset || legs[len(legs)-1].TokenOut != asset {
		return nil, revert("InvalidCycle")
	}

	*trace = append(*trace, PhaseLegsExecuting)
	amountIn := new(big.Int).Set(amount)
	for i, leg := range legs {
		if i > 0 && leg.TokenIn != legs[i-1].TokenOut {
			return nil, revert("InvalidCycle")
		}
		out, tokenOut, err := st.swap(leg.Pool, c.Address, leg.TokenIn, amountIn)
		if err != nil {
			return nil, err
		}
		if tokenOut != leg.TokenOut {
			return nil, revert("InvalidCycle")
		}
		if out.Cmp(leg.MinOut) < 0 {
			return nil, revert("SlippageExceeded")
		}
		amountIn = out
	}

	*trace = append(*trace, PhaseRepaying)
	owed := new(big.Int).Add(amount, premium)
	earned := new(big.Int).Sub(st.BalanceOf(asset, c.Address), opening)
	if earned.Cmp(owed) < 0 {
		return nil, revert("InsufficientRepayment")
	}

	profit := new(big.Int).Sub(earned, owed)
	if profit.Sign() > 0 {
		if err := st.transfer(asset, c.Address, c.Owner, profit); err != nil {
			return nil, err
		}
	}
	return &ProfitEvent{Asset: asset, Profit: profit}, nil
}

// Withdraw sends the executor's whole balance of token to the owner.
func (c *Contract) Withdraw(st *State, caller, token common.Address) (*State, *big.Int, error) {
	if caller != c.Owner {
		return st, nil, revert("Unauthorized")
	}
	next := st.Clone()
	amount := next.BalanceOf(token, c.Address)
	if amount.Sign() > 0 {
		if err := next.transfer(token, c.Address, c.Owner, amount); err != nil {
			return st, nil, err
		}
	}
	return next, amount, nil
}

// IsRevert reports whether err is a RevertError and returns its reason.
func IsRevert(err error) (string, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
