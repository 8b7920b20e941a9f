package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/contract"
	"github.com/michaelpento.lv/flasharb/executor"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
	"go.uber.org/zap"
)

// Backend is the part of an Ethereum client needed to dry-run a call.
type Backend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SimulationResult is the outcome of a dry run. Reason is set when the call
// reverted.
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Reason  string
}

// Simulator dry-runs executor calls before they are signed.
type Simulator struct {
	backend Backend
	logger  *zap.Logger
}

func NewSimulator(backend Backend, logger *zap.Logger) *Simulator {
	return &Simulator{
		backend: backend,
		logger:  logger,
	}
}

// Preflight estimates gas for the call and executes it against the pending
// state. A revert is reported in the result; only transport failures are
// returned as errors.
func (s *Simulator) Preflight(ctx context.Context, from, to common.Address, data []byte) (*SimulationResult, error) {
	msg := ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	}

	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := contract.RevertReason(err); ok {
			s.logger.Debug("Preflight gas estimate reverted", zap.String("reason", reason))
			return &SimulationResult{Success: false, Reason: reason}, nil
		}
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	msg.Gas = gasUsed
	if _, err := s.backend.CallContract(ctx, msg, nil); err != nil {
		if reason, ok := contract.RevertReason(err); ok {
			return &SimulationResult{Success: false, GasUsed: gasUsed, Reason: reason}, nil
		}
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}

	return &SimulationResult{
		Success: true,
		GasUsed: gasUsed,
	}, nil
}

// PreflightOpportunity runs Preflight for the initiateFlashLoan call of opp.
func (s *Simulator) PreflightOpportunity(ctx context.Context, from, executorAddr common.Address, opp *types.Opportunity) (*SimulationResult, error) {
	params, err := flashloan.EncodeParams(flashloan.LegsFromCycle(opp.Cycle))
	if err != nil {
		return nil, err
	}
	data, err := contract.PackInitiateFlashLoan(opp.LoanAsset, opp.LoanAmount, params)
	if err != nil {
		return nil, err
	}
	return s.Preflight(ctx, from, executorAddr, data)
}

// ReplayResult is the outcome of running an opportunity through the executor model.
type ReplayResult struct {
	Profit *big.Int
	Trace  executor.Trace
	Reason string
}

// Replay executes opp against a local executor model seeded with the reserves
// of its quotes. Every quote must carry reserves.
func Replay(opp *types.Opportunity, provider flashloan.Provider, owner common.Address) (*ReplayResult, error) {
	if len(opp.Quotes) != len(opp.Cycle.Legs) {
		return nil, fmt.Errorf("opportunity has %d quotes for %d legs", len(opp.Quotes), len(opp.Cycle.Legs))
	}

	st := executor.NewState().WithBalance(opp.LoanAsset, provider.Pool(), opp.LoanAmount)
	for i, q := range opp.Quotes {
		if !q.HasReserves() {
			return nil, fmt.Errorf("leg %d quote from %s has no reserves", i, q.Exchange)
		}
		pool := executor.Pool{
			Address:  q.Pair.Pool,
			Token0:   q.Pair.Token0,
			Token1:   q.Pair.Token1,
			Reserve0: q.ReserveIn,
			Reserve1: q.ReserveOut,
			FeeBps:   q.FeeBps,
		}
		if q.TokenIn != q.Pair.Token0 {
			pool.Reserve0, pool.Reserve1 = q.ReserveOut, q.ReserveIn
		}
		st = st.WithPool(pool)
	}

	c := &executor.Contract{
		Address:  provider.Executor(),
		Owner:    owner,
		Provider: executor.LendingPool{Address: provider.Pool(), FeeBps: provider.FeeBps()},
	}
	params, err := flashloan.EncodeParams(flashloan.LegsFromCycle(opp.Cycle))
	if err != nil {
		return nil, err
	}

	_, ev, trace, err := c.InitiateFlashLoan(st, owner, opp.LoanAsset, opp.LoanAmount, params)
	if err != nil {
		reason, ok := executor.IsRevert(err)
		if !ok {
			return nil, err
		}
		return &ReplayResult{Trace: trace, Reason: reason}, nil
	}
	return &ReplayResult{Profit: ev.Profit, Trace: trace}, nil
}
