package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
	"go.uber.org/zap"
)

// Contract addresses
var (
	MainnetRouter  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	InitCodeHash   = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

// DefaultFeeBps is the 0.3% swap fee of V2 pairs.
const DefaultFeeBps = 30

// V2Feed quotes constant-product V2 pairs from their on-chain reserves.
type V2Feed struct {
	caller       bind.ContractCaller
	feeBps       uint32
	factory      common.Address
	initCodeHash []byte
	logger       *zap.Logger

	mu     sync.RWMutex
	pairs  map[common.Address]*Pair
	token0 map[common.Address]common.Address
}

// NewV2Feed creates a feed for Uniswap V2 pools.
func NewV2Feed(caller bind.ContractCaller, feeBps uint32, logger *zap.Logger) *V2Feed {
	return NewV2FeedWithFactory(caller, feeBps, MainnetFactory, InitCodeHash, logger)
}

// NewV2FeedWithFactory creates a feed for a V2 fork with its own factory.
func NewV2FeedWithFactory(caller bind.ContractCaller, feeBps uint32, factory common.Address, initCodeHash []byte, logger *zap.Logger) *V2Feed {
	return &V2Feed{
		caller:       caller,
		feeBps:       feeBps,
		factory:      factory,
		initCodeHash: initCodeHash,
		logger:       logger,
		pairs:        make(map[common.Address]*Pair),
		token0:       make(map[common.Address]common.Address),
	}
}

// ExpectedPair returns the pool address the factory would deploy for a/b.
func (u *V2Feed) ExpectedPair(a, b common.Address) common.Address {
	return PairAddress(u.factory, u.initCodeHash, a, b)
}

func (u *V2Feed) pair(address common.Address) *Pair {
	u.mu.RLock()
	p, ok := u.pairs[address]
	u.mu.RUnlock()
	if ok {
		return p
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok = u.pairs[address]; !ok {
		p = NewPair(address, u.caller)
		u.pairs[address] = p
	}
	return p
}

func (u *V2Feed) tokenZero(ctx context.Context, p *Pair) (common.Address, error) {
	u.mu.RLock()
	t0, ok := u.token0[p.address]
	u.mu.RUnlock()
	if ok {
		return t0, nil
	}

	t0, err := p.Token0(ctx)
	if err != nil {
		return common.Address{}, err
	}
	u.mu.Lock()
	u.token0[p.address] = t0
	u.mu.Unlock()
	return t0, nil
}

// GetQuote implements dex.PriceFeed.
func (u *V2Feed) GetQuote(ctx context.Context, pair types.TokenPair, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.PriceQuote, error) {
	p := u.pair(pair.Pool)

	t0, err := u.tokenZero(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	reserves, err := p.GetReserves(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}

	reserveIn, reserveOut := reserves.Reserve0, reserves.Reserve1
	if tokenIn != t0 {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool %s has no liquidity", types.ErrQuoteUnavailable, pair.Pool.Hex())
	}

	amountOut := fpmath.GetAmountOut(amountIn, reserveIn, reserveOut, u.feeBps)
	u.logger.Debug("Quoted V2 pool",
		zap.String("pool", pair.Pool.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()))

	return &types.PriceQuote{
		Pair:       pair,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   new(big.Int).Set(amountIn),
		AmountOut:  amountOut,
		ReserveIn:  new(big.Int).Set(reserveIn),
		ReserveOut: new(big.Int).Set(reserveOut),
		FeeBps:     u.feeBps,
		Timestamp:  time.Now(),
	}, nil
}

// FeeBps returns the swap fee applied to quotes.
func (u *V2Feed) FeeBps() uint32 { return u.feeBps }
