package dex

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

// PriceFeed quotes swaps on one exchange.
type PriceFeed interface {
	// GetQuote returns the output for swapping amountIn of tokenIn to tokenOut on pair.
	// Failures wrap types.ErrQuoteUnavailable.
	GetQuote(ctx context.Context, pair types.TokenPair, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.PriceQuote, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Registry resolves exchange ids to price feeds.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]PriceFeed
}

func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]PriceFeed)}
}

// Register adds or replaces the feed for exchangeID.
func (r *Registry) Register(exchangeID string, feed PriceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[exchangeID] = feed
}

// Exchanges returns the registered exchange ids in sorted order.
func (r *Registry) Exchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetQuote asks the feed registered for exchangeID.
func (r *Registry) GetQuote(ctx context.Context, exchangeID string, pair types.TokenPair, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.PriceQuote, error) {
	r.mu.RLock()
	feed, ok := r.feeds[exchangeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown exchange %q", types.ErrQuoteUnavailable, exchangeID)
	}
	if !pair.Has(tokenIn) || !pair.Has(tokenOut) || tokenIn == tokenOut {
		return nil, fmt.Errorf("%w: pool %s does not trade %s for %s", types.ErrQuoteUnavailable, pair.Pool.Hex(), tokenIn.Hex(), tokenOut.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrQuoteUnavailable)
	}

	quote, err := feed.GetQuote(ctx, pair, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	quote.Exchange = exchangeID
	return quote, nil
}
