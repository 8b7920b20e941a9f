package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ChainReader is the part of ethclient.Client the estimator reads.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator tracks the recent network gas price and sizes arbitrage transactions.
type Estimator struct {
	client      ChainReader
	logger      *zap.Logger
	unitsBase   uint64
	unitsPerLeg uint64

	mu        sync.RWMutex
	lastPrice *big.Int
	updatedAt time.Time
}

// NewEstimator creates an estimator charging unitsBase + unitsPerLeg*legs gas per cycle.
func NewEstimator(client ChainReader, unitsBase, unitsPerLeg uint64, logger *zap.Logger) *Estimator {
	return &Estimator{
		client:      client,
		logger:      logger,
		unitsBase:   unitsBase,
		unitsPerLeg: unitsPerLeg,
	}
}

// Units estimates the gas used by a cycle of the given number of legs.
func (e *Estimator) Units(legs int) uint64 {
	return e.unitsBase + e.unitsPerLeg*uint64(legs)
}

// GasPrice fetches the current gas price (base fee plus tip). When the node
// cannot be reached the last known price is returned.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := e.fetch(ctx)
	if err == nil {
		e.mu.Lock()
		e.lastPrice = price
		e.updatedAt = time.Now()
		e.mu.Unlock()
		return new(big.Int).Set(price), nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastPrice == nil {
		return nil, err
	}
	e.logger.Warn("Using last known gas price",
		zap.Error(err),
		zap.Duration("age", time.Since(e.updatedAt)))
	return new(big.Int).Set(e.lastPrice), nil
}

func (e *Estimator) fetch(ctx context.Context) (*big.Int, error) {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		price, err := e.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return price, nil
	}

	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}
	return new(big.Int).Add(header.BaseFee, tip), nil
}
