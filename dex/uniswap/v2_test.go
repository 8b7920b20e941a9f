package uniswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

type fakePool struct {
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

// fakeCaller answers pair calls from in-memory pools.
type fakeCaller struct {
	mu      sync.Mutex
	pools   map[common.Address]fakePool
	fail    map[common.Address]bool
	t0Calls int
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[*call.To] {
		return nil, errors.New("connection refused")
	}
	pool, ok := f.pools[*call.To]
	if !ok {
		return nil, nil
	}
	switch {
	case bytes.Equal(call.Data[:4], PairABI.Methods["getReserves"].ID):
		return PairABI.Methods["getReserves"].Outputs.Pack(pool.reserve0, pool.reserve1, uint32(1700000000))
	case bytes.Equal(call.Data[:4], PairABI.Methods["token0"].ID):
		f.t0Calls++
		return PairABI.Methods["token0"].Outputs.Pack(pool.token0)
	}
	return nil, errors.New("unknown method")
}

func TestV2FeedGetQuote(t *testing.T) {
	pool := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	caller := &fakeCaller{
		pools: map[common.Address]fakePool{
			// 2,000,000 USDC / 1,000 WETH
			pool: {token0: usdc, reserve0: big.NewInt(2_000_000_000_000), reserve1: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))},
		},
	}
	feed := NewV2Feed(caller, DefaultFeeBps, zaptest.NewLogger(t))
	pair := types.TokenPair{Token0: usdc, Token1: weth, Pool: pool}

	t.Run("weth to usdc", func(t *testing.T) {
		q, err := feed.GetQuote(context.Background(), pair, weth, usdc, big.NewInt(1e18))
		require.NoError(t, err)
		// 1 WETH into a 1000 WETH pool at 0.3% fee
		assert.Equal(t, "1992013962", q.AmountOut.String())
		assert.Equal(t, 0, q.ReserveIn.Cmp(new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))))
		assert.Equal(t, weth, q.TokenIn)
		assert.True(t, q.HasReserves())
	})

	t.Run("usdc to weth uses swapped reserves", func(t *testing.T) {
		q, err := feed.GetQuote(context.Background(), pair, usdc, weth, big.NewInt(2_000_000_000))
		require.NoError(t, err)
		assert.Equal(t, int64(2_000_000_000_000), q.ReserveIn.Int64())
		assert.True(t, q.AmountOut.Cmp(big.NewInt(1e18)) < 0)
	})

	t.Run("token0 is cached", func(t *testing.T) {
		assert.Equal(t, 1, caller.t0Calls)
	})

	t.Run("rpc failure is quote unavailable", func(t *testing.T) {
		broken := common.HexToAddress("0x00000000000000000000000000000000000000b0")
		caller.fail = map[common.Address]bool{broken: true}
		_, err := feed.GetQuote(context.Background(), types.TokenPair{Token0: usdc, Token1: weth, Pool: broken}, weth, usdc, big.NewInt(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
	})

	t.Run("empty pool", func(t *testing.T) {
		empty := common.HexToAddress("0x00000000000000000000000000000000000000e0")
		caller.pools[empty] = fakePool{token0: usdc, reserve0: big.NewInt(0), reserve1: big.NewInt(0)}
		_, err := feed.GetQuote(context.Background(), types.TokenPair{Token0: usdc, Token1: weth, Pool: empty}, weth, usdc, big.NewInt(1))
		assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
	})
}

func TestPairAddress(t *testing.T) {
	feed := NewV2Feed(nil, DefaultFeeBps, zaptest.NewLogger(t))
	assert.Equal(t, common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), feed.ExpectedPair(weth, usdc))
	assert.Equal(t, feed.ExpectedPair(weth, usdc), feed.ExpectedPair(usdc, weth))

	a, b := SortTokens(weth, usdc)
	assert.Equal(t, usdc, a)
	assert.Equal(t, weth, b)
}
