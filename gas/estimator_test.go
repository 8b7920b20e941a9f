package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockChain struct {
	baseFee  *big.Int
	tip      *big.Int
	gasPrice *big.Int
	err      error
}

func (m *mockChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &types.Header{BaseFee: m.baseFee}, nil
}

func (m *mockChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return m.tip, nil
}

func (m *mockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.gasPrice, nil
}

func TestEstimator(t *testing.T) {
	chain := &mockChain{baseFee: big.NewInt(30e9), tip: big.NewInt(2e9), gasPrice: big.NewInt(25e9)}
	e := NewEstimator(chain, 21000, 152000, zaptest.NewLogger(t))

	t.Run("Units", func(t *testing.T) {
		assert.Equal(t, uint64(325000), e.Units(2))
		assert.Equal(t, uint64(477000), e.Units(3))
	})

	t.Run("BaseFeePlusTip", func(t *testing.T) {
		price, err := e.GasPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(32e9), price.Int64())
	})

	t.Run("LegacyChain", func(t *testing.T) {
		legacy := NewEstimator(&mockChain{gasPrice: big.NewInt(25e9)}, 0, 1, zaptest.NewLogger(t))
		price, err := legacy.GasPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(25e9), price.Int64())
	})

	t.Run("FallsBackToLastKnown", func(t *testing.T) {
		chain.err = errors.New("node down")
		price, err := e.GasPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(32e9), price.Int64())
	})

	t.Run("NoPriceYet", func(t *testing.T) {
		fresh := NewEstimator(&mockChain{err: errors.New("node down")}, 0, 1, zaptest.NewLogger(t))
		_, err := fresh.GasPrice(context.Background())
		assert.Error(t, err)
	})
}
