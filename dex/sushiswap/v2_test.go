package sushiswap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNewV2Feed(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	feed := NewV2Feed(nil, uniswap.DefaultFeeBps, zaptest.NewLogger(t))
	assert.Equal(t, uint32(30), feed.FeeBps())
	assert.Equal(t, common.HexToAddress("0x397FF1542f962076d0BFE58eA045FfA2d347ACa0"), feed.ExpectedPair(weth, usdc))
}
