package sushiswap

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"go.uber.org/zap"
)

// Factory addresses
var (
	MainnetFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	MainnetRouter  = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
	InitCodeHash   = common.FromHex("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// NewV2Feed creates a feed for SushiSwap pools, which expose the Uniswap V2 pair interface.
func NewV2Feed(caller bind.ContractCaller, feeBps uint32, logger *zap.Logger) *uniswap.V2Feed {
	return uniswap.NewV2FeedWithFactory(caller, feeBps, MainnetFactory, InitCodeHash, logger.Named("sushiswap"))
}
