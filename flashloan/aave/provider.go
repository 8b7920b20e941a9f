package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
	"go.uber.org/zap"
)

// Aave V3 pool, premium getter only.
const poolABIJson = `[
	{
		"inputs": [],
		"name": "FLASHLOAN_PREMIUM_TOTAL",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var poolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		panic(fmt.Sprintf("failed to parse aave pool ABI: %v", err))
	}
	poolABI = parsed
}

// MainnetPool is the Aave V3 pool on Ethereum mainnet.
var MainnetPool = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")

// Provider models an Aave V3 flash loan: the premium is a basis-point share of
// the principal.
type Provider struct {
	name     string
	pool     common.Address
	executor common.Address
	logger   *zap.Logger

	mu     sync.RWMutex
	feeBps uint32
}

// NewProvider creates a provider charging feeBps.
func NewProvider(name string, pool, executor common.Address, feeBps uint32, logger *zap.Logger) *Provider {
	return &Provider{
		name:     name,
		pool:     pool,
		executor: executor,
		feeBps:   feeBps,
		logger:   logger,
	}
}

func (p *Provider) Name() string             { return p.name }
func (p *Provider) Pool() common.Address     { return p.pool }
func (p *Provider) Executor() common.Address { return p.executor }

func (p *Provider) FeeBps() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeBps
}

// Fee rounds up so the estimate never undercuts the pool's premium.
func (p *Provider) Fee(amount *big.Int) *big.Int {
	return fpmath.BpsCeil(amount, p.FeeBps())
}

// RefreshFee reads FLASHLOAN_PREMIUM_TOTAL from the pool and adopts it when it
// differs from the configured premium.
func (p *Provider) RefreshFee(ctx context.Context, caller bind.ContractCaller) (uint32, error) {
	contract := bind.NewBoundContract(p.pool, poolABI, caller, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "FLASHLOAN_PREMIUM_TOTAL"); err != nil {
		return 0, fmt.Errorf("failed to read flash loan premium: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unexpected premium output length %d", len(out))
	}
	premium, ok := out[0].(*big.Int)
	if !ok || !premium.IsUint64() || premium.Uint64() >= fpmath.BpsDenominator {
		return 0, fmt.Errorf("invalid flash loan premium %v", out[0])
	}

	bps := uint32(premium.Uint64())
	p.mu.Lock()
	defer p.mu.Unlock()
	if bps != p.feeBps {
		p.logger.Warn("On-chain flash loan premium differs from configuration",
			zap.String("provider", p.name),
			zap.Uint32("configured_bps", p.feeBps),
			zap.Uint32("onchain_bps", bps))
		p.feeBps = bps
	}
	return bps, nil
}

func (p *Provider) String() string {
	return fmt.Sprintf("aave(%s)", p.name)
}
