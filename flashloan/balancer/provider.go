package balancer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
)

const (
	// Mainnet addresses
	VaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

// Provider models a Balancer vault flash loan. The vault fee is normally zero.
type Provider struct {
	name     string
	vault    common.Address
	executor common.Address
	feeBps   uint32
}

// NewProvider creates a Balancer provider.
func NewProvider(name string, vault, executor common.Address, feeBps uint32) *Provider {
	return &Provider{
		name:     name,
		vault:    vault,
		executor: executor,
		feeBps:   feeBps,
	}
}

func (p *Provider) Name() string             { return p.name }
func (p *Provider) Pool() common.Address     { return p.vault }
func (p *Provider) Executor() common.Address { return p.executor }
func (p *Provider) FeeBps() uint32           { return p.feeBps }

func (p *Provider) Fee(amount *big.Int) *big.Int {
	if p.feeBps == 0 {
		return new(big.Int)
	}
	return fpmath.BpsCeil(amount, p.feeBps)
}

func (p *Provider) String() string {
	return fmt.Sprintf("balancer(%s)", p.name)
}
