package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider is a flash-loan lending pool together with the executor contract
// deployed against it.
type Provider interface {
	Name() string
	// Pool is the lending pool that calls the executor back.
	Pool() common.Address
	// Executor is the arbitrage contract that receives the loan.
	Executor() common.Address
	FeeBps() uint32
	// Fee returns the premium owed on top of amount.
	Fee(amount *big.Int) *big.Int
}
