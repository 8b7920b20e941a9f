package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// TokenPair identifies a pool and the two tokens it trades.
type TokenPair struct {
	Token0 common.Address
	Token1 common.Address
	Pool   common.Address
}

// Has reports whether token is one side of the pair.
func (p TokenPair) Has(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Other returns the counterpart of token in the pair.
func (p TokenPair) Other(token common.Address) common.Address {
	if p.Token0 == token {
		return p.Token1
	}
	return p.Token0
}

// PriceQuote is a point-in-time quote read from one exchange for one pool
// direction. ReserveIn and ReserveOut are set when the feed knows the pool's
// constant-product reserves, FeeBps when it knows the pool's swap fee.
type PriceQuote struct {
	Exchange   string
	Pair       TokenPair
	TokenIn    common.Address
	TokenOut   common.Address
	AmountIn   *big.Int
	AmountOut  *big.Int
	ReserveIn  *big.Int
	ReserveOut *big.Int
	FeeBps     uint32
	Timestamp  time.Time
}

// HasReserves reports whether the quote carries usable pool reserves.
func (q *PriceQuote) HasReserves() bool {
	return q.ReserveIn != nil && q.ReserveOut != nil &&
		q.ReserveIn.Sign() > 0 && q.ReserveOut.Sign() > 0
}

// Leg is a single swap of a cycle.
type Leg struct {
	Exchange    string
	Pair        TokenPair
	TokenIn     common.Address
	TokenOut    common.Address
	ExpectedOut *big.Int
	MinOut      *big.Int
}

// ArbitrageCycle is an ordered sequence of legs starting and ending in the loan asset.
type ArbitrageCycle struct {
	Legs []Leg

	// Symbols maps token addresses to display names for String.
	Symbols map[common.Address]string
}

// Validate checks that the legs chain into each other and close on loanAsset.
func (c *ArbitrageCycle) Validate(loanAsset common.Address) error {
	if len(c.Legs) < 2 || len(c.Legs) > 3 {
		return fmt.Errorf("cycle must have 2 or 3 legs, got %d", len(c.Legs))
	}
	if c.Legs[0].TokenIn != loanAsset {
		return fmt.Errorf("first leg starts with %s, not loan asset %s", c.Legs[0].TokenIn.Hex(), loanAsset.Hex())
	}
	pools := make(map[common.Address]struct{}, len(c.Legs))
	for i, leg := range c.Legs {
		if !leg.Pair.Has(leg.TokenIn) || !leg.Pair.Has(leg.TokenOut) || leg.TokenIn == leg.TokenOut {
			return fmt.Errorf("leg %d does not trade %s for %s on pool %s", i, leg.TokenIn.Hex(), leg.TokenOut.Hex(), leg.Pair.Pool.Hex())
		}
		if _, ok := pools[leg.Pair.Pool]; ok {
			return fmt.Errorf("leg %d reuses pool %s", i, leg.Pair.Pool.Hex())
		}
		pools[leg.Pair.Pool] = struct{}{}
		if i+1 < len(c.Legs) && leg.TokenOut != c.Legs[i+1].TokenIn {
			return fmt.Errorf("leg %d outputs %s but leg %d takes %s", i, leg.TokenOut.Hex(), i+1, c.Legs[i+1].TokenIn.Hex())
		}
	}
	if last := c.Legs[len(c.Legs)-1]; last.TokenOut != loanAsset {
		return fmt.Errorf("last leg ends with %s, not loan asset %s", last.TokenOut.Hex(), loanAsset.Hex())
	}
	return nil
}

// Key returns a stable hash of the route (exchange, pool and direction of every leg).
// Amounts are not part of the key.
func (c *ArbitrageCycle) Key() uint64 {
	h := xxhash.New()
	for _, leg := range c.Legs {
		_, _ = h.WriteString(leg.Exchange)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(leg.Pair.Pool.Bytes())
		_, _ = h.Write(leg.TokenIn.Bytes())
		_, _ = h.Write(leg.TokenOut.Bytes())
	}
	return h.Sum64()
}

func (c *ArbitrageCycle) symbol(token common.Address) string {
	if s, ok := c.Symbols[token]; ok && s != "" {
		return s
	}
	return token.Hex()
}

// String renders the route as "WETH -[uniswap]-> USDC -[sushiswap]-> WETH".
func (c *ArbitrageCycle) String() string {
	if len(c.Legs) == 0 {
		return "<empty cycle>"
	}
	var b strings.Builder
	b.WriteString(c.symbol(c.Legs[0].TokenIn))
	for _, leg := range c.Legs {
		fmt.Fprintf(&b, " -[%s]-> %s", leg.Exchange, c.symbol(leg.TokenOut))
	}
	return b.String()
}

// Opportunity is a cycle evaluated as profitable for one poll.
// NetProfit = GrossOutput - LoanAmount - FlashLoanFee - GasCost.
type Opportunity struct {
	ID           string
	Cycle        *ArbitrageCycle
	LoanAsset    common.Address
	LoanAmount   *big.Int
	GrossOutput  *big.Int
	FlashLoanFee *big.Int
	GasCost      *big.Int
	NetProfit    *big.Int
	GasPrice     *big.Int
	GasUnits     uint64
	Provider     string
	Quotes       []*PriceQuote
	DetectedAt   time.Time
}

// ExecutionResult is the terminal outcome of one dispatch.
type ExecutionResult struct {
	OpportunityID string
	Cycle         string
	CycleKey      uint64
	LoanAsset     common.Address
	LoanAmount    *big.Int
	TxHash        common.Hash
	Success       bool
	Profit        *big.Int
	FailureReason string
	Attempts      int
	GasPrice      *big.Int
	Timestamp     time.Time
}
