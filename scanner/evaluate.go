package scanner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
)

type quoteKey struct {
	exchange string
	pool     common.Address
	tokenIn  common.Address
}

// legOutput chains amount through a quote: constant-product math when the
// quote carries reserves, linear scaling of the quoted rate otherwise.
func legOutput(amount *big.Int, q *types.PriceQuote, feeBps uint32) *big.Int {
	if q.HasReserves() {
		return fpmath.GetAmountOut(amount, q.ReserveIn, q.ReserveOut, feeBps)
	}
	return fpmath.Scale(amount, q.AmountIn, q.AmountOut)
}

// evaluation is the arithmetic outcome of one cycle for one loan amount.
type evaluation struct {
	legs   []types.Leg
	quotes []*types.PriceQuote
	gross  *big.Int
}

// simulate walks the route from loanAmount. ok is false when a quote is
// missing or an intermediate amount reaches zero.
func simulate(r route, book map[quoteKey]*types.PriceQuote, loanAmount *big.Int, slippageBps uint32) (*evaluation, bool) {
	ev := &evaluation{
		legs:   make([]types.Leg, len(r)),
		quotes: make([]*types.PriceQuote, len(r)),
	}
	amount := new(big.Int).Set(loanAmount)
	for i, e := range r {
		q, ok := book[e.key()]
		if !ok {
			return nil, false
		}
		amount = legOutput(amount, q, e.pool.FeeBps)
		if amount.Sign() <= 0 {
			return nil, false
		}
		ev.quotes[i] = q
		ev.legs[i] = types.Leg{
			Exchange:    e.pool.Exchange,
			Pair:        e.pool.Pair,
			TokenIn:     e.tokenIn,
			TokenOut:    e.tokenOut,
			ExpectedOut: new(big.Int).Set(amount),
			MinOut:      fpmath.LessBps(amount, slippageBps),
		}
	}
	ev.gross = amount
	return ev, true
}

// Costs are the deductions from the gross output of a cycle, in loan asset units.
type Costs struct {
	FlashLoanFee *big.Int
	GasCost      *big.Int
}

// NetProfit returns gross - principal - fee - gas.
func NetProfit(gross, principal *big.Int, c Costs) *big.Int {
	return fpmath.NetProfit(gross, principal, c.FlashLoanFee, c.GasCost)
}

// Profitable reports whether net strictly exceeds margin.
func Profitable(net, margin *big.Int) bool {
	return net.Cmp(margin) > 0
}

// GasCostIn converts gasPrice*units wei into token units at rate (token units per 1e18 wei).
func GasCostIn(gasPrice *big.Int, units uint64, rate *big.Int) *big.Int {
	return fpmath.WeiToToken(fpmath.GasCost(gasPrice, units), rate)
}
