package scanner

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

// PoolSpec is a pool the scanner watches on one exchange.
type PoolSpec struct {
	Exchange string
	Pair     types.TokenPair
	FeeBps   uint32
}

// edge is one swap direction through a pool.
type edge struct {
	pool     PoolSpec
	tokenIn  common.Address
	tokenOut common.Address
}

func (e edge) key() quoteKey {
	return quoteKey{exchange: e.pool.Exchange, pool: e.pool.Pair.Pool, tokenIn: e.tokenIn}
}

// route is a closed cycle of 2 or 3 edges.
type route []edge

func (r route) touches(failed map[string]bool) bool {
	for _, e := range r {
		if failed[e.pool.Exchange] {
			return true
		}
	}
	return false
}

// enumerateCycles lists every 2-leg (A->B->A) and 3-leg (A->B->C->A) cycle
// starting at one of loanAssets. A cycle never uses a pool twice. The order
// follows loanAssets and pools, so equal inputs give equal outputs.
func enumerateCycles(loanAssets []common.Address, pools []PoolSpec) []route {
	out := make(map[common.Address][]edge)
	for _, p := range pools {
		out[p.Pair.Token0] = append(out[p.Pair.Token0], edge{pool: p, tokenIn: p.Pair.Token0, tokenOut: p.Pair.Token1})
		out[p.Pair.Token1] = append(out[p.Pair.Token1], edge{pool: p, tokenIn: p.Pair.Token1, tokenOut: p.Pair.Token0})
	}

	var routes []route
	for _, a := range loanAssets {
		for _, e1 := range out[a] {
			b := e1.tokenOut
			for _, e2 := range out[b] {
				if e2.pool.Pair.Pool == e1.pool.Pair.Pool {
					continue
				}
				if e2.tokenOut == a {
					routes = append(routes, route{e1, e2})
					continue
				}
				for _, e3 := range out[e2.tokenOut] {
					if e3.tokenOut != a || e3.pool.Pair.Pool == e1.pool.Pair.Pool || e3.pool.Pair.Pool == e2.pool.Pair.Pool {
						continue
					}
					routes = append(routes, route{e1, e2, e3})
				}
			}
		}
	}
	return routes
}
