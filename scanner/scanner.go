package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// QuoteSource fetches quotes by exchange id; dex.Registry implements it.
type QuoteSource interface {
	GetQuote(ctx context.Context, exchangeID string, pair types.TokenPair, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.PriceQuote, error)
}

// GasOracle provides the recent gas price and the gas a cycle consumes.
type GasOracle interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	Units(legs int) uint64
}

// FeeModel selects the flash-loan provider for a loan; flashloan.Manager implements it.
type FeeModel interface {
	Select(asset common.Address, amount *big.Int) (flashloan.Provider, *big.Int, error)
}

// Token is a token the scanner routes through. LoanAmount is nil for tokens
// that are never borrowed.
type Token struct {
	Address      common.Address
	Symbol       string
	QuoteAmount  *big.Int
	LoanAmount   *big.Int
	GasPriceRate *big.Int
}

type Settings struct {
	PollInterval    time.Duration
	FetchTimeout    time.Duration
	MaxConcurrency  int
	MinProfitMargin *big.Int
	SlippageBps     uint32
	Tokens          []Token
	Pools           []PoolSpec
}

// Scanner polls price feeds and emits profitable cycles.
type Scanner struct {
	settings Settings
	quotes   QuoteSource
	gas      GasOracle
	fees     FeeModel
	limiter  *rate.Limiter
	metrics  *metrics.ScannerMetrics
	logger   *zap.Logger

	tokens  map[common.Address]Token
	symbols map[common.Address]string
	routes  []route
}

// NewScanner precomputes the candidate cycles of settings.
func NewScanner(settings Settings, quotes QuoteSource, gas GasOracle, fees FeeModel, limiter *rate.Limiter, m *metrics.ScannerMetrics, logger *zap.Logger) (*Scanner, error) {
	if settings.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive")
	}
	if settings.MinProfitMargin == nil {
		return nil, fmt.Errorf("minimum profit margin must be set")
	}

	s := &Scanner{
		settings: settings,
		quotes:   quotes,
		gas:      gas,
		fees:     fees,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		tokens:   make(map[common.Address]Token, len(settings.Tokens)),
		symbols:  make(map[common.Address]string, len(settings.Tokens)),
	}

	var loanAssets []common.Address
	for _, t := range settings.Tokens {
		s.tokens[t.Address] = t
		s.symbols[t.Address] = t.Symbol
		if t.LoanAmount != nil && t.LoanAmount.Sign() > 0 {
			if t.GasPriceRate == nil {
				return nil, fmt.Errorf("loan token %s has no gas price rate", t.Symbol)
			}
			loanAssets = append(loanAssets, t.Address)
		}
	}
	for _, p := range settings.Pools {
		for _, tok := range []common.Address{p.Pair.Token0, p.Pair.Token1} {
			if t, ok := s.tokens[tok]; !ok || t.QuoteAmount == nil || t.QuoteAmount.Sign() <= 0 {
				return nil, fmt.Errorf("pool %s trades %s which has no quote amount", p.Pair.Pool.Hex(), tok.Hex())
			}
		}
	}

	s.routes = enumerateCycles(loanAssets, settings.Pools)
	logger.Info("Scanner initialized",
		zap.Int("tokens", len(settings.Tokens)),
		zap.Int("pools", len(settings.Pools)),
		zap.Int("cycles", len(s.routes)))
	return s, nil
}

// Cycles returns the number of candidate cycles evaluated per poll.
func (s *Scanner) Cycles() int {
	return len(s.routes)
}

// Start polls every PollInterval until ctx is done and streams opportunities
// in the order Poll returns them. The channel is closed on exit.
func (s *Scanner) Start(ctx context.Context) <-chan *types.Opportunity {
	ch := make(chan *types.Opportunity)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.settings.PollInterval)
		defer ticker.Stop()

		for {
			opps, err := s.Poll(ctx)
			if err != nil {
				s.logger.Error("Poll failed", zap.Error(err))
			}
			for _, opp := range opps {
				select {
				case ch <- opp:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

type fetchResult struct {
	key   quoteKey
	quote *types.PriceQuote
	err   error
}

// Poll runs one poll cycle. Quote failures are recovered: the failing
// exchange is skipped for this poll only.
func (s *Scanner) Poll(ctx context.Context) ([]*types.Opportunity, error) {
	start := time.Now()
	defer func() {
		s.metrics.Polls.Inc()
		s.metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	// Fetches are not interrupted by ctx; cancellation is observed between polls.
	pollCtx := context.WithoutCancel(ctx)

	gasPrice, err := s.gas.GasPrice(pollCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	price, _ := new(big.Float).SetInt(gasPrice).Float64()
	s.metrics.GasPrice.Set(price)

	book, failed := s.fetchQuotes(pollCtx)

	var opps []*types.Opportunity
	for _, r := range s.routes {
		if r.touches(failed) {
			continue
		}
		s.metrics.CyclesChecked.Inc()
		if opp, ok := s.evaluate(r, book, gasPrice, start); ok {
			opps = append(opps, opp)
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetProfit.Cmp(opps[j].NetProfit) > 0
	})

	if len(opps) > 0 {
		s.metrics.Opportunities.Add(float64(len(opps)))
		best, _ := new(big.Float).SetInt(opps[0].NetProfit).Float64()
		s.metrics.BestNetProfit.Set(best)
	}
	s.logger.Debug("Poll complete",
		zap.Int("quotes", len(book)),
		zap.Int("failed_exchanges", len(failed)),
		zap.Int("opportunities", len(opps)),
		zap.Duration("took", time.Since(start)))
	return opps, nil
}

// fetchQuotes fans out one fetch per pool direction used by any cycle and
// waits for all of them.
func (s *Scanner) fetchQuotes(ctx context.Context) (map[quoteKey]*types.PriceQuote, map[string]bool) {
	seen := make(map[quoteKey]bool)
	var edges []edge
	for _, r := range s.routes {
		for _, e := range r {
			if !seen[e.key()] {
				seen[e.key()] = true
				edges = append(edges, e)
			}
		}
	}

	results := make([]fetchResult, len(edges))
	var g errgroup.Group
	g.SetLimit(s.settings.MaxConcurrency)
	for i, e := range edges {
		i, e := i, e
		g.Go(func() error {
			results[i] = s.fetch(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	book := make(map[quoteKey]*types.PriceQuote, len(results))
	failed := make(map[string]bool)
	for _, res := range results {
		if res.err != nil {
			if !failed[res.key.exchange] {
				s.logger.Warn("Exchange unavailable for this poll",
					zap.String("exchange", res.key.exchange),
					zap.String("pool", res.key.pool.Hex()),
					zap.Error(res.err))
			}
			failed[res.key.exchange] = true
			s.metrics.Quotes.WithLabelValues(res.key.exchange, "error").Inc()
			continue
		}
		book[res.key] = res.quote
		s.metrics.Quotes.WithLabelValues(res.key.exchange, "ok").Inc()
	}
	return book, failed
}

func (s *Scanner) fetch(ctx context.Context, e edge) fetchResult {
	res := fetchResult{key: e.key()}

	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(fetchCtx); err != nil {
			res.err = fmt.Errorf("%w: rate limit: %v", types.ErrQuoteUnavailable, err)
			return res
		}
	}

	amountIn := s.tokens[e.tokenIn].QuoteAmount
	q, err := s.quotes.GetQuote(fetchCtx, e.pool.Exchange, e.pool.Pair, e.tokenIn, e.tokenOut, amountIn)
	if err != nil {
		res.err = err
		return res
	}
	res.quote = q
	return res
}

func (s *Scanner) evaluate(r route, book map[quoteKey]*types.PriceQuote, gasPrice *big.Int, now time.Time) (*types.Opportunity, bool) {
	asset := r[0].tokenIn
	token := s.tokens[asset]

	ev, ok := simulate(r, book, token.LoanAmount, s.settings.SlippageBps)
	if !ok {
		return nil, false
	}

	provider, fee, err := s.fees.Select(asset, token.LoanAmount)
	if err != nil {
		s.logger.Warn("No flash loan provider", zap.String("asset", asset.Hex()), zap.Error(err))
		return nil, false
	}

	units := s.gas.Units(len(r))
	costs := Costs{
		FlashLoanFee: fee,
		GasCost:      GasCostIn(gasPrice, units, token.GasPriceRate),
	}
	net := NetProfit(ev.gross, token.LoanAmount, costs)

	cycle := &types.ArbitrageCycle{Legs: ev.legs, Symbols: s.symbols}
	if !Profitable(net, s.settings.MinProfitMargin) {
		s.logger.Debug("Cycle below margin",
			zap.Stringer("cycle", cycle),
			zap.String("net_profit", net.String()))
		return nil, false
	}
	if err := cycle.Validate(asset); err != nil {
		s.logger.Error("Enumerated an invalid cycle", zap.Stringer("cycle", cycle), zap.Error(err))
		return nil, false
	}

	return &types.Opportunity{
		ID:           uuid.NewString(),
		Cycle:        cycle,
		LoanAsset:    asset,
		LoanAmount:   new(big.Int).Set(token.LoanAmount),
		GrossOutput:  ev.gross,
		FlashLoanFee: costs.FlashLoanFee,
		GasCost:      costs.GasCost,
		NetProfit:    net,
		GasPrice:     new(big.Int).Set(gasPrice),
		GasUnits:     units,
		Provider:     provider.Name(),
		Quotes:       ev.quotes,
		DetectedAt:   now,
	}, true
}
