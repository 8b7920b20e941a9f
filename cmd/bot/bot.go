package bot

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/flasharb/audit"
	"github.com/michaelpento.lv/flasharb/audit/postgres"
	"github.com/michaelpento.lv/flasharb/audit/sqlite"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/sushiswap"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/dispatcher"
	"github.com/michaelpento.lv/flasharb/flashbots"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/flashloan/balancer"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/lock"
	"github.com/michaelpento.lv/flasharb/scanner"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/michaelpento.lv/flasharb/utils/monitor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const namespace = "flasharb"

// Bot wires the scanner to the dispatcher.
type Bot struct {
	cfg    *config.Config
	client *ethclient.Client
	logger *zap.Logger

	feeds     *dex.Registry
	providers *flashloan.Manager
	gas       *gas.Estimator
	scanner   *scanner.Scanner

	// Set by EnableDispatch.
	key        *ecdsa.PrivateKey
	dispatcher *dispatcher.Dispatcher
	audit      audit.Log
	closers    []func() error
}

// New connects to the node and builds the read-only side: feeds, flash-loan
// providers, gas estimator and scanner.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	b := &Bot{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		closers: []func() error{func() error { client.Close(); return nil }},
	}

	b.feeds, err = NewFeeds(cfg, client, logger)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.providers, err = NewProviders(cfg, metrics.NewFlashLoanMetrics(namespace, nil), logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	for _, p := range b.providers.Providers() {
		if a, ok := p.(*aave.Provider); ok {
			if _, err := a.RefreshFee(ctx, client); err != nil {
				logger.Warn("Using configured Aave premium", zap.String("provider", a.Name()), zap.Error(err))
			}
		}
	}

	b.gas = gas.NewEstimator(client, cfg.Scanner.GasUnitsBase, cfg.Scanner.GasUnitsPerLeg, logger)

	settings, err := ScannerSettings(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPCRateLimit.RequestsPerSecond), cfg.RPCRateLimit.BurstSize)
	b.scanner, err = scanner.NewScanner(settings, b.feeds, b.gas, b.providers, limiter,
		metrics.NewScannerMetrics(namespace, nil), logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	return b, nil
}

// NewFeeds registers one price feed per configured exchange and warns about
// pools that are not the factory's pair for their tokens.
func NewFeeds(cfg *config.Config, client *ethclient.Client, logger *zap.Logger) (*dex.Registry, error) {
	registry := dex.NewRegistry()
	for _, ex := range cfg.Exchanges {
		var feed *uniswap.V2Feed
		switch ex.Kind {
		case config.KindUniswapV2:
			feed = uniswap.NewV2Feed(client, ex.FeeBps, logger.With(zap.String("exchange", ex.ID)))
		case config.KindSushiswapV2:
			feed = sushiswap.NewV2Feed(client, ex.FeeBps, logger.With(zap.String("exchange", ex.ID)))
		default:
			return nil, fmt.Errorf("exchange %s: unsupported kind %q", ex.ID, ex.Kind)
		}

		for _, p := range ex.Pools {
			pool := common.HexToAddress(p.Address)
			expected := feed.ExpectedPair(common.HexToAddress(p.Token0), common.HexToAddress(p.Token1))
			if expected != pool {
				logger.Warn("Pool is not the factory pair for its tokens",
					zap.String("exchange", ex.ID),
					zap.String("pool", pool.Hex()),
					zap.String("expected", expected.Hex()))
			}
		}
		registry.Register(ex.ID, feed)
	}
	return registry, nil
}

func NewProviders(cfg *config.Config, m *metrics.FlashLoanMetrics, logger *zap.Logger) (*flashloan.Manager, error) {
	manager := flashloan.NewManager(m, logger)
	for _, pc := range cfg.FlashLoan.Providers {
		pool := common.HexToAddress(pc.Pool)
		executor := common.HexToAddress(pc.Executor)
		switch pc.Kind {
		case config.ProviderAave:
			manager.AddProvider(aave.NewProvider(pc.Name, pool, executor, pc.FeeBps, logger))
		case config.ProviderBalancer:
			manager.AddProvider(balancer.NewProvider(pc.Name, pool, executor, pc.FeeBps))
		default:
			return nil, fmt.Errorf("flash loan provider %s: unsupported kind %q", pc.Name, pc.Kind)
		}
	}
	return manager, nil
}

// ScannerSettings converts the validated configuration into scanner settings.
func ScannerSettings(cfg *config.Config) (scanner.Settings, error) {
	margin, err := config.ParseAmount(cfg.Scanner.MinProfitMargin)
	if err != nil {
		return scanner.Settings{}, fmt.Errorf("min_profit_margin: %w", err)
	}
	s := scanner.Settings{
		PollInterval:    cfg.Scanner.PollInterval.Std(),
		FetchTimeout:    cfg.Scanner.FetchTimeout.Std(),
		MaxConcurrency:  cfg.Scanner.MaxConcurrency,
		MinProfitMargin: margin,
		SlippageBps:     cfg.Scanner.SlippageBps,
	}

	for _, tc := range cfg.Tokens {
		t := scanner.Token{Address: common.HexToAddress(tc.Address), Symbol: tc.Symbol}
		if t.QuoteAmount, err = config.ParseAmount(tc.QuoteAmount); err != nil {
			return scanner.Settings{}, fmt.Errorf("token %s: %w", tc.Symbol, err)
		}
		if tc.LoanAmount != "" {
			if t.LoanAmount, err = config.ParseAmount(tc.LoanAmount); err != nil {
				return scanner.Settings{}, fmt.Errorf("token %s: %w", tc.Symbol, err)
			}
			if t.GasPriceRate, err = config.ParseAmount(tc.GasPriceRate); err != nil {
				return scanner.Settings{}, fmt.Errorf("token %s: %w", tc.Symbol, err)
			}
		}
		s.Tokens = append(s.Tokens, t)
	}

	for _, ex := range cfg.Exchanges {
		for _, p := range ex.Pools {
			s.Pools = append(s.Pools, scanner.PoolSpec{
				Exchange: ex.ID,
				Pair: types.TokenPair{
					Token0: common.HexToAddress(p.Token0),
					Token1: common.HexToAddress(p.Token1),
					Pool:   common.HexToAddress(p.Address),
				},
				FeeBps: ex.FeeBps,
			})
		}
	}
	return s, nil
}

// DispatcherSettings converts the validated configuration into dispatcher settings.
func DispatcherSettings(cfg *config.Config) (dispatcher.Settings, error) {
	maxGas, err := config.ParseAmount(cfg.Dispatcher.MaxGasPrice)
	if err != nil {
		return dispatcher.Settings{}, fmt.Errorf("max_gas_price: %w", err)
	}
	return dispatcher.Settings{
		ChainID:                 new(big.Int).SetUint64(cfg.ChainID),
		InclusionTimeout:        cfg.Dispatcher.InclusionTimeout.Std(),
		ReceiptPollInterval:     cfg.Dispatcher.ReceiptPollInterval.Std(),
		GasBumpPercent:          cfg.Dispatcher.GasBumpPercent,
		MaxGasMultiplierPercent: cfg.Dispatcher.MaxGasMultiplierPercent,
		MaxGasPrice:             maxGas,
		GasLimit:                cfg.Dispatcher.GasLimit,
		RevertCooldown:          cfg.Dispatcher.RevertCooldown.Std(),
		CooldownSize:            cfg.Dispatcher.CooldownSize,
	}, nil
}

// ParseKey decodes a hex private key with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// OpenAudit opens the configured audit log backend.
func OpenAudit(ctx context.Context, cfg config.AuditConfig) (audit.Log, error) {
	switch cfg.Driver {
	case config.AuditSQLite:
		return sqlite.Open(cfg.DSN)
	case config.AuditPostgres:
		return postgres.Connect(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", cfg.Driver)
	}
}

// EnableDispatch loads the owner key and builds the dispatcher with its
// audit log, account lock and submitter.
func (b *Bot) EnableDispatch(ctx context.Context) error {
	if err := b.cfg.RequirePrivateKey(); err != nil {
		return err
	}
	key, err := ParseKey(b.cfg.PrivateKey)
	if err != nil {
		return err
	}
	b.key = key

	auditLog, err := OpenAudit(ctx, b.cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	b.audit = auditLog
	b.closers = append(b.closers, auditLog.Close)

	var accountLock lock.AccountLock = lock.NewLocal()
	if b.cfg.Redis.Addr != "" {
		r, err := lock.DialRedis(ctx, b.cfg.Redis.Addr, b.cfg.Redis.Password, b.cfg.Redis.DB, b.cfg.Redis.LockTTL.Std(), b.logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, r.Close)
		accountLock = r
	}

	var (
		submitter dispatcher.Submitter = dispatcher.NewPublicSubmitter(b.client)
		relay     *flashbots.Client
	)
	if b.cfg.Flashbots.Enabled {
		authKey, err := ParseKey(b.cfg.Flashbots.SigningKey)
		if err != nil {
			return fmt.Errorf("flashbots signing key: %w", err)
		}
		relay = flashbots.NewClient(b.cfg.Flashbots.Relay, authKey, b.client, b.cfg.Flashbots.Blocks, b.logger)
		submitter = relay
		b.logger.Info("Submitting through relay", zap.String("relay", b.cfg.Flashbots.Relay))
	}

	settings, err := DispatcherSettings(b.cfg)
	if err != nil {
		return err
	}
	b.dispatcher, err = dispatcher.NewDispatcher(settings, b.client, submitter, key, b.providers, accountLock, auditLog,
		metrics.NewDispatcherMetrics(namespace, nil), b.logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	switch {
	case b.cfg.Dispatcher.Preflight && relay != nil:
		b.dispatcher.EnableTxPreflight(relay)
	case b.cfg.Dispatcher.Preflight:
		b.dispatcher.EnablePreflight(simulator.NewSimulator(b.client, b.logger))
	}

	b.logger.Info("Dispatcher ready", zap.String("owner", b.dispatcher.From().Hex()))
	return nil
}

// Run scans until ctx is done, handing every opportunity to the dispatcher,
// and serves metrics alongside when enabled.
func (b *Bot) Run(ctx context.Context) error {
	if b.dispatcher == nil {
		return fmt.Errorf("dispatch is not enabled")
	}
	b.logger.Info("Starting flash loan arbitrage bot",
		zap.Uint64("chain_id", b.cfg.ChainID),
		zap.Strings("exchanges", b.feeds.Exchanges()),
		zap.Int("cycles", b.scanner.Cycles()),
		zap.Int("cpus", runtime.NumCPU()))

	g, ctx := errgroup.WithContext(ctx)

	if b.cfg.PrometheusEnabled {
		g.Go(func() error {
			return metrics.Serve(ctx, b.cfg.PrometheusEndpoint, b.logger)
		})
		sys := monitor.NewSystemMonitor(metrics.NewSystemMetrics(namespace, nil), 15*time.Second, b.logger)
		g.Go(func() error {
			return sys.Run(ctx)
		})
	}

	g.Go(func() error {
		for opp := range b.scanner.Start(ctx) {
			b.logger.Info("Opportunity found",
				zap.String("id", opp.ID),
				zap.Stringer("cycle", opp.Cycle),
				zap.String("net_profit", opp.NetProfit.String()))
			b.dispatcher.TryDispatch(ctx, opp)
		}
		b.dispatcher.Wait()
		return nil
	})

	err := g.Wait()
	b.logger.Info("Bot stopped")
	return err
}

// ScanOnce runs a single poll.
func (b *Bot) ScanOnce(ctx context.Context) ([]*types.Opportunity, error) {
	return b.scanner.Poll(ctx)
}

// Replay runs opp through the executor model using its quoted reserves.
func (b *Bot) Replay(opp *types.Opportunity) (*simulator.ReplayResult, error) {
	provider, ok := b.providers.Provider(opp.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", opp.Provider)
	}
	owner := common.Address{0x01}
	if b.key != nil {
		owner = crypto.PubkeyToAddress(b.key.PublicKey)
	}
	return simulator.Replay(opp, provider, owner)
}

// Withdraw sends the executor's full balance of token to the owner.
func (b *Bot) Withdraw(ctx context.Context, executorAddr, token common.Address) (common.Hash, error) {
	if b.dispatcher == nil {
		return common.Hash{}, fmt.Errorf("dispatch is not enabled")
	}
	gasPrice, err := b.gas.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := b.dispatcher.Withdraw(ctx, executorAddr, token, gasPrice)
	if receipt != nil {
		return receipt.TxHash, err
	}
	return common.Hash{}, err
}

// Providers returns the configured flash-loan providers.
func (b *Bot) Providers() []flashloan.Provider {
	return b.providers.Providers()
}

// Close releases every connection the bot opened.
func (b *Bot) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("Close failed", zap.Error(err))
		}
	}
	b.closers = nil
}
