package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string
	add := func(format string, args ...interface{}) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	if c.ChainID == 0 {
		add("chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		add("rpc_endpoint must be specified")
	}

	tokens := make(map[common.Address]bool, len(c.Tokens))
	loanTokens := 0
	for i, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			add("tokens[%d]: invalid address %q", i, t.Address)
			continue
		}
		addr := common.HexToAddress(t.Address)
		if tokens[addr] {
			add("tokens[%d]: duplicate token %s", i, t.Address)
		}
		tokens[addr] = true
		if v, err := ParseAmount(t.QuoteAmount); err != nil || v.Sign() == 0 {
			add("tokens[%d]: quote_amount must be a positive integer", i)
		}
		if t.LoanAmount == "" {
			continue
		}
		loanTokens++
		if v, err := ParseAmount(t.LoanAmount); err != nil || v.Sign() == 0 {
			add("tokens[%d]: loan_amount must be a positive integer", i)
		}
		if v, err := ParseAmount(t.GasPriceRate); err != nil || v.Sign() == 0 {
			add("tokens[%d]: gas_price_rate must be a positive integer for a loan token", i)
		}
	}
	if loanTokens == 0 {
		add("at least one token needs a loan_amount")
	}

	if len(c.Exchanges) == 0 {
		add("at least one exchange must be configured")
	}
	exchanges := make(map[string]bool, len(c.Exchanges))
	pools := make(map[common.Address]bool)
	for i, ex := range c.Exchanges {
		if ex.ID == "" {
			add("exchanges[%d]: id must be specified", i)
		} else if exchanges[ex.ID] {
			add("exchanges[%d]: duplicate id %q", i, ex.ID)
		}
		exchanges[ex.ID] = true
		switch ex.Kind {
		case KindUniswapV2, KindSushiswapV2:
		default:
			add("exchanges[%d]: unknown kind %q", i, ex.Kind)
		}
		if ex.FeeBps >= 10000 {
			add("exchanges[%d]: fee_bps must be below 10000", i)
		}
		for j, p := range ex.Pools {
			if !common.IsHexAddress(p.Address) {
				add("exchanges[%d].pools[%d]: invalid address %q", i, j, p.Address)
				continue
			}
			addr := common.HexToAddress(p.Address)
			if pools[addr] {
				add("exchanges[%d].pools[%d]: pool %s configured twice", i, j, p.Address)
			}
			pools[addr] = true
			for _, tok := range []string{p.Token0, p.Token1} {
				if !common.IsHexAddress(tok) || !tokens[common.HexToAddress(tok)] {
					add("exchanges[%d].pools[%d]: token %q is not a configured token", i, j, tok)
				}
			}
			if strings.EqualFold(p.Token0, p.Token1) {
				add("exchanges[%d].pools[%d]: token0 and token1 must differ", i, j)
			}
		}
	}

	if len(c.FlashLoan.Providers) == 0 {
		add("at least one flash loan provider must be configured")
	}
	for i, p := range c.FlashLoan.Providers {
		if p.Name == "" {
			add("flash_loan.providers[%d]: name must be specified", i)
		}
		switch p.Kind {
		case ProviderAave, ProviderBalancer:
		default:
			add("flash_loan.providers[%d]: unknown kind %q", i, p.Kind)
		}
		if !common.IsHexAddress(p.Pool) {
			add("flash_loan.providers[%d]: invalid pool address %q", i, p.Pool)
		}
		if !common.IsHexAddress(p.Executor) {
			add("flash_loan.providers[%d]: invalid executor address %q", i, p.Executor)
		}
		if p.FeeBps >= 10000 {
			add("flash_loan.providers[%d]: fee_bps must be below 10000", i)
		}
	}

	s := c.Scanner
	if s.PollInterval <= 0 {
		add("scanner.poll_interval must be positive")
	}
	if s.FetchTimeout <= 0 {
		add("scanner.fetch_timeout must be positive")
	}
	if s.MaxConcurrency <= 0 {
		add("scanner.max_concurrency must be positive")
	}
	if _, err := ParseAmount(s.MinProfitMargin); err != nil {
		add("scanner.min_profit_margin: %v", err)
	}
	if s.SlippageBps >= 10000 {
		add("scanner.slippage_bps must be below 10000")
	}
	if s.GasUnitsPerLeg == 0 {
		add("scanner.gas_units_per_leg must be positive")
	}

	d := c.Dispatcher
	if d.InclusionTimeout <= 0 {
		add("dispatcher.inclusion_timeout must be positive")
	}
	if d.ReceiptPollInterval <= 0 {
		add("dispatcher.receipt_poll_interval must be positive")
	}
	if d.GasBumpPercent <= 100 {
		add("dispatcher.gas_bump_percent must be above 100")
	}
	if d.MaxGasMultiplierPercent < d.GasBumpPercent {
		add("dispatcher.max_gas_multiplier_percent must be at least gas_bump_percent")
	}
	if v, err := ParseAmount(d.MaxGasPrice); err != nil || v.Sign() == 0 {
		add("dispatcher.max_gas_price must be a positive integer")
	}
	if d.GasLimit == 0 {
		add("dispatcher.gas_limit must be positive")
	}
	if d.RevertCooldown > 0 && d.CooldownSize <= 0 {
		add("dispatcher.cooldown_size must be positive when revert_cooldown is set")
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 2*d.InclusionTimeout {
		add("redis.lock_ttl must exceed twice dispatcher.inclusion_timeout")
	}

	if err := c.RPCRateLimit.Validate(); err != nil {
		add("rpc_rate_limit: %v", err)
	}

	if c.Flashbots.Enabled && c.Flashbots.Relay == "" {
		add("flashbots.relay must be specified when flashbots is enabled")
	}

	switch c.Audit.Driver {
	case AuditSQLite, AuditPostgres:
		if c.Audit.DSN == "" {
			add("audit.dsn must be specified")
		}
	default:
		add("audit.driver %q is not supported", c.Audit.Driver)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

// RequirePrivateKey reports an error when no owner key is configured.
func (c *Config) RequirePrivateKey() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("owner private key is not set (%s)", EnvPrivateKey)
	}
	return nil
}
