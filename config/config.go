package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

const (
	KindUniswapV2   = "uniswap_v2"
	KindSushiswapV2 = "sushiswap_v2"

	ProviderAave     = "aave"
	ProviderBalancer = "balancer"

	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
)

type Config struct {
	ChainID     uint64 `json:"chain_id" yaml:"chain_id" toml:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint" toml:"rpc_endpoint"`

	// Owner key of the executor contracts; read from the environment only.
	PrivateKey string `json:"-" yaml:"-" toml:"-"`

	Tokens     []TokenConfig    `json:"tokens" yaml:"tokens" toml:"tokens"`
	Exchanges  []ExchangeConfig `json:"exchanges" yaml:"exchanges" toml:"exchanges"`
	FlashLoan  FlashLoanConfig  `json:"flash_loan" yaml:"flash_loan" toml:"flash_loan"`
	Scanner    ScannerConfig    `json:"scanner" yaml:"scanner" toml:"scanner"`
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher" toml:"dispatcher"`

	RPCRateLimit RateLimitConfig `json:"rpc_rate_limit" yaml:"rpc_rate_limit" toml:"rpc_rate_limit"`
	Flashbots    FlashbotsConfig `json:"flashbots" yaml:"flashbots" toml:"flashbots"`
	Audit        AuditConfig     `json:"audit" yaml:"audit" toml:"audit"`
	Redis        RedisConfig     `json:"redis" yaml:"redis" toml:"redis"`

	PrometheusEnabled  bool   `json:"prometheus_enabled" yaml:"prometheus_enabled" toml:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint" yaml:"prometheus_endpoint" toml:"prometheus_endpoint"`
}

// TokenConfig describes a token the scanner may route through. Tokens with a
// LoanAmount are also borrowed and must carry a GasPriceRate, the number of
// token units one whole native coin buys.
type TokenConfig struct {
	Symbol       string `json:"symbol" yaml:"symbol" toml:"symbol"`
	Address      string `json:"address" yaml:"address" toml:"address"`
	Decimals     uint8  `json:"decimals" yaml:"decimals" toml:"decimals"`
	QuoteAmount  string `json:"quote_amount" yaml:"quote_amount" toml:"quote_amount"`
	LoanAmount   string `json:"loan_amount" yaml:"loan_amount" toml:"loan_amount"`
	GasPriceRate string `json:"gas_price_rate" yaml:"gas_price_rate" toml:"gas_price_rate"`
}

type ExchangeConfig struct {
	ID     string       `json:"id" yaml:"id" toml:"id"`
	Kind   string       `json:"kind" yaml:"kind" toml:"kind"`
	FeeBps uint32       `json:"fee_bps" yaml:"fee_bps" toml:"fee_bps"`
	Pools  []PoolConfig `json:"pools" yaml:"pools" toml:"pools"`
}

type PoolConfig struct {
	Address string `json:"address" yaml:"address" toml:"address"`
	Token0  string `json:"token0" yaml:"token0" toml:"token0"`
	Token1  string `json:"token1" yaml:"token1" toml:"token1"`
}

type FlashLoanConfig struct {
	Providers []ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
}

// ProviderConfig is a lending pool and the executor contract deployed against it.
type ProviderConfig struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Kind     string `json:"kind" yaml:"kind" toml:"kind"`
	Pool     string `json:"pool" yaml:"pool" toml:"pool"`
	Executor string `json:"executor" yaml:"executor" toml:"executor"`
	FeeBps   uint32 `json:"fee_bps" yaml:"fee_bps" toml:"fee_bps"`
}

type ScannerConfig struct {
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	FetchTimeout    Duration `json:"fetch_timeout" yaml:"fetch_timeout" toml:"fetch_timeout"`
	MaxConcurrency  int      `json:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency"`
	MinProfitMargin string   `json:"min_profit_margin" yaml:"min_profit_margin" toml:"min_profit_margin"`
	SlippageBps     uint32   `json:"slippage_bps" yaml:"slippage_bps" toml:"slippage_bps"`
	GasUnitsBase    uint64   `json:"gas_units_base" yaml:"gas_units_base" toml:"gas_units_base"`
	GasUnitsPerLeg  uint64   `json:"gas_units_per_leg" yaml:"gas_units_per_leg" toml:"gas_units_per_leg"`
}

type DispatcherConfig struct {
	InclusionTimeout        Duration `json:"inclusion_timeout" yaml:"inclusion_timeout" toml:"inclusion_timeout"`
	ReceiptPollInterval     Duration `json:"receipt_poll_interval" yaml:"receipt_poll_interval" toml:"receipt_poll_interval"`
	GasBumpPercent          uint64   `json:"gas_bump_percent" yaml:"gas_bump_percent" toml:"gas_bump_percent"`
	MaxGasMultiplierPercent uint64   `json:"max_gas_multiplier_percent" yaml:"max_gas_multiplier_percent" toml:"max_gas_multiplier_percent"`
	MaxGasPrice             string   `json:"max_gas_price" yaml:"max_gas_price" toml:"max_gas_price"`
	GasLimit                uint64   `json:"gas_limit" yaml:"gas_limit" toml:"gas_limit"`
	Preflight               bool     `json:"preflight" yaml:"preflight" toml:"preflight"`
	RevertCooldown          Duration `json:"revert_cooldown" yaml:"revert_cooldown" toml:"revert_cooldown"`
	CooldownSize            int      `json:"cooldown_size" yaml:"cooldown_size" toml:"cooldown_size"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size" toml:"burst_size"`
}

type FlashbotsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Relay   string `json:"relay" yaml:"relay" toml:"relay"`
	Blocks  int    `json:"blocks" yaml:"blocks" toml:"blocks"`

	// Relay authentication key; read from the environment only.
	SigningKey string `json:"-" yaml:"-" toml:"-"`
}

type AuditConfig struct {
	Driver string   `json:"driver" yaml:"driver" toml:"driver"`
	DSN    string   `json:"dsn" yaml:"dsn" toml:"dsn"`
	S3     S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix   string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Region   string `json:"region" yaml:"region" toml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`

	AccessKeyID     string `json:"-" yaml:"-" toml:"-"`
	SecretAccessKey string `json:"-" yaml:"-" toml:"-"`
}

type RedisConfig struct {
	Addr     string   `json:"addr" yaml:"addr" toml:"addr"`
	DB       int      `json:"db" yaml:"db" toml:"db"`
	LockTTL  Duration `json:"lock_ttl" yaml:"lock_ttl" toml:"lock_ttl"`
	Password string   `json:"-" yaml:"-" toml:"-"`
}

// LoadConfig reads a JSON, YAML or TOML file (chosen by extension), applies
// environment overrides and validates the result.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".flasharb.json")
	}

	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(cfgFile))
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".json", ".yaml", ".yml", ".toml").
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode yaml config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode toml config: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode json config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Audit.Driver == "" {
		c.Audit.Driver = AuditSQLite
	}
	if c.Audit.Driver == AuditSQLite && c.Audit.DSN == "" {
		c.Audit.DSN = "flasharb.db"
	}
	if c.PrometheusEndpoint == "" {
		c.PrometheusEndpoint = ":9090"
	}
	if c.Flashbots.Blocks == 0 {
		c.Flashbots.Blocks = 3
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = Duration(c.Dispatcher.InclusionTimeout * 3)
	}
}

// SaveConfig writes cfg as indented JSON. Secrets are never written.
func SaveConfig(cfg *Config, cfgFile string) error {
	file, err := os.Create(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return v, nil
}

// Token returns the token configured at address.
func (c *Config) Token(address common.Address) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if common.HexToAddress(t.Address) == address {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// TokenBySymbol returns the token configured with the given symbol or address.
func (c *Config) TokenBySymbol(s string) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, s) || strings.EqualFold(t.Address, s) {
			return t, true
		}
	}
	return TokenConfig{}, false
}
