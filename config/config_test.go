package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFormats(t *testing.T) {
	var loaded []*Config
	for _, name := range []string{"config.json", "config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(filepath.Join("testdata", name))
			require.NoError(t, err)

			assert.Equal(t, uint64(1), cfg.ChainID)
			assert.Len(t, cfg.Tokens, 2)
			assert.Len(t, cfg.Exchanges, 2)
			assert.Equal(t, 2*time.Second, cfg.Scanner.PollInterval.Std())
			assert.Equal(t, 1500*time.Millisecond, cfg.Scanner.FetchTimeout.Std())
			assert.Equal(t, time.Minute, cfg.Dispatcher.RevertCooldown.Std())
			assert.Equal(t, uint32(5), cfg.FlashLoan.Providers[0].FeeBps)
			assert.Equal(t, "10000000000000000000", cfg.Tokens[0].LoanAmount)
			assert.Equal(t, ":9090", cfg.PrometheusEndpoint)
			loaded = append(loaded, cfg)
		})
	}

	require.Len(t, loaded, 3)
	assert.Equal(t, loaded[0], loaded[1])
	assert.Equal(t, loaded[0], loaded[2])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrivateKey, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv(EnvRPCEndpoint, "http://node:8545")
	t.Setenv(EnvRedisAddr, "redis:6379")

	cfg, err := LoadConfig(filepath.Join("testdata", "config.json"))
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.RPCEndpoint)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.NoError(t, cfg.RequirePrivateKey())
	assert.Equal(t, 3*cfg.Dispatcher.InclusionTimeout, cfg.Redis.LockTTL)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := LoadConfig(filepath.Join("testdata", "config.json"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorContains []string
	}{
		{
			name: "missing policy parameters",
			mutate: func(c *Config) {
				c.Scanner.MinProfitMargin = ""
				c.Scanner.GasUnitsPerLeg = 0
			},
			errorContains: []string{"scanner.min_profit_margin", "scanner.gas_units_per_leg"},
		},
		{
			name: "unknown pool token",
			mutate: func(c *Config) {
				c.Exchanges[0].Pools[0].Token0 = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
			},
			errorContains: []string{"is not a configured token"},
		},
		{
			name: "gas bump too small",
			mutate: func(c *Config) {
				c.Dispatcher.GasBumpPercent = 100
			},
			errorContains: []string{"gas_bump_percent must be above 100"},
		},
		{
			name: "loan token without gas rate",
			mutate: func(c *Config) {
				c.Tokens[0].GasPriceRate = ""
			},
			errorContains: []string{"gas_price_rate"},
		},
		{
			name: "no loan token and bad provider",
			mutate: func(c *Config) {
				c.Tokens[0].LoanAmount = ""
				c.FlashLoan.Providers[0].Kind = "dydx"
			},
			errorContains: []string{"at least one token needs a loan_amount", `unknown kind "dydx"`},
		},
		{
			name: "duplicate exchange",
			mutate: func(c *Config) {
				c.Exchanges[1].ID = "uniswap"
			},
			errorContains: []string{`duplicate id "uniswap"`},
		},
		{
			name: "lock ttl shorter than a resubmit cycle",
			mutate: func(c *Config) {
				c.Redis.Addr = "localhost:6379"
				c.Redis.LockTTL = 2 * c.Dispatcher.InclusionTimeout
			},
			errorContains: []string{"redis.lock_ttl must exceed twice dispatcher.inclusion_timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			for _, s := range tt.errorContains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestValidateDefaultLockTTL(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "config.json"))
	require.NoError(t, err)

	cfg.Redis.Addr = "localhost:6379"
	assert.Equal(t, 3*cfg.Dispatcher.InclusionTimeout, cfg.Redis.LockTTL)
	assert.NoError(t, cfg.Validate())

	cfg.Redis.LockTTL = 2*cfg.Dispatcher.InclusionTimeout + Duration(time.Second)
	assert.NoError(t, cfg.Validate())
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	_, err = ParseAmount("-1")
	assert.Error(t, err)

	_, err = ParseAmount("1e18")
	assert.Error(t, err)
}

func TestSaveConfigOmitsSecrets(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "config.json"))
	require.NoError(t, err)
	cfg.PrivateKey = "secret-key"

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-key")

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Scanner, reloaded.Scanner)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Parse([]byte("x"), ".ini")
	assert.ErrorContains(t, err, "unsupported config format")
}
