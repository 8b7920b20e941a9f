package bot

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "testdata", "config.json"))
	require.NoError(t, err)
	cfg, err := config.Parse(data, ".json")
	require.NoError(t, err)
	return cfg
}

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func TestScannerSettings(t *testing.T) {
	s, err := ScannerSettings(testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, s.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, s.FetchTimeout)
	assert.Equal(t, 8, s.MaxConcurrency)
	assert.Equal(t, uint32(50), s.SlippageBps)
	assert.Equal(t, "1000000000000000", s.MinProfitMargin.String())

	require.Len(t, s.Tokens, 2)
	assert.Equal(t, weth, s.Tokens[0].Address)
	assert.Equal(t, "10000000000000000000", s.Tokens[0].LoanAmount.String())
	assert.Equal(t, "1000000000000000000", s.Tokens[0].GasPriceRate.String())
	assert.Equal(t, "USDC", s.Tokens[1].Symbol)
	assert.Nil(t, s.Tokens[1].LoanAmount)
	assert.Nil(t, s.Tokens[1].GasPriceRate)

	require.Len(t, s.Pools, 2)
	assert.Equal(t, "uniswap", s.Pools[0].Exchange)
	assert.Equal(t, "sushiswap", s.Pools[1].Exchange)
	assert.Equal(t, uint32(30), s.Pools[0].FeeBps)
	assert.Equal(t, usdc, s.Pools[0].Pair.Token0)
	assert.Equal(t, weth, s.Pools[0].Pair.Token1)
	assert.Equal(t, common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), s.Pools[0].Pair.Pool)
}

func TestScannerSettingsBadMargin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scanner.MinProfitMargin = "lots"
	_, err := ScannerSettings(cfg)
	assert.ErrorContains(t, err, "min_profit_margin")
}

func TestDispatcherSettings(t *testing.T) {
	s, err := DispatcherSettings(testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(1), s.ChainID)
	assert.Equal(t, 36*time.Second, s.InclusionTimeout)
	assert.Equal(t, time.Second, s.ReceiptPollInterval)
	assert.Equal(t, uint64(125), s.GasBumpPercent)
	assert.Equal(t, uint64(200), s.MaxGasMultiplierPercent)
	assert.Equal(t, "300000000000", s.MaxGasPrice.String())
	assert.Equal(t, uint64(600000), s.GasLimit)
	assert.Equal(t, time.Minute, s.RevertCooldown)
	assert.Equal(t, 256, s.CooldownSize)
}

func TestNewProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlashLoan.Providers = append(cfg.FlashLoan.Providers, config.ProviderConfig{
		Name:     "balancer",
		Kind:     config.ProviderBalancer,
		Pool:     "0xBA12222222228d8Ba445958a75a0704d566BF2C8",
		Executor: "0x00000000000000000000000000000000000000b1",
	})

	m, err := NewProviders(cfg, metrics.NewFlashLoanMetrics("test", nil), zaptest.NewLogger(t))
	require.NoError(t, err)

	providers := m.Providers()
	require.Len(t, providers, 2)

	a, ok := m.Provider("aave-v3")
	require.True(t, ok)
	assert.IsType(t, &aave.Provider{}, a)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), a.Executor())
	assert.Equal(t, uint32(5), a.FeeBps())

	// Balancer is free, so it wins selection.
	p, fee, err := m.Select(weth, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "balancer", p.Name())
	assert.Zero(t, fee.Sign())

	cfg.FlashLoan.Providers = []config.ProviderConfig{{Name: "x", Kind: "dydx"}}
	_, err = NewProviders(cfg, metrics.NewFlashLoanMetrics("test2", nil), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unsupported kind")
}

func TestNewFeedsRejectsUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exchanges[0].Kind = "curve"
	_, err := NewFeeds(cfg, nil, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unsupported kind")
}

func TestParseKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hex := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, in := range []string{hex, "0x" + hex, " 0x" + hex + "\n"} {
		got, err := ParseKey(in)
		require.NoError(t, err)
		assert.Equal(t, key.D, got.D)
	}

	_, err = ParseKey("0xnothex")
	assert.ErrorContains(t, err, "invalid private key")
}

func TestOpenAudit(t *testing.T) {
	ctx := context.Background()
	log, err := OpenAudit(ctx, config.AuditConfig{
		Driver: config.AuditSQLite,
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(ctx, &types.ExecutionResult{
		OpportunityID: "a",
		Cycle:         "WETH -uniswap-> USDC -sushiswap-> WETH",
		Success:       true,
		Profit:        big.NewInt(7),
		Attempts:      1,
		Timestamp:     time.Now(),
	}))
	got, err := log.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].OpportunityID)

	_, err = OpenAudit(ctx, config.AuditConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, "unsupported audit driver")
}
