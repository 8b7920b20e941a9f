package cmd

import (
	"context"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flash-loan arbitrage bot for constant-product DEXes",
	Long: `flasharb polls configured DEX pools for cyclic price discrepancies,
prices each cycle against flash-loan fees and gas, and executes the
profitable ones atomically through an on-chain executor contract.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flasharb.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	utils.GetLogger().Debug("Configuration loaded",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Int("tokens", len(cfg.Tokens)),
		zap.Int("exchanges", len(cfg.Exchanges)),
		zap.Int("providers", len(cfg.FlashLoan.Providers)))
	return cfg, nil
}

// newBot loads the configuration and connects, enabling the dispatcher when
// dispatch is set.
func newBot(ctx context.Context, dispatch bool) (*bot.Bot, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	b, err := bot.New(ctx, cfg, utils.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	if dispatch {
		if err := b.EnableDispatch(ctx); err != nil {
			b.Close()
			return nil, nil, err
		}
	}
	return b, cfg, nil
}
