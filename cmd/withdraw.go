package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	withdrawToken    string
	withdrawProvider string
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw an executor's token balance to the owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, cfg, err := newBot(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.Close()

		token := common.HexToAddress(withdrawToken)
		if t, ok := cfg.TokenBySymbol(withdrawToken); ok {
			token = common.HexToAddress(t.Address)
		} else if !common.IsHexAddress(withdrawToken) {
			return fmt.Errorf("unknown token %q", withdrawToken)
		}

		matched := 0
		for _, p := range b.Providers() {
			if withdrawProvider != "" && p.Name() != withdrawProvider {
				continue
			}
			matched++
			hash, err := b.Withdraw(cmd.Context(), p.Executor(), token)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.Name(), p.Executor().Hex(), hash.Hex())
		}
		if matched == 0 {
			return fmt.Errorf("no executor for provider %q", withdrawProvider)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(withdrawCmd)
	withdrawCmd.Flags().StringVar(&withdrawToken, "token", "", "token symbol or address")
	withdrawCmd.Flags().StringVar(&withdrawProvider, "provider", "", "only withdraw from this provider's executor")
	_ = withdrawCmd.MarkFlagRequired("token")
}
