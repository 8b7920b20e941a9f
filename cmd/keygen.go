package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a relay signing key",
	Long: `Generates a fresh secp256k1 key for authenticating bundles with the
relay. It identifies the searcher only and should hold no funds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Private Key: 0x%x\n", crypto.FromECDSA(key))
		fmt.Fprintf(cmd.OutOrStdout(), "Public Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
