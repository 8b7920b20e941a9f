package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Scan and execute arbitrage until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, _, err := newBot(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.Close()
		return b.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
