package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils"
)

var simulate bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan and print the opportunities found",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, _, err := newBot(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.Close()

		opps, err := b.ScanOnce(cmd.Context())
		if err != nil {
			return err
		}
		if len(opps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no opportunities")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CYCLE\tPROVIDER\tLOAN\tGROSS\tFEE\tGAS\tNET\tREPLAY")
		for _, opp := range opps {
			replay := "-"
			if simulate {
				r, err := b.Replay(opp)
				switch {
				case err != nil:
					utils.GetLogger().Warn("Replay failed", zap.String("id", opp.ID), zap.Error(err))
					replay = "error"
				case r.Reason != "":
					replay = r.Reason
				default:
					replay = r.Profit.String()
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				opp.Cycle, opp.Provider, opp.LoanAmount, opp.GrossOutput,
				opp.FlashLoanFee, opp.GasCost, opp.NetProfit, replay)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&simulate, "simulate", false, "replay each opportunity through the executor model")
}
