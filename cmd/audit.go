package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	s3archive "github.com/michaelpento.lv/flasharb/audit/s3"
	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/utils"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and archive the execution audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the most recent execution results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := bot.OpenAudit(cmd.Context(), cfg.Audit)
		if err != nil {
			return err
		}
		defer log.Close()

		results, err := log.List(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCYCLE\tTX\tSUCCESS\tPROFIT\tATTEMPTS\tREASON")
		for _, r := range results {
			profit := "-"
			if r.Profit != nil {
				profit = r.Profit.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\t%s\n",
				r.Timestamp.Format(time.RFC3339), r.Cycle, r.TxHash.Hex(),
				r.Success, profit, r.Attempts, r.FailureReason)
		}
		return w.Flush()
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload the execution audit log to S3 as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Audit.S3.Bucket == "" {
			return fmt.Errorf("audit.s3.bucket is not configured")
		}

		log, err := bot.OpenAudit(cmd.Context(), cfg.Audit)
		if err != nil {
			return err
		}
		defer log.Close()

		results, err := log.List(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}

		exporter, err := s3archive.NewExporter(cmd.Context(), cfg.Audit.S3, utils.GetLogger())
		if err != nil {
			return err
		}
		key, err := exporter.Export(cmd.Context(), results)
		if err != nil {
			return err
		}
		utils.GetLogger().Info("Audit log exported",
			zap.String("bucket", cfg.Audit.S3.Bucket),
			zap.String("key", key),
			zap.Int("entries", len(results)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditExportCmd)
	auditCmd.PersistentFlags().IntVar(&auditLimit, "limit", 50, "number of most recent entries, 0 for all")
}
