package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runDomain   string
	runQuery    string
	runQuestion string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full market intelligence analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.pipeline.Run(ctx, runDomain, runQuery, runQuestion)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", summary.RunID),
			zap.Bool("success", summary.Success),
			zap.String("report", summary.ReportFilename),
			zap.String("output_dir", summary.OutputDir),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDomain, "domain", "", "target market domain (required)")
	runCmd.Flags().StringVar(&runQuery, "query", "", "analysis query")
	runCmd.Flags().StringVar(&runQuestion, "question", "", "optional question answered against the collected data")
	_ = runCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(runCmd)
}
