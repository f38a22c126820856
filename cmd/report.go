package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/report"
	"github.com/forkline/expansion-cli/pkg/notion"
)

var (
	reportOut    string
	reportNotion bool
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Export a completed run as an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "report")
		}
		candidates, err := st.ListCandidates(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "report candidates")
		}

		if err := report.WriteWorkbook(reportOut, run, candidates); err != nil {
			return err
		}
		zap.L().Info("report written",
			zap.String("run_id", run.ID),
			zap.String("path", reportOut),
			zap.Int("candidates", len(candidates)),
		)

		if reportNotion {
			if cfg.Notion.Token == "" || cfg.Notion.ReportDB == "" {
				return eris.New("notion is not configured (EXPANSION_NOTION_TOKEN, EXPANSION_NOTION_REPORT_DB)")
			}
			client := notion.NewClient(cfg.Notion.Token)
			pageID, pubErr := notion.PublishRun(ctx, client, cfg.Notion.ReportDB, run, candidates)
			if pubErr != nil {
				return pubErr
			}
			zap.L().Info("run published to notion", zap.String("page_id", pageID))
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "expansion-report.xlsx", "output path for the workbook")
	reportCmd.Flags().BoolVar(&reportNotion, "notion", false, "also publish the run summary to Notion")
	rootCmd.AddCommand(reportCmd)
}
