package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/report"
	"github.com/forkline/expansion-cli/pkg/notion"
)

var (
	runTenant  string
	runRegion  string
	runCity    string
	runState   string
	runLat     float64
	runLon     float64
	runRadius  float64
	runBrief   string
	runReport  string
	runPublish bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run expansion intelligence for a region",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunner(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		region := model.Region{
			TenantID:  runTenant,
			Name:      runRegion,
			City:      runCity,
			State:     runState,
			CenterLat: runLat,
			CenterLon: runLon,
			RadiusKM:  runRadius,
			Brief:     runBrief,
		}

		run, err := env.Runner.Run(ctx, region)
		if err != nil {
			return eris.Wrap(err, "expansion run")
		}

		env.Monitor.LogSnapshot()

		candidates, err := env.Store.ListCandidates(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "list candidates")
		}

		if runReport != "" {
			if err := report.WriteWorkbook(runReport, run, candidates); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", runReport))
		}

		if runPublish {
			if env.Notion == nil {
				return eris.New("notion is not configured (EXPANSION_NOTION_TOKEN, EXPANSION_NOTION_REPORT_DB)")
			}
			pageID, pubErr := notion.PublishRun(ctx, env.Notion, cfg.Notion.ReportDB, run, candidates)
			if pubErr != nil {
				return pubErr
			}
			zap.L().Info("run published to notion", zap.String("page_id", pageID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTenant, "tenant", "", "tenant ID (required)")
	runCmd.Flags().StringVar(&runRegion, "region", "", "region name (required)")
	runCmd.Flags().StringVar(&runCity, "city", "", "city")
	runCmd.Flags().StringVar(&runState, "state", "", "state")
	runCmd.Flags().Float64Var(&runLat, "lat", 0, "region center latitude")
	runCmd.Flags().Float64Var(&runLon, "lon", 0, "region center longitude")
	runCmd.Flags().Float64Var(&runRadius, "radius", 10, "search radius in km")
	runCmd.Flags().StringVar(&runBrief, "brief", "", "free-text operator guidance folded into prompts")
	runCmd.Flags().StringVar(&runReport, "report", "", "write an XLSX report to this path")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "publish the run summary to Notion")
	_ = runCmd.MarkFlagRequired("tenant")
	_ = runCmd.MarkFlagRequired("region")
	rootCmd.AddCommand(runCmd)
}
