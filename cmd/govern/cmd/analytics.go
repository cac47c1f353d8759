package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/service"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Report rule set and execution analytics",
	Long: `Analytics reports the current rule set composition (counts by type
and scope) and execution statistics from history: total executions, success
rate, average execution time, the ten most-executed rules, and the ten most
recent history entries.

When a history archive is configured, archived totals are merged in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		report := service.NewAnalyticsService(deps.engine).GetAnalytics()

		payload := map[string]any{"analytics": report}
		if deps.archive != nil {
			if total, archiveErr := deps.archive.TotalExecutions(ctx); archiveErr == nil {
				top, _ := deps.archive.TopExecuted(ctx, 10)
				payload["archive"] = map[string]any{
					"total_executions": total,
					"top_rules":        top,
				}
			} else {
				deps.logger.Warn("archive query failed", "error", archiveErr)
			}
		}

		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
}
