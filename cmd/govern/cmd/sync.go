package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the canonical rule document to project roots",
	Long: `Sync reads the canonical markdown rule document, stamps a fresh
version token, and writes a replica (with a provenance header) into every
configured project root. A failed root never aborts the others; failures
are collected on the sync record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		syncer, err := deps.newSyncService()
		if err != nil {
			return err
		}

		record, err := syncer.Synchronize(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var statusProbe bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report governance distribution health",
	Long: `Status reports rule distribution health and operator recommendations.

By default this is read-only: a fresh process reports "error" health until
a synchronization has run. Pass --probe to run a synchronization pass first
so the report reflects the current distribution state; the probe writes
replicas into every configured root, exactly like govern sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		deps, closeFn, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		syncer, err := deps.newSyncService()
		if err != nil {
			return err
		}

		if statusProbe {
			if _, syncErr := syncer.Synchronize(ctx); syncErr != nil {
				deps.logger.Warn("probe synchronization failed", "error", syncErr)
			}
		}

		out, err := json.MarshalIndent(syncer.GovernanceStatus(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "run a synchronization pass before reporting (writes to all roots)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
