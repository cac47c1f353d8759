// Package cmd provides the CLI commands for the govern tool.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "govern",
	Short: "govern - dynamic rule governance engine",
	Long: `govern evaluates context-dependent policy rules against agent actions
(secret access, deletion, mutation) and returns allow/deny/modify decisions.

Rules live in a versioned JSON or YAML document that is hot-reloaded when
edited externally. A canonical markdown rule document can additionally be
synchronized across multiple project roots.

Quick start:
  1. Run an evaluation (seeds default rules on first run):
       echo '{"agent_id":"a1","agent_type":"cli","action":"secret_read","user":{"id":"u1","roles":["developer"]}}' | govern evaluate
  2. Inspect the rule set: govern rules list
  3. Check governance health: govern status

Configuration:
  Config is loaded from govern.yaml in the current directory,
  $HOME/.govern/, or /etc/govern/.

  Environment variables can override config values with the GOVERN_ prefix.
  Example: GOVERN_STORE_PATH=/etc/govern/rules.json

Commands:
  evaluate    Evaluate an execution context against the rule set
  rules       List, add, and remove governance rules
  sync        Synchronize the canonical rule document to project roots
  status      Report governance distribution health
  analytics   Report rule set and execution analytics
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./govern.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger builds the process logger from the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
