package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

var (
	evaluateContextFile string
	evaluateWatch       bool
	evaluateMetricsAddr string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate an execution context against the rule set",
	Long: `Evaluate reads an execution context as JSON (from --context or stdin),
runs it through the rule engine, and prints the validation result as JSON.

The process exits 0 when the context is valid and 1 when any rule denied
or failed.

Examples:
  # Evaluate a context from stdin
  echo '{"agent_id":"a1","agent_type":"cli","action":"delete","user":{"id":"u1","roles":["developer"]}}' | govern evaluate

  # Evaluate from a file, keep watching the rule store for edits
  govern evaluate --context ctx.json --watch`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateContextFile, "context", "", "path to a context JSON file (default: stdin)")
	evaluateCmd.Flags().BoolVar(&evaluateWatch, "watch", false, "hot-reload the rule store while evaluating")
	evaluateCmd.Flags().StringVar(&evaluateMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (overrides config)")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deps, closeFn, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if evaluateWatch || deps.cfg.Store.Watch {
		deps.engine.StartWatching(ctx)
	}

	metricsAddr := deps.cfg.Metrics.Addr
	if evaluateMetricsAddr != "" {
		metricsAddr = evaluateMetricsAddr
	}
	if metricsAddr != "" {
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))
		srv := &stdhttp.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != stdhttp.ErrServerClosed {
				deps.logger.Warn("metrics listener stopped", "error", serveErr)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	execCtx, err := readContext()
	if err != nil {
		return err
	}

	result, err := deps.engine.ExecuteRules(ctx, *execCtx)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

// readContext parses the execution context from the configured source,
// defaulting the timestamp to now when absent.
func readContext() (*rule.ExecutionContext, error) {
	var data []byte
	var err error
	if evaluateContextFile != "" {
		data, err = os.ReadFile(evaluateContextFile)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}

	var execCtx rule.ExecutionContext
	if err := json.Unmarshal(data, &execCtx); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	if execCtx.Timestamp.IsZero() {
		execCtx.Timestamp = time.Now().UTC()
	}
	return &execCtx, nil
}
