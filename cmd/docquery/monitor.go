package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"docquery/internal/config"
	"docquery/internal/cql"
	"docquery/internal/filter"
	"docquery/internal/logging"
	"docquery/internal/query"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
)

// monitor counts matching documents on an interval. A reloaded config
// replaces the engine between runs; the session and its connection
// settings stay as they were at startup.
type monitor struct {
	exec   cql.Executor
	pool   *ants.Pool
	base   *slog.Logger
	logger *slog.Logger
	engine atomic.Pointer[query.Engine]
}

func newMonitor(exec cql.Executor, cfg config.Config, pool *ants.Pool, logger *slog.Logger) *monitor {
	m := &monitor{
		exec:   exec,
		pool:   pool,
		base:   logger,
		logger: logging.Default(logger).With("component", "monitor"),
	}
	m.engine.Store(newEngine(exec, cfg, pool, logger))
	return m
}

// reload is the config watch callback. A config that fails to load keeps
// the current engine.
func (m *monitor) reload(cfg config.Config, err error) {
	if err != nil {
		m.logger.Warn("config change rejected, keeping previous settings", "error", err)
		return
	}
	if m.pool != nil && cfg.Execution.WorkerPoolSize > 0 {
		m.pool.Tune(cfg.Execution.WorkerPoolSize)
	}
	m.engine.Store(newEngine(m.exec, cfg, m.pool, m.base))
	m.logger.Info("config reloaded",
		"max_count_limit", cfg.Query.MaxCountLimit,
		"statements_per_second", cfg.Execution.StatementsPerSecond)
}

// run counts times times (0 runs until ctx is done), waiting interval
// between counts.
func (m *monitor) run(ctx context.Context, root *filter.LogicalExpression, interval time.Duration, times int, out, errOut io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; times == 0 || i < times; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		res, err := m.engine.Load().Count(ctx, root)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		more := ""
		if res.MoreData {
			more = "+"
		}
		fmt.Fprintf(out, "%s\t%d%s\n", time.Now().Format(time.RFC3339), res.Count, more)
		printWarnings(errOut, res.Warnings)
	}
	return nil
}

func newMonitorCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Count matching documents on an interval, applying config file changes as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetDuration("interval")
			times, _ := cmd.Flags().GetInt("times")
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			e, err := setup(cmd, logger(), true)
			if err != nil {
				return err
			}
			defer e.close()

			m := newMonitor(e.executor(), e.cfg, e.pool, e.logger)
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if _, err := config.Watch(path, m.reload); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()
			return m.run(ctx, root, interval, times, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	filterFlags(cmd, false)
	cmd.Flags().Duration("interval", 10*time.Second, "time between counts")
	cmd.Flags().Int("times", 0, "number of counts to run (0 until interrupted)")
	return cmd
}
