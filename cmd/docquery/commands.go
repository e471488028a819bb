package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"

	"docquery/internal/cassandra"
	"docquery/internal/config"
	"docquery/internal/cql"
	"docquery/internal/filter"
	"docquery/internal/query"
	"docquery/internal/task"
	"docquery/internal/write"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// env is what a command needs to run: configuration, and for commands that
// touch the cluster, an open executor and engine.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	exec   *cassandra.Executor
	engine *query.Engine
	pool   *ants.Pool
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Release()
	}
	if e.exec != nil {
		e.exec.Close()
	}
}

// setup loads configuration and, when connect is set, opens the cluster
// session. The engine is always built; without a session it can only plan.
func setup(cmd *cobra.Command, logger *slog.Logger, connect bool) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}

	if n := cfg.Execution.WorkerPoolSize; n > 0 {
		e.pool, err = ants.NewPool(n)
		if err != nil {
			return nil, fmt.Errorf("worker pool: %w", err)
		}
	}

	if connect {
		e.exec, err = cassandra.Open(cfg.Cassandra, logger)
		if err != nil {
			e.close()
			return nil, err
		}
	}
	e.engine = newEngine(e.executor(), cfg, e.pool, logger)
	return e, nil
}

// executor returns the open session, or nil when setup did not connect.
func (e *env) executor() cql.Executor {
	if e.exec == nil {
		return nil
	}
	return e.exec
}

// newEngine builds an engine from the query and execution settings.
func newEngine(exec cql.Executor, cfg config.Config, pool *ants.Pool, logger *slog.Logger) *query.Engine {
	var limiter *rate.Limiter
	if sps := cfg.Execution.StatementsPerSecond; sps > 0 {
		limiter = rate.NewLimiter(rate.Limit(sps), max(1, int(sps)))
	}
	return query.New(exec, query.Options{
		Keyspace: cfg.Cassandra.Keyspace,
		Table:    cfg.Cassandra.Table,
		Limits: filter.Limits{
			MaxInValues:     cfg.Query.MaxInOperatorValueSize,
			MaxConjunctions: cfg.Query.MaxConjunctions,
		},
		DefaultPageSize:  cfg.Query.DefaultPageSize,
		MaxSortReadLimit: cfg.Query.MaxSortReadLimit,
		MaxCountLimit:    cfg.Query.MaxCountLimit,
		Concurrency:      cfg.Execution.MaxConcurrency,
		Pool:             pool,
		Limiter:          limiter,
		Logger:           logger,
	})
}

// filterFlags registers --filter and --sort. A value of "-" reads stdin.
func filterFlags(cmd *cobra.Command, withSort bool) {
	cmd.Flags().StringP("filter", "f", "{}", `filter document, e.g. {"age": {"$gte": 18}}; "-" reads stdin`)
	if withSort {
		cmd.Flags().StringP("sort", "s", "", `sort clause, e.g. {"name": 1, "age": -1}`)
	}
}

func parseFilter(cmd *cobra.Command) (*filter.LogicalExpression, error) {
	raw, _ := cmd.Flags().GetString("filter")
	data := []byte(raw)
	if raw == "-" {
		var err error
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read filter: %w", err)
		}
	}
	return filter.Build(data)
}

func parseSort(cmd *cobra.Command) (filter.Sort, error) {
	raw, _ := cmd.Flags().GetString("sort")
	return filter.ParseSort([]byte(raw))
}

func outputJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(w io.Writer, warnings []task.Warning) {
	for _, wn := range warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", wn.Code, wn.Message)
	}
}

// kv prints a key-value detail view.
func kv(w io.Writer, pairs [][2]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, pair := range pairs {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", pair[0], pair[1])
	}
	_ = tw.Flush()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newExplainCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the statements a filter compiles to, without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, logger(), false)
			if err != nil {
				return err
			}
			defer e.close()

			root, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			sort, err := parseSort(cmd)
			if err != nil {
				return err
			}
			plan, err := e.engine.Explain(root, sort)
			if err != nil {
				return err
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), explainJSON(plan))
			}
			_, err = io.WriteString(cmd.OutOrStdout(), plan.String())
			return err
		},
	}
	filterFlags(cmd, true)
	return cmd
}

type statementJSON struct {
	Branch  string   `json:"branch"`
	CQL     string   `json:"cql"`
	Values  []string `json:"values"`
	Indexes []string `json:"indexes"`
}

func explainJSON(plan query.Plan) []statementJSON {
	out := make([]statementJSON, len(plan.Statements))
	for i, s := range plan.Statements {
		vals := make([]string, 0, len(s.Values()))
		for _, v := range s.Values() {
			vals = append(vals, fmt.Sprint(v))
		}
		out[i] = statementJSON{
			Branch:  plan.DNF.Branches[i].String(),
			CQL:     s.CQL(),
			Values:  vals,
			Indexes: plan.Usage[i].Names(),
		}
	}
	return out
}

func newFindCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Run a filter and print matching documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			sort, err := parseSort(cmd)
			if err != nil {
				return err
			}
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			pageState, _ := cmd.Flags().GetString("page-state")

			e, err := setup(cmd, logger(), true)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			resp, err := e.engine.Find(ctx, query.Request{
				Filter:    root,
				Sort:      sort,
				Skip:      skip,
				Limit:     limit,
				PageSize:  pageSize,
				PageState: pageState,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON(cmd) {
				docs := make([]json.RawMessage, len(resp.Documents))
				for i, d := range resp.Documents {
					docs[i] = d.JSON
				}
				return printJSON(out, map[string]any{
					"documents":     docs,
					"nextPageState": resp.NextPageState,
					"warnings":      resp.Warnings,
				})
			}
			for _, d := range resp.Documents {
				fmt.Fprintln(out, string(d.JSON))
			}
			printWarnings(cmd.ErrOrStderr(), resp.Warnings)
			if resp.NextPageState != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "next page state:", resp.NextPageState)
			}
			return nil
		},
	}
	filterFlags(cmd, true)
	cmd.Flags().Int("skip", 0, "documents to skip (requires --sort)")
	cmd.Flags().Int("limit", 0, "maximum documents to return over all pages (0 for no limit)")
	cmd.Flags().Int("page-size", 0, "page size (default from config)")
	cmd.Flags().String("page-state", "", "page state from a previous find")
	return cmd
}

func newCountCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			e, err := setup(cmd, logger(), true)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			res, err := e.engine.Count(ctx, root)
			if err != nil {
				return err
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"count": res.Count, "moreData": res.MoreData, "warnings": res.Warnings})
			}
			kv(cmd.OutOrStdout(), [][2]string{
				{"count", strconv.Itoa(res.Count)},
				{"more data", strconv.FormatBool(res.MoreData)},
			})
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
	filterFlags(cmd, false)
	return cmd
}

func newDeleteCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents matching a filter, up to the configured maximum",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			e, err := setup(cmd, logger(), true)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			w := write.New(e.engine, nil, write.Options{
				LWTRetries:     e.cfg.Execution.LWTRetries,
				RetryDelay:     e.cfg.Execution.RetryDelay,
				MaxDeleteCount: e.cfg.Query.MaxDeleteCount,
				Concurrency:    e.cfg.Execution.MaxConcurrency,
				Pool:           e.pool,
				Logger:         e.logger,
			})
			res, err := w.DeleteMany(ctx, root)
			if err != nil {
				return err
			}
			kv(cmd.OutOrStdout(), [][2]string{
				{"deleted", strconv.Itoa(res.Deleted)},
				{"more data", strconv.FormatBool(res.MoreData)},
				{"failed", strconv.Itoa(len(res.Failures))},
			})
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "document %d: %v\n", f.Position, f.Err)
			}
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
	filterFlags(cmd, false)
	return cmd
}
