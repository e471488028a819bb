// Command docquery explains and runs document filters against a shredded
// CQL table.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"docquery/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var logger *slog.Logger

	rootCmd := &cobra.Command{
		Use:           "docquery",
		Short:         "Run Mongo-style document filters against a shredded CQL table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(cmd)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (YAML, JSON or TOML); DOCQUERY_* env vars override it")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringSlice("debug-component", nil, "components to log at debug level (query, task, write, cassandra, monitor)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	logged := func() *slog.Logger { return logger }
	rootCmd.AddCommand(
		newExplainCmd(logged),
		newFindCmd(logged),
		newCountCmd(logged),
		newDeleteCmd(logged),
		newMonitorCmd(logged),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger builds the base logger from the --log-level and
// --debug-component flags.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	debug, _ := cmd.Flags().GetStringSlice("debug-component")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelName))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", levelName)
	}

	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Allow all levels; filtering done by ComponentFilterHandler
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, level)
	for _, c := range debug {
		filterHandler.SetLevel(c, slog.LevelDebug)
	}
	return slog.New(filterHandler), nil
}
