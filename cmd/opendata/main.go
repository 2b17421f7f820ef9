package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendata-oss/opendata-go/internal/bench"
	"github.com/opendata-oss/opendata-go/pkg/config"
	logpkg "github.com/opendata-oss/opendata-go/pkg/log"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opendata",
		Short: "opendata log store CLI",
		Long:  "opendata is a per-key append-only log store. This CLI runs benchmarks and basic store operations.",
	}
	rootCmd.PersistentFlags().String("log-level", os.Getenv("OPENDATA_LOG_LEVEL"), "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", os.Getenv("OPENDATA_LOG_FORMAT"), "Log format: text|json (default text)")

	rootCmd.AddCommand(newBenchCommand())
	rootCmd.AddCommand(newAppendCommand())
	rootCmd.AddCommand(newScanCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newCLILogger builds the process logger from the persistent flags and
// redirects stdlib logging (used by Pebble) through it.
func newCLILogger(cmd *cobra.Command) logpkg.Logger {
	levelStr, _ := cmd.Flags().GetString("log-level")
	parsed, err := logpkg.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		parsed = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if format, _ := cmd.Flags().GetString("log-format"); format == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)
	return logger
}

func newBenchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a produce/consume benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newCLILogger(cmd)
			path, _ := cmd.Flags().GetString("config")

			cfg, err := bench.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			runner, err := bench.NewRunner(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			snap, err := runner.Run(ctx)
			if err != nil && err != context.Canceled {
				return fmt.Errorf("bench: %w", err)
			}
			fmt.Print(snap.Report())
			return nil
		},
	}
	cmd.Flags().String("config", "", "Benchmark config file (YAML or JSON; defaults + OPENDATA_* env when empty)")
	return cmd
}

// storageFromFlags maps --data-dir onto a storage variant: persistent with a
// local object store when set, in-memory otherwise.
func storageFromFlags(cmd *cobra.Command) (config.Storage, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		return config.InMemory{}, nil
	}
	st := config.Persistent{
		DataPath:    "store",
		ObjectStore: config.Local{Path: dataDir},
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

func newAppendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <key> <value>...",
		Short: "Append one or more values to a key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newCLILogger(cmd)
			st, err := storageFromFlags(cmd)
			if err != nil {
				return err
			}
			l, err := logdb.Open(logdb.Config{Storage: st})
			if err != nil {
				return err
			}
			defer l.Close()

			key := args[0]
			records := make([]logdb.Record, 0, len(args)-1)
			for _, v := range args[1:] {
				records = append(records, logdb.NewRecord([]byte(key), []byte(v)))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			res, err := l.Append(ctx, records)
			if err != nil {
				return err
			}
			if err := l.Flush(ctx); err != nil {
				return err
			}
			logger.Info("appended",
				logpkg.Str("key", key),
				logpkg.Int("records", len(records)),
				logpkg.Uint64("firstSequence", res.Sequence))
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory (in-memory store when empty)")
	return cmd
}

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <key> [start-sequence]",
		Short: "Read entries for a key from a start sequence",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newCLILogger(cmd)
			st, err := storageFromFlags(cmd)
			if err != nil {
				return err
			}
			l, err := logdb.Open(logdb.Config{Storage: st})
			if err != nil {
				return err
			}
			defer l.Close()

			var start uint64
			if len(args) == 2 {
				start, err = strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid start sequence %q: %w", args[1], err)
				}
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := l.Scan([]byte(args[0]), start, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%d\t%s\t%s\n", e.Sequence,
					time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339Nano), e.Value)
			}
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory (in-memory store when empty)")
	cmd.Flags().Int("limit", 100, "Maximum entries to return")
	return cmd
}
