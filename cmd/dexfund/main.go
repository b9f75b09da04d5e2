package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "dexfund",
		Short:        "Constant-product pool and arbitrage fund simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply a JSONL scenario to a pool, fund and cheque desk",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("in", "", "input scenario JSONL")
	simulateCmd.Flags().String("out", "./data/events.jsonl", "output event log JSONL")
	simulateCmd.Flags().Bool("append", false, "append to the output instead of truncating it")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	simulateCmd.Flags().Duration("pg-timeout", 10*time.Second, "timeout per Postgres write")
	simulateCmd.Flags().String("run-name", "default", "name stored with the run state in Postgres")
	simulateCmd.Flags().Int("flush-every", 100, "flush events every N applied ops (0 flushes at the end)")
	simulateCmd.Flags().Int("max-retries", 5, "maximum retry attempts per flush")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	simulateCmd.Flags().Bool("stop-on-error", false, "abort on the first failed op")
	simulateCmd.Flags().Uint64("chain-id", 56, "chain id stamped on events")
	simulateCmd.Flags().Uint64("start-time", 1_700_000_000, "scenario start time (unix seconds)")
	simulateCmd.Flags().String("base-symbol", "WBNB", "base asset symbol")
	simulateCmd.Flags().String("quote-symbol", "ADNS", "quote asset symbol")
	simulateCmd.Flags().Uint64("fee-multiplier", 997, "pool fee multiplier per thousand")
	simulateCmd.Flags().String("min-liquidity", "", "minimum reserve product")
	simulateCmd.Flags().String("max-liquidity", "", "maximum reserve product")
	simulateCmd.Flags().Uint64("cheque-fee", 10, "cheque fee per thousand")
	simulateCmd.Flags().Uint64("deadline-window", 300, "default deadline offset in seconds")
	simulateCmd.Flags().String("metrics-out", "", "write Prometheus text metrics to this path")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a constant-product swap",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("reserve-in", "", "reserve of the input asset")
	quoteCmd.Flags().String("reserve-out", "", "reserve of the output asset")
	quoteCmd.Flags().String("amount", "", "input amount, or output amount with --exact-out")
	quoteCmd.Flags().Uint64("fee-multiplier", 997, "fee multiplier per thousand")
	quoteCmd.Flags().Int32("decimals", 18, "asset decimals for display")
	quoteCmd.Flags().Bool("exact-out", false, "treat amount as the desired output")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode an event log into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input event log JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("engine-kind", "", "emitter address to engine kind (comma-separated address=kind)")
	decodeCmd.Flags().String("engine-base", "", "pool address to base asset (comma-separated address=asset)")
	decodeCmd.Flags().Uint64("window", 0, "aggregate pool swaps into windows of this many seconds (0 disables)")
	decodeCmd.Flags().String("windows-out", "./data/windows.jsonl", "output window metrics JSONL")
	decodeCmd.Flags().Uint64("fee-per-thousand", 3, "swap fee taken from each input, per thousand")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
