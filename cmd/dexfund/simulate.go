package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexFund/internal/config"
	"dexFund/internal/ledger"
	"dexFund/internal/metrics"
	"dexFund/internal/sim"
	"dexFund/internal/storage"
	"dexFund/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m, err := metrics.New("dexfund", registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	worldCfg, err := worldConfig(cfg)
	if err != nil {
		return err
	}
	world, err := sim.NewWorld(worldCfg, m, logger)
	if err != nil {
		return err
	}

	sinks := storage.NewMulti(storage.NewJsonlStorage(cfg.Out, cfg.Append))
	var reserves sim.ReserveSink
	var store *postgres.Store
	if cfg.PgDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PgDSN, cfg.PgTimeout)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		sinks.Add(store)
		reserves = store

		if last, ok, err := store.LoadState(ctx, cfg.RunName); err != nil {
			return fmt.Errorf("load run state: %w", err)
		} else if ok {
			logger.Info("previous run found", zap.String("run", cfg.RunName), zap.Uint64("block", last))
		}
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	runner := sim.NewRunner(sim.RunConfig{
		FlushEvery:   cfg.FlushEvery,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		StopOnError:  cfg.StopOnError,
	}, world, sinks, reserves, m, logger)

	logger.Info("simulate start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", store != nil),
		zap.String("pool", world.Pool.Address().Hex()),
		zap.String("fund", world.Fund.Address().Hex()),
		zap.Uint64("fee_multiplier", world.Pool.FeeMultiplier()),
	)

	summary, err := runner.Run(ctx, inputFile)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.SaveState(ctx, cfg.RunName, summary.Block); err != nil {
			return fmt.Errorf("save run state: %w", err)
		}
	}
	if cfg.MetricsOut != "" {
		if err := writeMetrics(registry, cfg.MetricsOut); err != nil {
			return err
		}
	}
	return nil
}

func worldConfig(cfg config.SimulateConfig) (sim.WorldConfig, error) {
	w := sim.DefaultWorldConfig()
	w.ChainID = cfg.ChainID
	w.StartTime = cfg.StartTime
	w.BaseSymbol = cfg.BaseSymbol
	w.QuoteSymbol = cfg.QuoteSymbol
	w.FeeMultiplier = cfg.FeeMultiplier
	w.ChequeFeePerThousand = cfg.ChequeFeePerThousand
	w.DeadlineWindow = cfg.DeadlineWindow
	if cfg.MinLiquidity != "" {
		v, err := ledger.ParseAmount(cfg.MinLiquidity)
		if err != nil {
			return w, fmt.Errorf("min liquidity: %w", err)
		}
		w.MinimumLiquidity = v
	}
	if cfg.MaxLiquidity != "" {
		v, err := ledger.ParseAmount(cfg.MaxLiquidity)
		if err != nil {
			return w, fmt.Errorf("max liquidity: %w", err)
		}
		w.MaximumLiquidity = v
	}
	return w, nil
}

func writeMetrics(gatherer prometheus.Gatherer, path string) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open metrics file: %w", err)
	}
	defer file.Close()
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(file, family); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
