package sim

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"dexFund/internal/metrics"
	"dexFund/internal/model"
	"dexFund/internal/storage"
)

// ReserveSink persists reserve snapshots.
type ReserveSink interface {
	UpsertReserves(ctx context.Context, snapshots []model.ReserveSnapshot) error
}

// RunConfig holds runtime settings for a scenario run.
type RunConfig struct {
	FlushEvery   int
	MaxRetries   int
	RetryBackoff time.Duration
	StopOnError  bool
}

// Summary reports a finished run.
type Summary struct {
	Total    int            `json:"total"`
	Applied  int            `json:"applied"`
	Failed   int            `json:"failed"`
	Flushed  int            `json:"flushed"`
	Block    uint64         `json:"block"`
	Failures map[string]int `json:"failures,omitempty"`
}

// Runner applies scenario operations to a world and ships the resulting
// events to storage.
type Runner struct {
	cfg      RunConfig
	world    *World
	sink     storage.Storage
	reserves ReserveSink
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewRunner(cfg RunConfig, world *World, sink storage.Storage, reserves ReserveSink, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, world: world, sink: sink, reserves: reserves, metrics: m, logger: logger}
}

// Run reads JSONL operations from in until EOF. Failed operations are
// counted and logged; only StopOnError makes them fatal.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	summary := Summary{Failures: make(map[string]int)}
	if r.world == nil {
		return summary, fmt.Errorf("world is nil")
	}
	if r.sink == nil {
		return summary, fmt.Errorf("storage is nil")
	}

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	sinceFlush := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		summary.Total++

		op, err := ParseOp(line)
		if err != nil {
			summary.Failed++
			summary.Failures["parse"]++
			r.logger.Warn("skip op", zap.Int("line", lineNo), zap.Error(err))
			if r.cfg.StopOnError {
				return summary, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		op.Line = lineNo

		if err := r.world.Apply(op); err != nil {
			summary.Failed++
			summary.Failures[op.Op]++
			r.logger.Warn("op failed",
				zap.Int("line", lineNo),
				zap.String("op", op.Op),
				zap.String("actor", op.Actor),
				zap.Error(err),
			)
			if r.cfg.StopOnError {
				return summary, fmt.Errorf("line %d %s: %w", lineNo, op.Op, err)
			}
			continue
		}
		summary.Applied++

		sinceFlush++
		if r.cfg.FlushEvery > 0 && sinceFlush >= r.cfg.FlushEvery {
			n, err := r.flush(ctx)
			if err != nil {
				return summary, err
			}
			summary.Flushed += n
			sinceFlush = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	n, err := r.flush(ctx)
	if err != nil {
		return summary, err
	}
	summary.Flushed += n
	summary.Block = r.world.Journal.Block()

	if r.reserves != nil {
		err := r.retry(ctx, "upsert_reserves", func(ctx context.Context) error {
			return r.reserves.UpsertReserves(ctx, r.world.ReserveSnapshots())
		})
		if err != nil {
			return summary, fmt.Errorf("upsert reserves: %w", err)
		}
	}

	r.logger.Info("scenario complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		zap.Int("flushed", summary.Flushed),
		zap.Uint64("block", summary.Block),
	)
	return summary, nil
}

func (r *Runner) flush(ctx context.Context) (int, error) {
	var flushed int
	err := r.retry(ctx, "flush_journal", func(ctx context.Context) error {
		var err error
		flushed, err = r.world.Journal.Flush(ctx, r.sink)
		r.metrics.ObserveFlush(err)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("flush journal: %w", err)
	}
	if flushed > 0 {
		r.logger.Debug("journal flushed", zap.Int("logs", flushed))
	}
	return flushed, nil
}
