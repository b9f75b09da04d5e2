package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexFund/internal/aggregate"
	"dexFund/internal/config"
	"dexFund/internal/events"
	"dexFund/internal/model"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
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
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	meta := events.NewMetaCache()
	for address, kind := range cfg.EngineKind {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid engine address: %s", address)
		}
		meta.Set(common.HexToAddress(address), model.EngineMeta{Kind: kind, BaseAsset: cfg.EngineBase[address]})
	}

	var agg *aggregate.Aggregator
	if cfg.Window > 0 {
		agg, err = aggregate.NewAggregator(aggregate.Config{WindowSeconds: cfg.Window, FeePerThousand: cfg.FeePerThousand})
		if err != nil {
			return err
		}
	}

	decoder, err := events.NewDecoder(meta)
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Int("engines", len(cfg.EngineKind)),
	)

	total, decoded, skipped, failed, err := decodeStream(inputFile, decoder, agg, outWriter, errWriter)
	if err != nil {
		return err
	}

	if agg != nil {
		windows, err := writeWindows(cfg.WindowsOut, agg)
		if err != nil {
			return err
		}
		logger.Info("windows written", zap.String("out", cfg.WindowsOut), zap.Int("windows", windows))
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

type recordWriter interface {
	Write(value interface{}) error
}

func decodeStream(in io.Reader, decoder *events.Decoder, agg *aggregate.Aggregator, out, errs recordWriter) (total, decoded, skipped, failed int, err error) {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errs, model.DecodeError{Line: lineNo, Error: err.Error()})
			continue
		}
		if len(record.Topics) == 0 {
			failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, fmt.Errorf("missing topic0")))
			continue
		}

		if !decoder.CanDecode(record.Topics[0]) {
			skipped++
			continue
		}

		event, err := decoder.Decode(record)
		if err != nil {
			failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, err))
			continue
		}

		if err := out.Write(event); err != nil {
			return total, decoded, skipped, failed, err
		}
		decoded++

		if agg != nil {
			if err := agg.Add(event); err != nil {
				failed++
				writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, err))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return total, decoded, skipped, failed, fmt.Errorf("scan input: %w", err)
	}
	return total, decoded, skipped, failed, nil
}

func writeWindows(path string, agg *aggregate.Aggregator) (int, error) {
	writer, err := newJSONLWriter(path, false)
	if err != nil {
		return 0, err
	}
	windows := agg.Windows()
	for _, window := range windows {
		if err := writer.Write(window); err != nil {
			writer.Close()
			return 0, err
		}
	}
	return len(windows), writer.Close()
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func decodeErrorFromRecord(line int, record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		Line:        line,
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func writeDecodeError(writer recordWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
