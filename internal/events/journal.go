package events

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"dexFund/internal/chain"
	"dexFund/internal/model"
	"dexFund/internal/storage"
)

// Journal is the append-only event log of a world. Every Record call is one
// block; records stay pending until flushed to a sink.
type Journal struct {
	chainID uint64
	clock   chain.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	block   uint64
	records []model.LogRecord
	pending int
}

func NewJournal(chainID uint64, clock chain.Clock, logger *zap.Logger) *Journal {
	if clock == nil {
		clock = chain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{chainID: chainID, clock: clock, logger: logger}
}

// Record appends logs as the next block.
func (j *Journal) Record(logs []Log) {
	if len(logs) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.block++
	txHash := blockTxHash(j.chainID, j.block)
	now := j.clock.Now()
	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for i, log := range logs {
		topics := make([]string, 0, len(log.Topics))
		for _, topic := range log.Topics {
			topics = append(topics, topic.Hex())
		}
		j.records = append(j.records, model.LogRecord{
			ChainID:     j.chainID,
			BlockNumber: j.block,
			TxHash:      txHash,
			LogIndex:    uint64(i),
			Address:     log.Address.Hex(),
			Topics:      topics,
			Data:        hexutil.Encode(log.Data),
			Timestamp:   now,
			IngestedAt:  ingestedAt,
		})
	}
	j.pending += len(logs)
	j.logger.Debug("logs recorded", zap.Uint64("block", j.block), zap.Int("logs", len(logs)))
}

// Records returns a copy of every recorded log.
func (j *Journal) Records() []model.LogRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.LogRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Block returns the number of committed blocks.
func (j *Journal) Block() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.block
}

// Flush writes pending records to sink. Pending records stay queued when the
// sink fails.
func (j *Journal) Flush(ctx context.Context, sink storage.Storage) (int, error) {
	if sink == nil {
		return 0, fmt.Errorf("sink is nil")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pending == 0 {
		return 0, nil
	}
	batch := j.records[len(j.records)-j.pending:]
	if err := sink.PutLogBatch(batch); err != nil {
		return 0, fmt.Errorf("store logs: %w", err)
	}
	flushed := j.pending
	j.pending = 0
	return flushed, nil
}

func blockTxHash(chainID, block uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], chainID)
	binary.BigEndian.PutUint64(buf[8:], block)
	return crypto.Keccak256Hash(buf[:]).Hex()
}
