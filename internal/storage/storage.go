package storage

import (
	"errors"
	"fmt"
	"sync"

	"dexFund/internal/model"
)

// Storage defines a sink for journal records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Multi fans a batch out to every sink and joins their errors. A batch that
// failed on some sinks is usually offered again; Multi remembers how much of
// it each sink already took and hands each one only the rest.
type Multi struct {
	sinks []Storage

	mu        sync.Mutex
	head      string
	delivered []int
}

func NewMulti(sinks ...Storage) *Multi {
	return &Multi{sinks: sinks}
}

// Add appends a sink. It starts with the next batch.
func (m *Multi) Add(sink Storage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
	m.head = ""
	m.delivered = nil
}

func (m *Multi) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// a retried batch starts at the same record and may have grown at the end
	head := recordKey(logs[0])
	if head != m.head || len(m.delivered) != len(m.sinks) {
		m.head = head
		m.delivered = make([]int, len(m.sinks))
	}

	var errs []error
	for i, sink := range m.sinks {
		if sink == nil {
			continue
		}
		done := m.delivered[i]
		if done >= len(logs) {
			continue
		}
		if err := sink.PutLogBatch(logs[done:]); err != nil {
			errs = append(errs, err)
			continue
		}
		m.delivered[i] = len(logs)
	}
	if len(errs) == 0 {
		m.head = ""
		m.delivered = nil
	}
	return errors.Join(errs...)
}

func recordKey(r model.LogRecord) string {
	return fmt.Sprintf("%d/%d/%s/%d", r.ChainID, r.BlockNumber, r.TxHash, r.LogIndex)
}
