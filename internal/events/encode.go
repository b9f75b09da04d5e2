package events

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Log is an encoded event: topic0 is the event ID, followed by the indexed
// arguments; Data holds the packed non-indexed arguments.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Recorder receives the logs of a successful engine call.
type Recorder interface {
	Record(logs []Log)
}

type discard struct{}

func (discard) Record([]Log) {}

// Discard drops every log.
var Discard Recorder = discard{}

// Encode builds a Log for the named event. Arguments follow the ABI input
// order; *uint256.Int values are converted for packing.
func Encode(emitter common.Address, name string, args ...interface{}) (Log, error) {
	engineABI, err := EngineABI()
	if err != nil {
		return Log{}, err
	}
	event, ok := engineABI.Events[name]
	if !ok {
		return Log{}, fmt.Errorf("unknown event: %s", name)
	}
	if len(args) != len(event.Inputs) {
		return Log{}, fmt.Errorf("%s: expected %d args, got %d", name, len(event.Inputs), len(args))
	}

	topics := []common.Hash{event.ID}
	data := make([]interface{}, 0, len(args))
	for i, input := range event.Inputs {
		value := packable(args[i])
		if !input.Indexed {
			data = append(data, value)
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return Log{}, fmt.Errorf("%s topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, hashes[0][0])
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return Log{}, fmt.Errorf("pack %s: %w", name, err)
	}
	return Log{Address: emitter, Topics: topics, Data: packed}, nil
}

func packable(value interface{}) interface{} {
	switch v := value.(type) {
	case *uint256.Int:
		if v == nil {
			return new(uint256.Int).ToBig()
		}
		return v.ToBig()
	default:
		return value
	}
}

// Batch buffers the events of one engine call until it commits.
type Batch struct {
	emitter common.Address
	logs    []Log
	err     error
}

func NewBatch(emitter common.Address) *Batch {
	return &Batch{emitter: emitter}
}

// Add encodes and buffers an event. The first encoding error sticks.
func (b *Batch) Add(name string, args ...interface{}) {
	if b.err != nil {
		return
	}
	log, err := Encode(b.emitter, name, args...)
	if err != nil {
		b.err = err
		return
	}
	b.logs = append(b.logs, log)
}

func (b *Batch) Err() error {
	return b.err
}

func (b *Batch) Logs() []Log {
	return b.logs
}

// Commit hands the buffered logs to rec.
func (b *Batch) Commit(rec Recorder) {
	if rec == nil || len(b.logs) == 0 {
		return
	}
	rec.Record(b.logs)
}
