package sim

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"dexFund/internal/events"
	"dexFund/internal/model"
	"dexFund/internal/storage"
)

const scenario = `
{"op":"mint","actor":"gov","asset":"base","to":"alice","amount":"10000"}
{"op":"mint","actor":"gov","asset":"quote","to":"alice","amount":"2000000"}
{"op":"mint","actor":"gov","asset":"base","to":"bob","amount":"1000"}
{"op":"mint","actor":"gov","asset":"quote","to":"bob","amount":"1000000"}
{"op":"approve","actor":"alice","asset":"quote","to":"pool","amount":"max"}
{"op":"add_liquidity","actor":"alice","amount":"1000","max":"1000000"}
{"op":"buy","actor":"bob","amount":"10","min":"9871"}
{"op":"approve","actor":"alice","asset":"quote","to":"fund","amount":"max"}
{"op":"approve","actor":"bob","asset":"quote","to":"fund","amount":"max"}
{"op":"deposit","actor":"alice","amount":"700000"}
{"op":"deposit","actor":"bob","amount":"300000"}
{"op":"grant","actor":"gov","to":"bot","capability":"trader"}
{"op":"advance_time","seconds":15}
{"op":"trade","actor":"bot","amount":"100000"}
# past deadline
{"op":"buy","actor":"bob","amount":"1","deadline":1}
{"op":"teleport","actor":"bob"}
not json
{"op":"cash_cheque","actor":"alice","to":"bob","amount":"1000"}
`

type memorySink struct {
	mu      sync.Mutex
	records []model.LogRecord
	fail    int
}

func (s *memorySink) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, logs...)
	return nil
}

type memoryReserves struct {
	snapshots []model.ReserveSnapshot
}

func (m *memoryReserves) UpsertReserves(_ context.Context, snapshots []model.ReserveSnapshot) error {
	m.snapshots = append(m.snapshots, snapshots...)
	return nil
}

func newWorld(t *testing.T) *World {
	t.Helper()
	w, err := NewWorld(DefaultWorldConfig(), nil, nil)
	require.NoError(t, err)
	return w
}

func TestRunScenario(t *testing.T) {
	w := newWorld(t)
	sink := &memorySink{}
	reserves := &memoryReserves{}
	runner := NewRunner(RunConfig{FlushEvery: 4, RetryBackoff: time.Millisecond}, w, sink, reserves, nil, nil)

	summary, err := runner.Run(context.Background(), strings.NewReader(scenario))
	require.NoError(t, err)
	require.Equal(t, 18, summary.Total)
	require.Equal(t, 15, summary.Applied)
	require.Equal(t, 3, summary.Failed)
	require.Equal(t, 1, summary.Failures["buy"])
	require.Equal(t, 1, summary.Failures["teleport"])
	require.Equal(t, 1, summary.Failures["parse"])
	require.Equal(t, uint64(7), summary.Block)
	require.Equal(t, 13, summary.Flushed)
	require.Len(t, sink.records, 13)

	alice, _, err := w.Actor("alice")
	require.NoError(t, err)
	bob, _, err := w.Actor("bob")
	require.NoError(t, err)

	require.Equal(t, uint64(70_000), w.Fund.EligibleOf(alice).Uint64())
	require.Equal(t, uint64(30_000), w.Fund.EligibleOf(bob).Uint64())
	trade, ok := w.Fund.Trade(w.Clock.Now())
	require.True(t, ok)
	require.Equal(t, uint64(100_000), trade.Spent.Uint64())
	require.False(t, trade.Bought.IsZero())
	_, proceeds := w.Fund.Reserves()
	require.Equal(t, trade.Bought.Dec(), proceeds.Dec())

	// 1000000 - 300000 deposited + 9871 bought + 990 cashed
	require.Equal(t, uint64(710_861), w.Quote.BalanceOf(bob).Uint64())

	require.Len(t, reserves.snapshots, 2)
	require.Equal(t, "pool", reserves.snapshots[0].Kind)
	require.Equal(t, "900000", reserves.snapshots[1].ReserveBase)

	decoder, err := events.NewDecoder(w.Meta)
	require.NoError(t, err)
	names := make(map[string]int)
	for _, record := range sink.records {
		ev, err := decoder.Decode(record)
		require.NoError(t, err)
		require.NotNil(t, ev.Engine)
		names[ev.EventName]++
	}
	require.Equal(t, map[string]int{
		events.EventMint:            3,
		events.EventSwap:            2,
		events.EventSync:            6,
		events.EventRegisteredTrade: 1,
		events.EventChequeCashed:    1,
	}, names)
}

func TestRunRetriesFlush(t *testing.T) {
	w := newWorld(t)
	sink := &memorySink{fail: 2}
	runner := NewRunner(RunConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, w, sink, nil, nil, nil)

	summary, err := runner.Run(context.Background(), strings.NewReader(scenario))
	require.NoError(t, err)
	require.Equal(t, 13, summary.Flushed)
	require.Len(t, sink.records, 13)
}

func TestRunRetryDoesNotDuplicateOnHealthySink(t *testing.T) {
	w := newWorld(t)
	healthy := &memorySink{}
	flaky := &memorySink{fail: 1}
	runner := NewRunner(RunConfig{MaxRetries: 1, RetryBackoff: time.Millisecond}, w, storage.NewMulti(healthy, flaky), nil, nil, nil)

	summary, err := runner.Run(context.Background(), strings.NewReader(scenario))
	require.NoError(t, err)
	require.Equal(t, 13, summary.Flushed)
	require.Len(t, healthy.records, 13)
	require.Len(t, flaky.records, 13)
	require.Equal(t, w.Journal.Records(), healthy.records)
}

func TestRetryCapsAttempts(t *testing.T) {
	runner := NewRunner(RunConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, newWorld(t), &memorySink{}, nil, nil, nil)
	calls := 0
	err := runner.retry(context.Background(), "step", func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, err, "down")
	require.Equal(t, 3, calls)

	slow := NewRunner(RunConfig{MaxRetries: 2, RetryBackoff: time.Hour}, newWorld(t), &memorySink{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = slow.retry(ctx, "step", func(context.Context) error { return errors.New("down") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunStopsWhenSinkStaysDown(t *testing.T) {
	w := newWorld(t)
	sink := &memorySink{fail: 10}
	runner := NewRunner(RunConfig{MaxRetries: 1, RetryBackoff: time.Millisecond}, w, sink, nil, nil, nil)

	_, err := runner.Run(context.Background(), strings.NewReader(scenario))
	require.ErrorContains(t, err, "flush journal")
	// nothing was lost: the records are still pending
	sink.fail = 0
	n, err := w.Journal.Flush(context.Background(), sink)
	require.NoError(t, err)
	require.Equal(t, 13, n)
}

func TestRunStopOnError(t *testing.T) {
	w := newWorld(t)
	runner := NewRunner(RunConfig{StopOnError: true}, w, &memorySink{}, nil, nil, nil)

	summary, err := runner.Run(context.Background(), strings.NewReader(scenario))
	require.Error(t, err)
	require.ErrorContains(t, err, "line 17 buy")
	require.Equal(t, 14, summary.Applied)
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp([]byte(`{"op":" Deposit ","actor":"alice","amount":"5"}`))
	require.NoError(t, err)
	require.Equal(t, OpDeposit, op.Op)
	amount, err := op.amount()
	require.NoError(t, err)
	require.Equal(t, uint64(5), amount.Uint64())

	_, err = ParseOp([]byte(`{"op":"deposit"}`))
	require.Error(t, err)
	_, err = ParseOp([]byte(`{"op":"advance_time","seconds":3}`))
	require.NoError(t, err)

	_, err = Op{Amount: "-3"}.amount()
	require.Error(t, err)
	max, err := approvalAmount("MAX")
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).SetAllOne(), max)
}

func TestActorsAreDeterministic(t *testing.T) {
	a := newWorld(t)
	b := newWorld(t)
	addrA, _, err := a.Actor("Alice")
	require.NoError(t, err)
	addrB, _, err := b.Actor("alice")
	require.NoError(t, err)
	require.Equal(t, addrA, addrB)

	pool, err := a.Resolve("pool")
	require.NoError(t, err)
	require.Equal(t, a.Pool.Address(), pool)
	_, err = a.Resolve("0x1234")
	require.Error(t, err)
}
