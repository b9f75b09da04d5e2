package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/chain"
	"dexFund/internal/events"
	"dexFund/internal/model"
)

type captureWriter struct {
	values []interface{}
}

func (w *captureWriter) Write(value interface{}) error {
	w.values = append(w.values, value)
	return nil
}

func TestBuildQuote(t *testing.T) {
	got := buildQuote(uint256.NewInt(500), uint256.NewInt(5_000_000), uint256.NewInt(75), uint256.NewInt(650_471), 2)
	if got.AmountOut != "650471" || got.AmountOutUnits != "6504.71" {
		t.Fatalf("amount out mismatch: %+v", got)
	}
	if got.SpotPrice != "10000.00000000" {
		t.Fatalf("spot price mismatch: %s", got.SpotPrice)
	}
	if got.ExecutionPrice != "8672.94666667" {
		t.Fatalf("execution price mismatch: %s", got.ExecutionPrice)
	}
	if !strings.HasPrefix(got.PriceImpactPct, "13.27") {
		t.Fatalf("price impact mismatch: %s", got.PriceImpactPct)
	}
}

func TestDecodeStream(t *testing.T) {
	journal := events.NewJournal(56, chain.NewManualClock(100), zap.NewNop())
	emitter := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	log, err := events.Encode(emitter, events.EventSync, uint256.NewInt(50), uint256.NewInt(500000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	journal.Record([]events.Log{log})

	var input strings.Builder
	for _, record := range journal.Records() {
		line, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		input.Write(line)
		input.WriteString("\n")
	}
	input.WriteString("{broken\n")
	input.WriteString(`{"topics":["0x0000000000000000000000000000000000000000000000000000000000000001"]}` + "\n")

	meta := events.NewMetaCache()
	meta.Set(emitter, model.EngineMeta{Kind: "pool"})
	decoder, err := events.NewDecoder(meta)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	out, errs := &captureWriter{}, &captureWriter{}
	total, decoded, skipped, failed, err := decodeStream(strings.NewReader(input.String()), decoder, nil, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || decoded != 1 || skipped != 1 || failed != 1 {
		t.Fatalf("counts mismatch: total=%d decoded=%d skipped=%d failed=%d", total, decoded, skipped, failed)
	}
	event := out.values[0].(*model.TypedEvent)
	if event.Engine == nil || event.Engine.Kind != "pool" {
		t.Fatalf("engine meta missing: %+v", event)
	}
	if decodeErr := errs.values[0].(model.DecodeError); decodeErr.Line != 2 {
		t.Fatalf("error line mismatch: %d", decodeErr.Line)
	}
}
