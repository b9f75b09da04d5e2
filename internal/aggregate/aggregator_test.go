package aggregate

import (
	"testing"

	"dexFund/internal/model"
)

const (
	poolAddr  = "0x00000000000000000000000000000000000000aa"
	baseAddr  = "0x00000000000000000000000000000000000000b1"
	quoteAddr = "0x00000000000000000000000000000000000000c1"
)

func poolEvent(block, ts uint64, decoded interface{}) *model.TypedEvent {
	return &model.TypedEvent{
		ChainID:     56,
		BlockNumber: block,
		Address:     poolAddr,
		Timestamp:   ts,
		Decoded:     decoded,
		Engine:      &model.EngineMeta{Kind: "pool", BaseAsset: baseAddr, QuoteAsset: quoteAddr},
	}
}

func TestAggregatorWindows(t *testing.T) {
	agg, err := NewAggregator(Config{WindowSeconds: 3600, FeePerThousand: 3})
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}

	inputs := []*model.TypedEvent{
		poolEvent(1, 7200, model.SyncEventData{ReserveBase: "1000000", ReserveQuote: "2000000"}),
		poolEvent(2, 7210, model.SwapEventData{AssetIn: baseAddr, AmountIn: "10000", AssetOut: quoteAddr, AmountOut: "19700"}),
		poolEvent(3, 7300, model.SwapEventData{AssetIn: quoteAddr, AmountIn: "20000", AssetOut: baseAddr, AmountOut: "9900"}),
		poolEvent(4, 11000, model.SwapEventData{AssetIn: baseAddr, AmountIn: "5000", AssetOut: quoteAddr, AmountOut: "9800"}),
		{Address: "0x00000000000000000000000000000000000000ff", Timestamp: 7200, Decoded: model.SwapEventData{AmountIn: "1"}},
		{Address: poolAddr, Timestamp: 7200, Decoded: model.SwapEventData{AmountIn: "1"}, Engine: &model.EngineMeta{Kind: "fund"}},
	}
	for _, ev := range inputs {
		if err := agg.Add(ev); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	windows := agg.Windows()
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}

	first := windows[0]
	if first.WindowStart != 7200 || first.WindowEnd != 10800 {
		t.Fatalf("unexpected bounds: %d-%d", first.WindowStart, first.WindowEnd)
	}
	if first.SwapCount != 2 {
		t.Fatalf("expected 2 swaps, got %d", first.SwapCount)
	}
	if first.VolumeBase != "19900" || first.VolumeQuote != "39700" {
		t.Fatalf("unexpected volume: %s/%s", first.VolumeBase, first.VolumeQuote)
	}
	if first.FeeBase != "30" || first.FeeQuote != "60" {
		t.Fatalf("unexpected fee: %s/%s", first.FeeBase, first.FeeQuote)
	}
	if first.FeeRateBase == nil || *first.FeeRateBase != "0.000030000000000000" {
		t.Fatalf("unexpected base fee rate: %v", first.FeeRateBase)
	}
	if first.FeeAPR != nil {
		t.Fatalf("expected no APR with fees on both sides")
	}
	if first.FirstBlock != 1 || first.LastBlock != 3 {
		t.Fatalf("unexpected blocks: %d-%d", first.FirstBlock, first.LastBlock)
	}

	second := windows[1]
	if second.WindowStart != 10800 || second.FeeBase != "15" {
		t.Fatalf("unexpected second window: %+v", second)
	}
	if second.FeeRateBase != nil {
		t.Fatalf("expected no rate without a synced reserve")
	}
}

func TestAggregatorRejectsBadInput(t *testing.T) {
	if _, err := NewAggregator(Config{}); err == nil {
		t.Fatalf("expected error for zero window")
	}
	agg, err := NewAggregator(Config{WindowSeconds: 60, FeePerThousand: 3})
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	if err := agg.Add(poolEvent(1, 10, model.SwapEventData{AmountIn: "x"})); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestComputeAPR(t *testing.T) {
	rate := "0.001"
	apr := computeAPR(&rate, nil, 86400)
	if apr == nil || *apr != "0.365000000000000000" {
		t.Fatalf("unexpected apr: %v", apr)
	}
	if computeAPR(&rate, &rate, 86400) != nil {
		t.Fatalf("expected nil apr for two-sided fees")
	}
	if computeAPR(&rate, nil, 0) != nil {
		t.Fatalf("expected nil apr for empty window")
	}
}
