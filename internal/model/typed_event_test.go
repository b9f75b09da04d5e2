package model

import (
	"encoding/json"
	"testing"
)

func TestSwapEventDataJSONStringFields(t *testing.T) {
	payload := SwapEventData{
		Actor:     "0x1111111111111111111111111111111111111111",
		AssetIn:   "0x2222222222222222222222222222222222222222",
		AmountIn:  "12345678901234567890",
		AssetOut:  "0x3333333333333333333333333333333333333333",
		AmountOut: "42",
		Recipient: "0x1111111111111111111111111111111111111111",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["amount_in"].(string); !ok {
		t.Fatalf("amount_in should be string")
	}
	if _, ok := decoded["amount_out"].(string); !ok {
		t.Fatalf("amount_out should be string")
	}
}

func TestTypedEventOmitsEmptyEngine(t *testing.T) {
	event := TypedEvent{EventName: "Sync", Decoded: SyncEventData{ReserveBase: "1", ReserveQuote: "2"}}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["engine"]; ok {
		t.Fatalf("engine should be omitted when nil")
	}
}
