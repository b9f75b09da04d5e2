package model

// WindowMetrics aggregates one engine's swaps over a time window.
type WindowMetrics struct {
	ChainID      uint64  `json:"chain_id"`
	Engine       string  `json:"engine"`
	WindowStart  uint64  `json:"window_start"`
	WindowEnd    uint64  `json:"window_end"`
	SwapCount    uint64  `json:"swap_count"`
	VolumeBase   string  `json:"volume_base"`
	VolumeQuote  string  `json:"volume_quote"`
	FeeBase      string  `json:"fee_base"`
	FeeQuote     string  `json:"fee_quote"`
	ReserveBase  string  `json:"reserve_base"`
	ReserveQuote string  `json:"reserve_quote"`
	FeeRateBase  *string `json:"fee_rate_base,omitempty"`
	FeeRateQuote *string `json:"fee_rate_quote,omitempty"`
	FeeAPR       *string `json:"fee_apr,omitempty"`
	FirstBlock   uint64  `json:"first_block"`
	LastBlock    uint64  `json:"last_block"`
}
