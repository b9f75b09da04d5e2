package model

// ReserveSnapshot is an engine's reserves after a committed block.
type ReserveSnapshot struct {
	ChainID      uint64 `json:"chain_id"`
	Engine       string `json:"engine"`
	Kind         string `json:"kind"`
	BlockNumber  uint64 `json:"block_number"`
	ReserveBase  string `json:"reserve_base"`
	ReserveQuote string `json:"reserve_quote"`
	Timestamp    uint64 `json:"timestamp"`
}
