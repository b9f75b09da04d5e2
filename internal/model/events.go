package model

// MintEventData is the decoded Mint payload. Fund mints leave AmountQuote at zero.
type MintEventData struct {
	Actor       string `json:"actor"`
	AmountBase  string `json:"amount_base"`
	AmountQuote string `json:"amount_quote"`
	Shares      string `json:"shares"`
}

// BurnEventData is the decoded Burn payload.
type BurnEventData struct {
	Actor       string `json:"actor"`
	AmountBase  string `json:"amount_base"`
	AmountQuote string `json:"amount_quote"`
	Shares      string `json:"shares"`
}

// SwapEventData is the decoded Swap payload.
type SwapEventData struct {
	Actor     string `json:"actor"`
	AssetIn   string `json:"asset_in"`
	AmountIn  string `json:"amount_in"`
	AssetOut  string `json:"asset_out"`
	AmountOut string `json:"amount_out"`
	Recipient string `json:"recipient"`
}

// SyncEventData is the decoded Sync payload. For the fund the quote side is
// the proceeds asset.
type SyncEventData struct {
	ReserveBase  string `json:"reserve_base"`
	ReserveQuote string `json:"reserve_quote"`
}

// RegisteredTradeEventData is the decoded RegisteredTrade payload.
type RegisteredTradeEventData struct {
	Spent  string `json:"spent"`
	Bought string `json:"bought"`
}

// ChequeCashedEventData is the decoded ChequeCashed payload.
type ChequeCashedEventData struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
	Fee     string `json:"fee"`
}
