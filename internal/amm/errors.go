package amm

import (
	"errors"

	"dexFund/internal/access"
	"dexFund/internal/guard"
	"dexFund/internal/ledger"
	"dexFund/internal/reserve"
)

var (
	ErrZeroAddress                 = errors.New("zero address")
	ErrZeroAmount                  = errors.New("zero amount")
	ErrValueMismatch               = errors.New("attached value does not match amount")
	ErrSlippageRateExceeded        = errors.New("slippage rate exceeded")
	ErrMaximumPoolLiquidity        = errors.New("maximum pool liquidity exceeded")
	ErrMinimumPoolLiquidity        = errors.New("minimum pool liquidity not met")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientInputAmount     = errors.New("insufficient input amount")
	ErrInsufficientOutputAmount    = errors.New("insufficient output amount")
	ErrK                           = errors.New("k")
	ErrInvalidTo                   = errors.New("invalid to")
	ErrInvalidConfig               = errors.New("invalid pool config")
)

// ErrOverflow is shared with the reserve guard so callers match one sentinel.
var ErrOverflow = reserve.ErrOverflow

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{guard.ErrLocked, "locked"},
	{guard.ErrExpired, "expired"},
	{access.ErrAccessRejected, "access_rejected"},
	{ErrK, "k"},
	{ErrSlippageRateExceeded, "slippage"},
	{ErrMaximumPoolLiquidity, "maximum_liquidity"},
	{ErrMinimumPoolLiquidity, "minimum_liquidity"},
	{ErrInsufficientLiquidityMinted, "insufficient_liquidity_minted"},
	{ErrInsufficientLiquidityBurned, "insufficient_liquidity_burned"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInvalidTo, "invalid_to"},
	{ErrValueMismatch, "value_mismatch"},
	{ErrOverflow, "overflow"},
	{ledger.ErrInsufficientBalance, "insufficient_balance"},
	{ledger.ErrInsufficientAllowance, "insufficient_allowance"},
	{ledger.ErrPaused, "paused"},
}

// Reason classifies an engine error for metrics labels.
func Reason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
