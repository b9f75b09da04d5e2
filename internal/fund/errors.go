package fund

import (
	"errors"

	"dexFund/internal/access"
	"dexFund/internal/guard"
	"dexFund/internal/ledger"
	"dexFund/internal/reserve"
)

var (
	ErrZeroAddress          = errors.New("zero address")
	ErrZeroAmount           = errors.New("zero amount")
	ErrDepositMismatch      = errors.New("deposit does not match received amount")
	ErrExceedsNonEligible   = errors.New("amount exceeds non-eligible balance")
	ErrExceedsEligible      = errors.New("amount exceeds eligible balance")
	ErrInsufficientProceeds = errors.New("insufficient proceeds reserve")
	ErrNoStakeholders       = errors.New("no stakeholders")
	ErrNoNonEligibleStake   = errors.New("no non-eligible stake to distribute to")
	ErrSpentTokensZero      = errors.New("spent tokens zero")
	ErrTradeMismatch        = errors.New("trade does not match balances")
	ErrNotStakeholder       = errors.New("not a stakeholder")
	ErrEligibleOutstanding  = errors.New("stakeholder has eligible balance")
	ErrInvalidConfig        = errors.New("invalid fund config")
)

var ErrOverflow = reserve.ErrOverflow

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{guard.ErrLocked, "locked"},
	{guard.ErrExpired, "expired"},
	{access.ErrAccessRejected, "access_rejected"},
	{ErrDepositMismatch, "deposit_mismatch"},
	{ErrExceedsNonEligible, "exceeds_non_eligible"},
	{ErrExceedsEligible, "exceeds_eligible"},
	{ErrInsufficientProceeds, "insufficient_proceeds"},
	{ErrNoStakeholders, "no_stakeholders"},
	{ErrNoNonEligibleStake, "no_non_eligible_stake"},
	{ErrSpentTokensZero, "spent_tokens_zero"},
	{ErrTradeMismatch, "trade_mismatch"},
	{ErrOverflow, "overflow"},
	{ledger.ErrInsufficientBalance, "insufficient_balance"},
	{ledger.ErrInsufficientAllowance, "insufficient_allowance"},
	{ledger.ErrPaused, "paused"},
}

// Reason classifies a fund error for metrics labels.
func Reason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
