package fund

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"dexFund/internal/chain"
	"dexFund/internal/events"
)

// Deposit pulls amount of the base asset from the caller and mints the same
// number of shares. The caller needs an allowance for the fund.
func (f *Fund) Deposit(call chain.Call, amount *uint256.Int, deadline uint64) error {
	return f.execute("deposit", call, deadline, func(batch *events.Batch) error {
		sender := call.Sender
		if sender == (common.Address{}) {
			return ErrZeroAddress
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}
		prior := f.baseReserve.Value()
		if err := f.base.TransferFrom(f.address, sender, f.address, amount); err != nil {
			return err
		}
		received := f.base.BalanceOf(f.address)
		if received.Lt(prior) || !new(uint256.Int).Sub(received, prior).Eq(amount) {
			return fmt.Errorf("%w: balance %s, reserve %s, declared %s", ErrDepositMismatch, received.Dec(), prior.Dec(), amount.Dec())
		}
		if err := f.shares.Mint(f.address, sender, amount); err != nil {
			return err
		}
		batch.Add(events.EventMint, sender, amount, new(uint256.Int), amount)
		return f.commit(batch, func() {
			f.addStakeholder(sender)
		})
	})
}

// Withdraw burns amount of the caller's non-eligible shares and returns the
// same amount of the base asset.
func (f *Fund) Withdraw(call chain.Call, amount *uint256.Int, deadline uint64) error {
	return f.execute("withdraw", call, deadline, func(batch *events.Batch) error {
		sender := call.Sender
		if amount.IsZero() {
			return ErrZeroAmount
		}
		available := f.NonEligibleOf(sender)
		if amount.Gt(available) {
			return fmt.Errorf("%w: %s > %s", ErrExceedsNonEligible, amount.Dec(), available.Dec())
		}
		if err := f.shares.Burn(sender, amount); err != nil {
			return err
		}
		if err := f.base.Transfer(f.address, sender, amount); err != nil {
			return err
		}
		batch.Add(events.EventBurn, sender, amount, new(uint256.Int), amount)
		return f.commit(batch, nil)
	})
}

// WithdrawProceeds burns amount of the caller's eligible shares for a pro-rata
// share of the proceeds reserve: proceeds*amount/totalEligible.
func (f *Fund) WithdrawProceeds(call chain.Call, amount *uint256.Int, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := f.execute("withdraw_proceeds", call, deadline, func(batch *events.Batch) error {
		sender := call.Sender
		if amount.IsZero() {
			return ErrZeroAmount
		}
		eligible, total := f.EligibleOf(sender), f.TotalEligible()
		if amount.Gt(eligible) {
			return fmt.Errorf("%w: %s > %s", ErrExceedsEligible, amount.Dec(), eligible.Dec())
		}
		var err error
		out, err = mulDiv(f.proceedsReserve.Value(), amount, total)
		if err != nil {
			return err
		}
		if balance := f.proceeds.BalanceOf(f.address); out.Gt(balance) {
			return fmt.Errorf("%w: %s > %s", ErrInsufficientProceeds, out.Dec(), balance.Dec())
		}
		if err := f.shares.Burn(sender, amount); err != nil {
			return err
		}
		if !out.IsZero() {
			if err := f.proceeds.Transfer(f.address, sender, out); err != nil {
				return err
			}
		}
		batch.Add(events.EventBurn, sender, new(uint256.Int), out, amount)
		return f.commit(batch, func() {
			f.eligible[sender] = new(uint256.Int).Sub(f.eligible[sender], amount)
			f.totalEligible.Sub(f.totalEligible, amount)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
