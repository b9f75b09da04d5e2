package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/chain"
	"dexFund/internal/events"
)

// Buy swaps the attached base amount for quote sent to to. A zero maxOut
// leaves the output unbounded above.
func (p *Pool) Buy(call chain.Call, minOut, maxOut *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute("buy", call, deadline, func(batch *events.Batch) error {
		amountIn := call.AttachedValue()
		var err error
		out, err = p.swap(batch, swapLeg{
			sender:   call.Sender,
			to:       to,
			amountIn: amountIn,
			minOut:   minOut,
			maxOut:   maxOut,
			baseIn:   true,
			pull: func() error {
				return p.base.Transfer(call.Sender, p.address, amountIn)
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sell pulls amountIn of quote from the caller's allowance and sends base to to.
func (p *Pool) Sell(call chain.Call, amountIn, minOut, maxOut *uint256.Int, to common.Address, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute("sell", call, deadline, func(batch *events.Batch) error {
		var err error
		out, err = p.swap(batch, swapLeg{
			sender:   call.Sender,
			to:       to,
			amountIn: amountIn,
			minOut:   minOut,
			maxOut:   maxOut,
			baseIn:   false,
			pull: func() error {
				return p.quote.TransferFrom(p.address, call.Sender, p.address, amountIn)
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type swapLeg struct {
	sender   common.Address
	to       common.Address
	amountIn *uint256.Int
	minOut   *uint256.Int
	maxOut   *uint256.Int
	baseIn   bool
	pull     func() error
}

// swap quotes the output, pulls the input, sends the output speculatively,
// then re-reads balances and re-checks the product with the fixed fee deduction.
func (p *Pool) swap(batch *events.Batch, leg swapLeg) (*uint256.Int, error) {
	if leg.sender == (common.Address{}) || leg.to == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if leg.to == p.address || leg.to == p.base.Address() || leg.to == p.quote.Address() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTo, leg.to.Hex())
	}
	if leg.amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}

	assetIn, assetOut := p.quote, p.base
	if leg.baseIn {
		assetIn, assetOut = p.base, p.quote
	}
	prior := p.pair.Reserves()
	reserveIn, reserveOut := prior.Quote, prior.Base
	if leg.baseIn {
		reserveIn, reserveOut = prior.Base, prior.Quote
	}

	out, err := GetAmountOut(leg.amountIn, reserveIn, reserveOut, p.FeeMultiplier())
	if err != nil {
		return nil, err
	}
	if out.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if out.Lt(leg.minOut) || (!leg.maxOut.IsZero() && out.Gt(leg.maxOut)) {
		return nil, fmt.Errorf("%w: out %s outside [%s, %s]", ErrSlippageRateExceeded, out.Dec(), leg.minOut.Dec(), leg.maxOut.Dec())
	}
	if !out.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}

	if err := leg.pull(); err != nil {
		return nil, err
	}
	if err := assetOut.Transfer(p.address, leg.to, out); err != nil {
		return nil, err
	}

	balIn, balOut := assetIn.BalanceOf(p.address), assetOut.BalanceOf(p.address)
	if !balIn.Gt(reserveIn) {
		return nil, ErrInsufficientInputAmount
	}
	actualIn := new(uint256.Int).Sub(balIn, reserveIn)
	if err := checkInvariant(balIn, balOut, actualIn, reserveIn, reserveOut); err != nil {
		return nil, err
	}

	balBase, balQuote := balOut, balIn
	if leg.baseIn {
		balBase, balQuote = balIn, balOut
	}
	batch.Add(events.EventSwap, leg.sender, assetIn.Address(), actualIn, assetOut.Address(), out, leg.to)
	if err := p.commit(batch, balBase, balQuote, prior, nil); err != nil {
		return nil, err
	}
	p.logger.Debug("swap",
		zap.String("sender", leg.sender.Hex()),
		zap.String("asset_in", assetIn.Symbol()),
		zap.String("amount_in", actualIn.Dec()),
		zap.String("amount_out", out.Dec()),
	)
	return out, nil
}

// checkInvariant requires (balIn*1000 - actualIn*3) * balOut*1000 >= rIn*rOut*1000^2.
func checkInvariant(balIn, balOut, actualIn, reserveIn, reserveOut *uint256.Int) error {
	scaledIn, overflow := new(uint256.Int).MulOverflow(balIn, thousand)
	if overflow {
		return fmt.Errorf("%w: scaled input balance", ErrOverflow)
	}
	fee, overflow := new(uint256.Int).MulOverflow(actualIn, invariantFeeInt)
	if overflow || scaledIn.Lt(fee) {
		return fmt.Errorf("%w: input fee", ErrK)
	}
	adjustedIn := scaledIn.Sub(scaledIn, fee)
	adjustedOut, overflow := new(uint256.Int).MulOverflow(balOut, thousand)
	if overflow {
		return fmt.Errorf("%w: scaled output balance", ErrOverflow)
	}
	after, overflow := product(adjustedIn, adjustedOut)
	if overflow {
		return fmt.Errorf("%w: post-swap product", ErrOverflow)
	}
	before, overflow := product(reserveIn, reserveOut)
	if overflow {
		return fmt.Errorf("%w: pre-swap product", ErrOverflow)
	}
	if _, overflow = before.MulOverflow(before, uint256.NewInt(FeeDenominator*FeeDenominator)); overflow {
		return fmt.Errorf("%w: pre-swap product", ErrOverflow)
	}
	if after.Lt(before) {
		return fmt.Errorf("%w: %s < %s", ErrK, after.Dec(), before.Dec())
	}
	return nil
}
