package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/chain"
	"dexFund/internal/events"
	"dexFund/internal/reserve"
)

// AddLiquidity deposits the attached base amount and up to maxQuote of the
// quote asset and mints pool shares to the caller. With non-zero reserves the
// quote side is matched to the current ratio and must lie in [minQuote, maxQuote];
// the first deposit takes maxQuote as given.
func (p *Pool) AddLiquidity(call chain.Call, amountBase, maxQuote, minQuote *uint256.Int, deadline uint64) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.execute("add_liquidity", call, deadline, func(batch *events.Batch) error {
		var err error
		minted, err = p.addLiquidity(batch, call, amountBase, maxQuote, minQuote)
		return err
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (p *Pool) addLiquidity(batch *events.Batch, call chain.Call, amountBase, maxQuote, minQuote *uint256.Int) (*uint256.Int, error) {
	sender := call.Sender
	if sender == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amountBase.IsZero() {
		return nil, ErrZeroAmount
	}
	if value := call.AttachedValue(); !value.Eq(amountBase) {
		return nil, fmt.Errorf("%w: attached %s, declared %s", ErrValueMismatch, value.Dec(), amountBase.Dec())
	}

	prior := p.pair.Reserves()
	quoteIn := maxQuote.Clone()
	if !prior.Base.IsZero() || !prior.Quote.IsZero() {
		matched, err := GetAmountMatch(amountBase, prior.Base, prior.Quote)
		if err != nil {
			return nil, err
		}
		if matched.Lt(minQuote) || matched.Gt(maxQuote) {
			return nil, fmt.Errorf("%w: quote %s outside [%s, %s]", ErrSlippageRateExceeded, matched.Dec(), minQuote.Dec(), maxQuote.Dec())
		}
		quoteIn = matched
	}

	_, maxLiquidity := p.LiquidityBounds()
	nextBase, overflowBase := new(uint256.Int).AddOverflow(prior.Base, amountBase)
	nextQuote, overflowQuote := new(uint256.Int).AddOverflow(prior.Quote, quoteIn)
	next, overflow := product(nextBase, nextQuote)
	if overflowBase || overflowQuote || overflow || next.Gt(maxLiquidity) {
		return nil, fmt.Errorf("%w: ceiling %s", ErrMaximumPoolLiquidity, maxLiquidity.Dec())
	}

	if err := p.base.Transfer(sender, p.address, amountBase); err != nil {
		return nil, err
	}
	if !quoteIn.IsZero() {
		if err := p.quote.TransferFrom(p.address, sender, p.address, quoteIn); err != nil {
			return nil, err
		}
	}

	balBase, balQuote := p.balances()
	if balBase.Lt(prior.Base) || balQuote.Lt(prior.Quote) {
		return nil, fmt.Errorf("%w: balances below reserves", ErrInsufficientLiquidity)
	}
	depositBase := new(uint256.Int).Sub(balBase, prior.Base)
	depositQuote := new(uint256.Int).Sub(balQuote, prior.Quote)

	minted, err := p.mintable(depositBase, depositQuote, prior)
	if err != nil {
		return nil, err
	}
	if minted.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	if err := p.shares.Mint(p.address, sender, minted); err != nil {
		return nil, err
	}

	batch.Add(events.EventMint, sender, depositBase, depositQuote, minted)
	record := &liquidityEntry{holder: sender, LiquidityRecord: LiquidityRecord{
		Timestamp:   p.clock.Now(),
		IsDeposit:   true,
		AmountBase:  depositBase,
		AmountQuote: depositQuote,
	}}
	if err := p.commit(batch, balBase, balQuote, prior, record); err != nil {
		return nil, err
	}
	p.logger.Debug("liquidity added",
		zap.String("sender", sender.Hex()),
		zap.String("base", depositBase.Dec()),
		zap.String("quote", depositQuote.Dec()),
		zap.String("shares", minted.Dec()),
	)
	return minted, nil
}

// mintable returns floor(sqrt(base*quote)) for the first deposit, otherwise
// the smaller of the two pro-rata share amounts.
func (p *Pool) mintable(depositBase, depositQuote *uint256.Int, prior reserve.Snapshot) (*uint256.Int, error) {
	supply := p.shares.TotalSupply()
	if supply.IsZero() {
		k, overflow := product(depositBase, depositQuote)
		if overflow {
			return nil, fmt.Errorf("%w: initial liquidity product", ErrOverflow)
		}
		return new(uint256.Int).Sqrt(k), nil
	}
	if prior.Base.IsZero() || prior.Quote.IsZero() {
		return nil, fmt.Errorf("%w: shares outstanding with empty reserves", ErrInsufficientLiquidity)
	}
	byBase, err := mulDiv(depositBase, supply, prior.Base)
	if err != nil {
		return nil, err
	}
	byQuote, err := mulDiv(depositQuote, supply, prior.Quote)
	if err != nil {
		return nil, err
	}
	return minInt(byBase, byQuote), nil
}

// RemoveLiquidity burns shares and returns the pro-rata share of the pool's
// actual balances of both assets.
func (p *Pool) RemoveLiquidity(call chain.Call, shares *uint256.Int, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	var outBase, outQuote *uint256.Int
	err := p.execute("remove_liquidity", call, deadline, func(batch *events.Batch) error {
		var err error
		outBase, outQuote, err = p.removeLiquidity(batch, call.Sender, shares)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return outBase, outQuote, nil
}

func (p *Pool) removeLiquidity(batch *events.Batch, sender common.Address, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if sender == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if shares.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if held := p.shares.BalanceOf(sender); held.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: holds %s shares, burning %s", ErrInsufficientLiquidity, held.Dec(), shares.Dec())
	}
	prior := p.pair.Reserves()
	if prior.Base.IsZero() || prior.Quote.IsZero() {
		return nil, nil, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}

	balBase, balQuote := p.balances()
	supply := p.shares.TotalSupply()
	outBase, err := mulDiv(shares, balBase, supply)
	if err != nil {
		return nil, nil, err
	}
	outQuote, err := mulDiv(shares, balQuote, supply)
	if err != nil {
		return nil, nil, err
	}
	if outBase.IsZero() || outQuote.IsZero() {
		return nil, nil, ErrInsufficientLiquidityBurned
	}

	minLiquidity, _ := p.LiquidityBounds()
	remaining, _ := product(new(uint256.Int).Sub(balBase, outBase), new(uint256.Int).Sub(balQuote, outQuote))
	if remaining.Lt(minLiquidity) {
		return nil, nil, fmt.Errorf("%w: floor %s, remaining %s", ErrMinimumPoolLiquidity, minLiquidity.Dec(), remaining.Dec())
	}

	if err := p.shares.Burn(sender, shares); err != nil {
		return nil, nil, err
	}
	if err := p.base.Transfer(p.address, sender, outBase); err != nil {
		return nil, nil, err
	}
	if err := p.quote.Transfer(p.address, sender, outQuote); err != nil {
		return nil, nil, err
	}

	balBase, balQuote = p.balances()
	batch.Add(events.EventBurn, sender, outBase, outQuote, shares)
	record := &liquidityEntry{holder: sender, LiquidityRecord: LiquidityRecord{
		Timestamp:   p.clock.Now(),
		IsDeposit:   false,
		AmountBase:  outBase,
		AmountQuote: outQuote,
	}}
	if err := p.commit(batch, balBase, balQuote, prior, record); err != nil {
		return nil, nil, err
	}
	p.logger.Debug("liquidity removed",
		zap.String("sender", sender.Hex()),
		zap.String("base", outBase.Dec()),
		zap.String("quote", outQuote.Dec()),
		zap.String("shares", shares.Dec()),
	)
	return outBase, outQuote, nil
}
