package fund

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/chain"
	"dexFund/internal/events"
)

// RegisterTrade accounts for a trade the bot has already settled: spent base
// has left the fund and bought proceeds have arrived. Each stakeholder's
// eligible balance grows by spent*nonEligible/totalNonEligible.
func (f *Fund) RegisterTrade(call chain.Call, spent, bought *uint256.Int) error {
	return f.execute("register_trade", call, noDeadline, func(batch *events.Batch) error {
		if err := access.Require(f.roles, call.Sender, access.CapTrader); err != nil {
			return err
		}
		stakeholders := f.Stakeholders()
		if len(stakeholders) == 0 {
			return ErrNoStakeholders
		}
		if spent.IsZero() {
			return ErrSpentTokensZero
		}
		if err := f.checkSettlement(spent, bought); err != nil {
			return err
		}

		shares, distributed, err := f.distribution(stakeholders, spent)
		if err != nil {
			return err
		}

		batch.Add(events.EventRegisteredTrade, spent, bought)
		now := f.clock.Now()
		if err := f.commit(batch, func() {
			for i, s := range stakeholders {
				if shares[i].IsZero() {
					continue
				}
				f.eligible[s] = new(uint256.Int).Add(f.eligibleOf(s), shares[i])
			}
			f.totalEligible.Add(f.totalEligible, distributed)
			f.trades[now] = TradeRecord{Spent: spent.Clone(), Bought: bought.Clone()}
		}); err != nil {
			return err
		}
		f.logger.Info("trade registered",
			zap.String("spent", spent.Dec()),
			zap.String("bought", bought.Dec()),
			zap.String("distributed", distributed.Dec()),
			zap.Int("stakeholders", len(stakeholders)),
		)
		return nil
	})
}

// checkSettlement compares the declared trade with the movement of the
// balances since the last sync.
func (f *Fund) checkSettlement(spent, bought *uint256.Int) error {
	resBase, resProceeds := f.Reserves()
	balBase, balProceeds := f.balances()
	if balBase.Gt(resBase) || balProceeds.Lt(resProceeds) {
		return fmt.Errorf("%w: base %s->%s, proceeds %s->%s", ErrTradeMismatch, resBase.Dec(), balBase.Dec(), resProceeds.Dec(), balProceeds.Dec())
	}
	shortfall := new(uint256.Int).Sub(resBase, balBase)
	surplus := new(uint256.Int).Sub(balProceeds, resProceeds)
	if !shortfall.Eq(spent) || !surplus.Eq(bought) {
		return fmt.Errorf("%w: observed spent %s bought %s, declared spent %s bought %s",
			ErrTradeMismatch, shortfall.Dec(), surplus.Dec(), spent.Dec(), bought.Dec())
	}
	return nil
}

// distribution computes every stakeholder's increment before anything is
// applied. The increments sum to at most spent.
func (f *Fund) distribution(stakeholders []common.Address, spent *uint256.Int) ([]*uint256.Int, *uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nonEligibleTotal := saturatingSub(f.shares.TotalSupply(), f.totalEligible)
	if nonEligibleTotal.IsZero() {
		return nil, nil, ErrNoNonEligibleStake
	}
	out := make([]*uint256.Int, len(stakeholders))
	distributed := new(uint256.Int)
	for i, s := range stakeholders {
		nonEligible := saturatingSub(f.shares.BalanceOf(s), f.eligibleOf(s))
		share, err := mulDiv(spent, nonEligible, nonEligibleTotal)
		if err != nil {
			return nil, nil, err
		}
		out[i] = share
		distributed.Add(distributed, share)
	}
	return out, distributed, nil
}
