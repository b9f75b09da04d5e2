package sim

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/chain"
	"dexFund/internal/cheque"
	"dexFund/internal/fund"
	"dexFund/internal/ledger"
)

// Apply executes one operation against the world.
func (w *World) Apply(op Op) error {
	if op.Op == OpAdvanceTime {
		now := w.Clock.Advance(op.Seconds)
		w.logger.Debug("time advanced", zap.Uint64("now", now))
		return nil
	}
	actor, key, err := w.Actor(op.Actor)
	if err != nil {
		return err
	}
	call := chain.NewCall(actor)

	switch op.Op {
	case OpMint:
		token, to, amount, err := w.tokenTransfer(op, actor)
		if err != nil {
			return err
		}
		return token.Mint(actor, to, amount)

	case OpApprove:
		token, err := w.asset(op.Asset)
		if err != nil {
			return err
		}
		spender, err := w.Resolve(op.To)
		if err != nil {
			return err
		}
		amount, err := approvalAmount(op.Amount)
		if err != nil {
			return err
		}
		return token.Approve(actor, spender, amount)

	case OpGrant:
		c, err := access.ParseCapability(op.Capability)
		if err != nil {
			return err
		}
		principal, err := w.Resolve(op.To)
		if err != nil {
			return err
		}
		return w.Roles.Grant(actor, principal, c)

	case OpAddLiquidity:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		min, max, err := op.bounds()
		if err != nil {
			return err
		}
		shares, err := w.Pool.AddLiquidity(chain.Call{Sender: actor, Value: amount}, amount, max, min, w.deadline(op))
		if err != nil {
			return err
		}
		w.logger.Debug("liquidity added", zap.String("actor", op.Actor), zap.String("shares", shares.Dec()))
		return nil

	case OpRemoveLiquidity:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		_, _, err = w.Pool.RemoveLiquidity(call, amount, w.deadline(op))
		return err

	case OpBuy, OpSell:
		return w.swap(op, actor)

	case OpDeposit:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		return w.Fund.Deposit(call, amount, w.deadline(op))

	case OpWithdraw:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		return w.Fund.Withdraw(call, amount, w.deadline(op))

	case OpWithdrawProceeds:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		_, err = w.Fund.WithdrawProceeds(call, amount, w.deadline(op))
		return err

	case OpTrade:
		return w.trade(op, actor)

	case OpCashCheque:
		amount, err := op.amount()
		if err != nil {
			return err
		}
		spender, err := w.Resolve(op.To)
		if err != nil {
			return err
		}
		deadline := w.deadline(op)
		sig, err := w.Quote.SignPermit(key, ledger.Permit{
			Owner:    actor,
			Spender:  spender,
			Value:    amount,
			Nonce:    w.Quote.Nonces(actor),
			Deadline: deadline,
		})
		if err != nil {
			return err
		}
		return w.Desk.Cash(spender, cheque.Cheque{Owner: actor, Spender: spender, Value: amount, Deadline: deadline, Signature: sig})

	case OpPause, OpUnpause:
		token, err := w.asset(op.Asset)
		if err != nil {
			return err
		}
		if op.Op == OpPause {
			return token.Pause(actor)
		}
		return token.Unpause(actor)

	default:
		return fmt.Errorf("unknown op: %q", op.Op)
	}
}

func (w *World) tokenTransfer(op Op, actor common.Address) (*ledger.Token, common.Address, *uint256.Int, error) {
	token, err := w.asset(op.Asset)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	to := actor
	if op.To != "" {
		if to, err = w.Resolve(op.To); err != nil {
			return nil, common.Address{}, nil, err
		}
	}
	amount, err := op.amount()
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	return token, to, amount, nil
}

func (w *World) swap(op Op, actor common.Address) error {
	amount, err := op.amount()
	if err != nil {
		return err
	}
	min, max, err := op.bounds()
	if err != nil {
		return err
	}
	to := actor
	if op.To != "" {
		if to, err = w.Resolve(op.To); err != nil {
			return err
		}
	}
	var out *uint256.Int
	if op.Op == OpBuy {
		out, err = w.Pool.Buy(chain.Call{Sender: actor, Value: amount}, min, max, to, w.deadline(op))
	} else {
		out, err = w.Pool.Sell(chain.NewCall(actor), amount, min, max, to, w.deadline(op))
	}
	if err != nil {
		return err
	}
	w.logger.Debug("swap", zap.String("op", op.Op), zap.String("actor", op.Actor), zap.String("in", amount.Dec()), zap.String("out", out.Dec()))
	return nil
}

// trade runs the bot round trip: pull staked quote from the fund, sell it on
// the pool with the proceeds paid to the fund, then register the trade.
func (w *World) trade(op Op, bot common.Address) error {
	spent, err := op.amount()
	if err != nil {
		return err
	}
	min, max, err := op.bounds()
	if err != nil {
		return err
	}
	if len(w.Fund.Stakeholders()) == 0 {
		return fund.ErrNoStakeholders
	}
	if !w.Fund.TotalEligible().Lt(w.Fund.ShareToken().TotalSupply()) {
		return fund.ErrNoNonEligibleStake
	}
	if !w.Roles.HasCapability(bot, access.CapTrader) {
		return fmt.Errorf("trade: %w", access.ErrAccessRejected)
	}
	quoted, err := w.Pool.GetAmountOut(spent, false)
	if err != nil {
		return err
	}
	if quoted.Lt(min) {
		return fmt.Errorf("trade: quoted %s below minimum %s", quoted.Dec(), min.Dec())
	}

	if err := w.Fund.ApproveTrader(chain.NewCall(w.Roles.Governance()), bot, spent); err != nil {
		return err
	}
	if err := w.Quote.TransferFrom(bot, w.Fund.Address(), bot, spent); err != nil {
		return err
	}
	if err := w.Quote.Approve(bot, w.Pool.Address(), spent); err != nil {
		return err
	}
	bought, err := w.Pool.Sell(chain.NewCall(bot), spent, min, max, w.Fund.Address(), w.deadline(op))
	if err != nil {
		return fmt.Errorf("trade left %s %s with the bot: %w", spent.Dec(), w.Quote.Symbol(), err)
	}
	return w.Fund.RegisterTrade(chain.NewCall(bot), spent, bought)
}

func approvalAmount(value string) (*uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(value), "max") {
		return new(uint256.Int).SetAllOne(), nil
	}
	return parseField("amount", value, true)
}
