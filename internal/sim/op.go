package sim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"dexFund/internal/ledger"
)

// Operation names accepted by the runner.
const (
	OpMint             = "mint"
	OpApprove          = "approve"
	OpGrant            = "grant"
	OpAdvanceTime      = "advance_time"
	OpAddLiquidity     = "add_liquidity"
	OpRemoveLiquidity  = "remove_liquidity"
	OpBuy              = "buy"
	OpSell             = "sell"
	OpDeposit          = "deposit"
	OpWithdraw         = "withdraw"
	OpWithdrawProceeds = "withdraw_proceeds"
	OpTrade            = "trade"
	OpCashCheque       = "cash_cheque"
	OpPause            = "pause"
	OpUnpause          = "unpause"
)

// Op is one scenario line. Amounts are decimal strings; targets are actor
// names, "pool", "fund" or hex addresses.
type Op struct {
	Op         string `json:"op"`
	Actor      string `json:"actor"`
	To         string `json:"to,omitempty"`
	Asset      string `json:"asset,omitempty"`
	Capability string `json:"capability,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Min        string `json:"min,omitempty"`
	Max        string `json:"max,omitempty"`
	Seconds    uint64 `json:"seconds,omitempty"`
	Deadline   uint64 `json:"deadline,omitempty"`

	Line int `json:"-"`
}

// ParseOp decodes and validates one JSONL line.
func ParseOp(line []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(line, &op); err != nil {
		return Op{}, fmt.Errorf("parse op: %w", err)
	}
	op.Op = strings.ToLower(strings.TrimSpace(op.Op))
	op.Actor = strings.TrimSpace(op.Actor)
	if op.Op == "" {
		return Op{}, fmt.Errorf("parse op: missing op")
	}
	if op.Actor == "" && op.Op != OpAdvanceTime {
		return Op{}, fmt.Errorf("parse op %s: missing actor", op.Op)
	}
	return op, nil
}

func (o Op) amount() (*uint256.Int, error) {
	return parseField("amount", o.Amount, true)
}

func (o Op) bounds() (*uint256.Int, *uint256.Int, error) {
	min, err := parseField("min", o.Min, false)
	if err != nil {
		return nil, nil, err
	}
	max, err := parseField("max", o.Max, false)
	if err != nil {
		return nil, nil, err
	}
	return min, max, nil
}

// parseField parses a decimal amount; optional fields default to zero.
func parseField(name, value string, required bool) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return nil, fmt.Errorf("%s is required", name)
		}
		return new(uint256.Int), nil
	}
	v, err := ledger.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
