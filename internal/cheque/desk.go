package cheque

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/events"
	"dexFund/internal/ledger"
	"dexFund/internal/metrics"
)

const (
	engineLabel    = "cheque"
	feeDenominator = 1000
)

var (
	ErrInvalidSpender = errors.New("caller is not the cheque spender")
	ErrArityMismatch  = errors.New("arity mismatch")
	ErrInvalidFee     = errors.New("invalid fee")
)

// Token is the ledger surface cheque cashing needs.
type Token interface {
	ledger.Journaled
	Address() common.Address
	Symbol() string
	Permit(owner, spender common.Address, value *uint256.Int, deadline uint64, sig []byte) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	BurnFrom(spender, from common.Address, amount *uint256.Int) error
}

// Cheque is a permit signed by Owner that Spender cashes.
type Cheque struct {
	Owner     common.Address
	Spender   common.Address
	Value     *uint256.Int
	Deadline  uint64
	Signature []byte
}

type Deps struct {
	Token    Token
	Roles    access.Checker
	Recorder events.Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Desk cashes cheques drawn on one token and burns a per-thousand fee from
// the owner.
type Desk struct {
	token    Token
	roles    access.Checker
	recorder events.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu             sync.RWMutex
	feePerThousand uint64
}

func NewDesk(feePerThousand uint64, deps Deps) (*Desk, error) {
	if deps.Token == nil {
		return nil, errors.New("cheque desk: token is required")
	}
	if feePerThousand > feeDenominator {
		return nil, fmt.Errorf("%w: %d per thousand", ErrInvalidFee, feePerThousand)
	}
	if deps.Recorder == nil {
		deps.Recorder = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Desk{
		token:          deps.Token,
		roles:          deps.Roles,
		recorder:       deps.Recorder,
		metrics:        deps.Metrics,
		logger:         deps.Logger.With(zap.String("cheque_desk", deps.Token.Symbol())),
		feePerThousand: feePerThousand,
	}, nil
}

func (d *Desk) FeePerThousand() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.feePerThousand
}

func (d *Desk) SetFeePerThousand(caller common.Address, fee uint64) error {
	if err := access.Require(d.roles, caller, access.CapFeeSetter); err != nil {
		return fmt.Errorf("set cheque fee: %w", err)
	}
	if fee > feeDenominator {
		return fmt.Errorf("%w: %d per thousand", ErrInvalidFee, fee)
	}
	d.mu.Lock()
	d.feePerThousand = fee
	d.mu.Unlock()
	d.logger.Info("cheque fee updated", zap.Uint64("fee_per_thousand", fee))
	return nil
}

// Fee returns the part of value burned when a cheque is cashed.
func (d *Desk) Fee(value *uint256.Int) *uint256.Int {
	// fee <= 1000, so the quotient always fits
	fee, _ := new(uint256.Int).MulDivOverflow(value, uint256.NewInt(d.FeePerThousand()), uint256.NewInt(feeDenominator))
	return fee
}

// Cash redeems one cheque. Only the named spender may cash it.
func (d *Desk) Cash(caller common.Address, c Cheque) error {
	return d.execute("cash", func(batch *events.Batch) error {
		return d.cash(batch, caller, c)
	})
}

// CashBatch redeems cheques given as parallel slices. Either every cheque is
// cashed or none is.
func (d *Desk) CashBatch(caller common.Address, owners, spenders []common.Address, values []*uint256.Int, deadlines []uint64, signatures [][]byte) error {
	n := len(owners)
	if len(spenders) != n || len(values) != n || len(deadlines) != n || len(signatures) != n {
		err := fmt.Errorf("%w: %d owners, %d spenders, %d values, %d deadlines, %d signatures",
			ErrArityMismatch, n, len(spenders), len(values), len(deadlines), len(signatures))
		d.metrics.Observe(engineLabel, "cash_batch", err, "arity_mismatch")
		return fmt.Errorf("cash_batch: %w", err)
	}
	return d.execute("cash_batch", func(batch *events.Batch) error {
		for i := 0; i < n; i++ {
			c := Cheque{Owner: owners[i], Spender: spenders[i], Value: values[i], Deadline: deadlines[i], Signature: signatures[i]}
			if err := d.cash(batch, caller, c); err != nil {
				return fmt.Errorf("cheque %d: %w", i, err)
			}
		}
		return nil
	})
}

func (d *Desk) cash(batch *events.Batch, caller common.Address, c Cheque) error {
	if caller != c.Spender {
		return fmt.Errorf("%w: caller %s, spender %s", ErrInvalidSpender, caller.Hex(), c.Spender.Hex())
	}
	if err := d.token.Permit(c.Owner, c.Spender, c.Value, c.Deadline, c.Signature); err != nil {
		return err
	}
	fee := d.Fee(c.Value)
	net := new(uint256.Int).Sub(c.Value, fee)
	if !net.IsZero() {
		if err := d.token.TransferFrom(c.Spender, c.Owner, c.Spender, net); err != nil {
			return err
		}
	}
	if !fee.IsZero() {
		if err := d.token.BurnFrom(c.Spender, c.Owner, fee); err != nil {
			return err
		}
	}
	batch.Add(events.EventChequeCashed, c.Owner, c.Spender, c.Value, fee)
	return batch.Err()
}

func (d *Desk) execute(op string, fn func(batch *events.Batch) error) error {
	batch := events.NewBatch(d.token.Address())
	err := ledger.Atomic(d.token.Address(), func() error {
		return fn(batch)
	}, d.token)
	d.metrics.Observe(engineLabel, op, err, reason(err))
	if err != nil {
		d.logger.Debug("cheque rejected", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	batch.Commit(d.recorder)
	return nil
}

func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSpender):
		return "invalid_spender"
	case errors.Is(err, ledger.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ledger.ErrExpired):
		return "expired"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrPaused):
		return "paused"
	default:
		return "other"
	}
}
