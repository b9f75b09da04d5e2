package fund

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/chain"
	"dexFund/internal/events"
	"dexFund/internal/guard"
	"dexFund/internal/ledger"
	"dexFund/internal/metrics"
	"dexFund/internal/reserve"
)

const engineLabel = "fund"

// noDeadline disables the deadline check for calls that take none.
const noDeadline = ^uint64(0)

type Config struct {
	Name    string
	Address common.Address
	ChainID uint64
}

// Deps are the collaborators a fund is wired to. Base is the staked asset,
// Proceeds the asset trades are settled in.
type Deps struct {
	Base     ledger.Ledger
	Proceeds ledger.Ledger
	Roles    access.Checker
	Clock    chain.Clock
	Recorder events.Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// TradeRecord is the amounts declared by one registered trade.
type TradeRecord struct {
	Spent  *uint256.Int
	Bought *uint256.Int
}

// Fund pools stake in the base asset and distributes trade proceeds to
// stakeholders as eligible balance.
type Fund struct {
	name     string
	address  common.Address
	base     ledger.Ledger
	proceeds ledger.Ledger
	shares   *ledger.Token

	baseReserve     *reserve.Reserve
	proceedsReserve *reserve.Reserve

	roles    access.Checker
	clock    chain.Clock
	recorder events.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	lock guard.Lock

	mu            sync.RWMutex
	stakeholders  []common.Address
	index         map[common.Address]int
	eligible      map[common.Address]*uint256.Int
	totalEligible *uint256.Int
	trades        map[uint64]TradeRecord
}

func NewFund(cfg Config, deps Deps) (*Fund, error) {
	if deps.Base == nil || deps.Proceeds == nil {
		return nil, fmt.Errorf("%w: base and proceeds ledgers are required", ErrInvalidConfig)
	}
	if deps.Base.Address() == deps.Proceeds.Address() {
		return nil, fmt.Errorf("%w: identical assets", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = deps.Base.Symbol() + "-FUND"
	}
	if cfg.Address == (common.Address{}) {
		cfg.Address = chain.DeriveAddress("fund:" + cfg.Name)
	}
	if deps.Clock == nil {
		deps.Clock = chain.SystemClock{}
	}
	if deps.Recorder == nil {
		deps.Recorder = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	shares := ledger.NewToken(ledger.TokenConfig{
		Name:    cfg.Name + " stake",
		Symbol:  cfg.Name + "-S",
		Address: chain.DeriveAddress("fund-shares:" + cfg.Address.Hex()),
		ChainID: cfg.ChainID,
	}, access.NewRoles(cfg.Address), deps.Clock)

	return &Fund{
		name:            cfg.Name,
		address:         cfg.Address,
		base:            deps.Base,
		proceeds:        deps.Proceeds,
		shares:          shares,
		baseReserve:     reserve.NewReserve(),
		proceedsReserve: reserve.NewReserve(),
		roles:           deps.Roles,
		clock:           deps.Clock,
		recorder:        deps.Recorder,
		metrics:         deps.Metrics,
		logger:          deps.Logger.With(zap.String("fund", cfg.Name)),
		index:           make(map[common.Address]int),
		eligible:        make(map[common.Address]*uint256.Int),
		totalEligible:   new(uint256.Int),
		trades:          make(map[uint64]TradeRecord),
	}, nil
}

func (f *Fund) Name() string              { return f.name }
func (f *Fund) Address() common.Address   { return f.address }
func (f *Fund) Base() ledger.Ledger       { return f.base }
func (f *Fund) Proceeds() ledger.Ledger   { return f.proceeds }
func (f *Fund) ShareToken() *ledger.Token { return f.shares }

// Reserves returns the last-synced base and proceeds reserves.
func (f *Fund) Reserves() (*uint256.Int, *uint256.Int) {
	return f.baseReserve.Value(), f.proceedsReserve.Value()
}

func (f *Fund) EligibleOf(account common.Address) *uint256.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.eligibleOf(account)
}

func (f *Fund) TotalEligible() *uint256.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalEligible.Clone()
}

func (f *Fund) IsStakeholder(account common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.index[account]
	return ok
}

func (f *Fund) Stakeholders() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]common.Address(nil), f.stakeholders...)
}

// Trade returns the trade registered at timestamp ts.
func (f *Fund) Trade(ts uint64) (TradeRecord, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.trades[ts]
	if !ok {
		return TradeRecord{}, false
	}
	return TradeRecord{Spent: t.Spent.Clone(), Bought: t.Bought.Clone()}, true
}

// NonEligibleOf is the share balance not yet backed by proceeds.
func (f *Fund) NonEligibleOf(account common.Address) *uint256.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return saturatingSub(f.shares.BalanceOf(account), f.eligibleOf(account))
}

// ApproveTrader lets trader pull up to amount of the fund's base asset.
func (f *Fund) ApproveTrader(call chain.Call, trader common.Address, amount *uint256.Int) error {
	if err := access.Require(f.roles, call.Sender, access.CapGovernance); err != nil {
		return fmt.Errorf("approve trader: %w", err)
	}
	if trader == (common.Address{}) {
		return fmt.Errorf("approve trader: %w", ErrZeroAddress)
	}
	if err := f.base.Approve(f.address, trader, amount); err != nil {
		return fmt.Errorf("approve trader: %w", err)
	}
	f.logger.Info("trader approved", zap.String("trader", trader.Hex()), zap.String("amount", amount.Dec()))
	return nil
}

// EvictStakeholder drops account from the stakeholder set. Accounts holding
// eligible balance cannot be evicted.
func (f *Fund) EvictStakeholder(call chain.Call, account common.Address) error {
	return f.execute("evict_stakeholder", call, noDeadline, func(*events.Batch) error {
		if err := access.Require(f.roles, call.Sender, access.CapGovernance); err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		i, ok := f.index[account]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotStakeholder, account.Hex())
		}
		if !f.eligibleOf(account).IsZero() {
			return fmt.Errorf("%w: %s", ErrEligibleOutstanding, account.Hex())
		}
		last := len(f.stakeholders) - 1
		moved := f.stakeholders[last]
		f.stakeholders[i] = moved
		f.index[moved] = i
		f.stakeholders = f.stakeholders[:last]
		delete(f.index, account)
		delete(f.eligible, account)
		return nil
	})
}

// execute runs fn as one atomic call: deadline, reentrancy lock, ledger
// journal and buffered events.
func (f *Fund) execute(op string, call chain.Call, deadline uint64, fn func(batch *events.Batch) error) error {
	err := f.run(call, deadline, fn)
	f.metrics.Observe(engineLabel, op, err, Reason(err))
	if err != nil {
		f.logger.Debug("call rejected", zap.String("op", op), zap.String("sender", call.Sender.Hex()), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	base, proceeds := f.Reserves()
	f.metrics.SetReserves(f.name, base, proceeds)
	return nil
}

func (f *Fund) run(call chain.Call, deadline uint64, fn func(batch *events.Batch) error) error {
	if deadline != noDeadline {
		if err := guard.Ensure(f.clock, deadline); err != nil {
			return err
		}
	}
	if err := f.lock.Enter(); err != nil {
		return err
	}
	defer f.lock.Exit()

	batch := events.NewBatch(f.address)
	err := ledger.Atomic(f.address, func() error {
		return fn(batch)
	}, f.base, f.proceeds, f.shares)
	if err != nil {
		return err
	}
	batch.Commit(f.recorder)
	return nil
}

// commit syncs both reserves to the observed balances and then applies the
// in-memory update. It is the last step of every mutating call.
func (f *Fund) commit(batch *events.Batch, apply func()) error {
	balBase, balProceeds := f.balances()
	batch.Add(events.EventSync, balBase, balProceeds)
	if err := batch.Err(); err != nil {
		return err
	}
	if !reserve.Fits(balBase) || !reserve.Fits(balProceeds) {
		return fmt.Errorf("%w: %s/%s", ErrOverflow, balBase.Dec(), balProceeds.Dec())
	}
	now := f.clock.Now()
	if err := f.baseReserve.Sync(balBase, now); err != nil {
		return err
	}
	if err := f.proceedsReserve.Sync(balProceeds, now); err != nil {
		return err
	}
	if apply != nil {
		f.mu.Lock()
		apply()
		f.mu.Unlock()
	}
	return nil
}

func (f *Fund) balances() (*uint256.Int, *uint256.Int) {
	return f.base.BalanceOf(f.address), f.proceeds.BalanceOf(f.address)
}

// eligibleOf requires f.mu.
func (f *Fund) eligibleOf(account common.Address) *uint256.Int {
	if v, ok := f.eligible[account]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// addStakeholder requires f.mu.
func (f *Fund) addStakeholder(account common.Address) {
	if _, ok := f.index[account]; ok {
		return
	}
	f.index[account] = len(f.stakeholders)
	f.stakeholders = append(f.stakeholders, account)
}

func saturatingSub(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s*%s/%s", ErrOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}
