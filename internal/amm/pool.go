package amm

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

const engineLabel = "pool"

// Config holds the pool parameters. Liquidity bounds apply to the product
// reserveBase*reserveQuote.
type Config struct {
	Name             string
	Address          common.Address
	ChainID          uint64
	FeeMultiplier    uint64
	MinimumLiquidity *uint256.Int
	MaximumLiquidity *uint256.Int
}

// DefaultConfig returns a 0.3% pool with a product floor of 1000 and no ceiling.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FeeMultiplier:    DefaultFeeMultiplier,
		MinimumLiquidity: uint256.NewInt(1000),
		MaximumLiquidity: new(uint256.Int).SetAllOne(),
	}
}

// Deps are the collaborators a pool is wired to.
type Deps struct {
	Base     ledger.Ledger
	Quote    ledger.Ledger
	Roles    access.Checker
	Clock    chain.Clock
	Recorder events.Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// LiquidityRecord is one entry of a holder's deposit/withdrawal trail.
type LiquidityRecord struct {
	Timestamp   uint64
	IsDeposit   bool
	AmountBase  *uint256.Int
	AmountQuote *uint256.Int
}

// Pool is a constant-product pool between a base and a quote asset.
type Pool struct {
	name    string
	address common.Address
	base    ledger.Ledger
	quote   ledger.Ledger
	shares  *ledger.Token
	pair    *reserve.Pair

	roles    access.Checker
	clock    chain.Clock
	recorder events.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	lock guard.Lock

	mu            sync.RWMutex
	feeMultiplier uint64
	minLiquidity  *uint256.Int
	maxLiquidity  *uint256.Int
	records       map[common.Address][]LiquidityRecord
}

func NewPool(cfg Config, deps Deps) (*Pool, error) {
	if deps.Base == nil || deps.Quote == nil {
		return nil, fmt.Errorf("%w: base and quote ledgers are required", ErrInvalidConfig)
	}
	if deps.Base.Address() == deps.Quote.Address() {
		return nil, fmt.Errorf("%w: identical assets", ErrInvalidConfig)
	}
	if err := validateFee(cfg.FeeMultiplier); err != nil {
		return nil, err
	}
	minLiquidity, maxLiquidity := cfg.MinimumLiquidity, cfg.MaximumLiquidity
	if minLiquidity == nil {
		minLiquidity = new(uint256.Int)
	}
	if maxLiquidity == nil {
		maxLiquidity = new(uint256.Int).SetAllOne()
	}
	if minLiquidity.Gt(maxLiquidity) {
		return nil, fmt.Errorf("%w: minimum liquidity above maximum", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = deps.Base.Symbol() + "-" + deps.Quote.Symbol()
	}
	if cfg.Address == (common.Address{}) {
		cfg.Address = chain.DeriveAddress("pool:" + cfg.Name)
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
		Name:    cfg.Name + " liquidity",
		Symbol:  cfg.Name + "-LP",
		Address: chain.DeriveAddress("pool-shares:" + cfg.Address.Hex()),
		ChainID: cfg.ChainID,
	}, access.NewRoles(cfg.Address), deps.Clock)

	return &Pool{
		name:          cfg.Name,
		address:       cfg.Address,
		base:          deps.Base,
		quote:         deps.Quote,
		shares:        shares,
		pair:          reserve.NewPair(),
		roles:         deps.Roles,
		clock:         deps.Clock,
		recorder:      deps.Recorder,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With(zap.String("pool", cfg.Name)),
		feeMultiplier: cfg.FeeMultiplier,
		minLiquidity:  minLiquidity.Clone(),
		maxLiquidity:  maxLiquidity.Clone(),
		records:       make(map[common.Address][]LiquidityRecord),
	}, nil
}

func validateFee(m uint64) error {
	if m == 0 || m > FeeDenominator {
		return fmt.Errorf("%w: fee multiplier %d outside (0, %d]", ErrInvalidConfig, m, FeeDenominator)
	}
	return nil
}

func (p *Pool) Name() string               { return p.name }
func (p *Pool) Address() common.Address    { return p.address }
func (p *Pool) Base() ledger.Ledger        { return p.base }
func (p *Pool) Quote() ledger.Ledger       { return p.quote }
func (p *Pool) ShareToken() *ledger.Token  { return p.shares }
func (p *Pool) Reserves() reserve.Snapshot { return p.pair.Reserves() }

// PriceAt returns the opening quote-per-base price recorded for time unit ts.
func (p *Pool) PriceAt(ts uint32) (*uint256.Int, bool) {
	return p.pair.PriceAt(ts)
}

func (p *Pool) FeeMultiplier() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeMultiplier
}

// LiquidityBounds returns the minimum and maximum reserve product.
func (p *Pool) LiquidityBounds() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minLiquidity.Clone(), p.maxLiquidity.Clone()
}

// LiquidityHistory returns the caller's own deposit/withdrawal trail.
func (p *Pool) LiquidityHistory(caller common.Address) []LiquidityRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	records := p.records[caller]
	out := make([]LiquidityRecord, len(records))
	for i, r := range records {
		out[i] = LiquidityRecord{
			Timestamp:   r.Timestamp,
			IsDeposit:   r.IsDeposit,
			AmountBase:  r.AmountBase.Clone(),
			AmountQuote: r.AmountQuote.Clone(),
		}
	}
	return out
}

// SetFeeMultiplier changes the per-thousand multiplier used by quotes.
func (p *Pool) SetFeeMultiplier(caller common.Address, m uint64) error {
	if err := access.Require(p.roles, caller, access.CapFeeSetter); err != nil {
		return fmt.Errorf("set fee multiplier: %w", err)
	}
	if err := validateFee(m); err != nil {
		return err
	}
	p.mu.Lock()
	p.feeMultiplier = m
	p.mu.Unlock()
	p.logger.Info("fee multiplier updated", zap.Uint64("fee_multiplier", m), zap.String("caller", caller.Hex()))
	return nil
}

// SetLiquidityBounds changes the reserve product bounds.
func (p *Pool) SetLiquidityBounds(caller common.Address, minimum, maximum *uint256.Int) error {
	if err := access.Require(p.roles, caller, access.CapGovernance); err != nil {
		return fmt.Errorf("set liquidity bounds: %w", err)
	}
	if minimum == nil || maximum == nil || minimum.Gt(maximum) {
		return fmt.Errorf("%w: liquidity bounds", ErrInvalidConfig)
	}
	p.mu.Lock()
	p.minLiquidity = minimum.Clone()
	p.maxLiquidity = maximum.Clone()
	p.mu.Unlock()
	p.logger.Info("liquidity bounds updated", zap.String("minimum", minimum.Dec()), zap.String("maximum", maximum.Dec()))
	return nil
}

// GetAmountOut quotes a swap against the current reserves. baseIn selects
// the direction.
func (p *Pool) GetAmountOut(amountIn *uint256.Int, baseIn bool) (*uint256.Int, error) {
	rIn, rOut := p.directional(baseIn)
	return GetAmountOut(amountIn, rIn, rOut, p.FeeMultiplier())
}

// GetAmountIn returns the input needed for amountOut against the current reserves.
func (p *Pool) GetAmountIn(amountOut *uint256.Int, baseIn bool) (*uint256.Int, error) {
	rIn, rOut := p.directional(baseIn)
	return GetAmountIn(amountOut, rIn, rOut, p.FeeMultiplier())
}

// GetAmountMatch returns the quote amount a deposit of baseIn requires.
func (p *Pool) GetAmountMatch(baseIn *uint256.Int) (*uint256.Int, error) {
	res := p.pair.Reserves()
	return GetAmountMatch(baseIn, res.Base, res.Quote)
}

// GetBurnValue previews the assets returned for burning shares.
func (p *Pool) GetBurnValue(shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	supply := p.shares.TotalSupply()
	if supply.IsZero() || shares.Gt(supply) {
		return nil, nil, ErrInsufficientLiquidity
	}
	outBase, err := mulDiv(shares, p.base.BalanceOf(p.address), supply)
	if err != nil {
		return nil, nil, err
	}
	outQuote, err := mulDiv(shares, p.quote.BalanceOf(p.address), supply)
	if err != nil {
		return nil, nil, err
	}
	return outBase, outQuote, nil
}

func (p *Pool) directional(baseIn bool) (*uint256.Int, *uint256.Int) {
	res := p.pair.Reserves()
	if baseIn {
		return res.Base, res.Quote
	}
	return res.Quote, res.Base
}

// execute runs fn as one atomic call: deadline, reentrancy lock, ledger
// journal and buffered events. Events reach the recorder only on success.
func (p *Pool) execute(op string, call chain.Call, deadline uint64, fn func(batch *events.Batch) error) error {
	err := p.run(call, deadline, fn)
	p.metrics.Observe(engineLabel, op, err, Reason(err))
	if err != nil {
		p.logger.Debug("call rejected", zap.String("op", op), zap.String("sender", call.Sender.Hex()), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	res := p.pair.Reserves()
	p.metrics.SetReserves(p.name, res.Base, res.Quote)
	return nil
}

func (p *Pool) run(call chain.Call, deadline uint64, fn func(batch *events.Batch) error) error {
	if err := guard.Ensure(p.clock, deadline); err != nil {
		return err
	}
	if err := p.lock.Enter(); err != nil {
		return err
	}
	defer p.lock.Exit()

	batch := events.NewBatch(p.address)
	err := ledger.Atomic(p.address, func() error {
		return fn(batch)
	}, p.base, p.quote, p.shares)
	if err != nil {
		return err
	}
	batch.Commit(p.recorder)
	return nil
}

// commit is the last step of every mutating call: it syncs the pair and, for
// liquidity events, appends the holder's record. Nothing after it can fail.
func (p *Pool) commit(batch *events.Batch, balBase, balQuote *uint256.Int, prior reserve.Snapshot, record *liquidityEntry) error {
	batch.Add(events.EventSync, balBase, balQuote)
	if err := batch.Err(); err != nil {
		return err
	}
	if err := p.pair.Sync(balBase, balQuote, prior.Base, prior.Quote, p.clock.Now()); err != nil {
		return err
	}
	if record != nil {
		p.mu.Lock()
		p.records[record.holder] = append(p.records[record.holder], record.LiquidityRecord)
		p.mu.Unlock()
	}
	return nil
}

type liquidityEntry struct {
	holder common.Address
	LiquidityRecord
}

func (p *Pool) balances() (*uint256.Int, *uint256.Int) {
	return p.base.BalanceOf(p.address), p.quote.BalanceOf(p.address)
}
