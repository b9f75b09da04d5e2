package amm

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/chain"
	"dexFund/internal/events"
	"dexFund/internal/guard"
	"dexFund/internal/ledger"
	"dexFund/internal/metrics"
)

var (
	gov   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bob   = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type fixture struct {
	clock   *chain.ManualClock
	roles   *access.Roles
	base    *ledger.Token
	quote   *ledger.Token
	pool    *Pool
	journal *events.Journal
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := chain.NewManualClock(1_700_000_000)
	roles := access.NewRoles(gov)
	base := ledger.NewToken(ledger.TokenConfig{Name: "Wrapped BNB", Symbol: "WBNB"}, roles, clock)
	quote := ledger.NewToken(ledger.TokenConfig{Name: "Quote", Symbol: "ADNS"}, roles, clock)
	journal := events.NewJournal(56, clock, zap.NewNop())
	m, err := metrics.New("test", prometheus.NewRegistry())
	require.NoError(t, err)

	pool, err := NewPool(DefaultConfig("WBNB-ADNS"), Deps{
		Base:     base,
		Quote:    quote,
		Roles:    roles,
		Clock:    clock,
		Recorder: journal,
		Metrics:  m,
	})
	require.NoError(t, err)

	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, base.Mint(gov, who, u(1_000_000)))
		require.NoError(t, quote.Mint(gov, who, u(10_000_000)))
		require.NoError(t, quote.Approve(who, pool.Address(), new(uint256.Int).SetAllOne()))
	}
	return &fixture{clock: clock, roles: roles, base: base, quote: quote, pool: pool, journal: journal, metrics: m}
}

func (f *fixture) deadline() uint64 { return f.clock.Now() + 60 }

func payable(sender common.Address, value uint64) chain.Call {
	return chain.Call{Sender: sender, Value: u(value)}
}

func (f *fixture) seed(t *testing.T, base, quote uint64) *uint256.Int {
	t.Helper()
	shares, err := f.pool.AddLiquidity(payable(alice, base), u(base), u(quote), u(0), f.deadline())
	require.NoError(t, err)
	return shares
}

func TestInitialDepositMintsSqrtShares(t *testing.T) {
	f := newFixture(t)

	shares := f.seed(t, 50, 500000)
	require.Equal(t, uint64(5000), shares.Uint64())
	require.Equal(t, uint64(5000), f.pool.ShareToken().BalanceOf(alice).Uint64())

	res := f.pool.Reserves()
	require.Equal(t, uint64(50), res.Base.Uint64())
	require.Equal(t, uint64(500000), res.Quote.Uint64())

	history := f.pool.LiquidityHistory(alice)
	require.Len(t, history, 1)
	require.True(t, history[0].IsDeposit)
	require.Equal(t, uint64(500000), history[0].AmountQuote.Uint64())
	require.Empty(t, f.pool.LiquidityHistory(bob))

	records := f.journal.Records()
	require.Len(t, records, 2)
	require.Equal(t, f.pool.Address().Hex(), records[0].Address)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("pool", "add_liquidity", "ok")))
}

func TestSecondDepositMatchesRatio(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)

	quote, err := f.pool.GetAmountMatch(u(27))
	require.NoError(t, err)
	require.Equal(t, uint64(270000), quote.Uint64())

	_, err = f.pool.AddLiquidity(payable(bob, 27), u(27), u(300000), u(270001), f.deadline())
	require.ErrorIs(t, err, ErrSlippageRateExceeded)
	require.Equal(t, uint64(1_000_000), f.base.BalanceOf(bob).Uint64())

	shares, err := f.pool.AddLiquidity(payable(bob, 27), u(27), u(300000), u(0), f.deadline())
	require.NoError(t, err)
	require.Equal(t, uint64(2700), shares.Uint64())
	require.Equal(t, uint64(10_000_000-270000), f.quote.BalanceOf(bob).Uint64())

	res := f.pool.Reserves()
	require.Equal(t, uint64(77), res.Base.Uint64())
	require.Equal(t, uint64(770000), res.Quote.Uint64())

	// minted/supply tracks contributed/reserve within one unit
	supply := f.pool.ShareToken().TotalSupply().Uint64()
	require.InDelta(t, float64(27)/float64(77), float64(2700)/float64(supply), 1.0/float64(supply))
}

func TestAddLiquidityRejectsValueMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.AddLiquidity(payable(alice, 49), u(50), u(500000), u(0), f.deadline())
	require.ErrorIs(t, err, ErrValueMismatch)

	_, err = f.pool.AddLiquidity(payable(common.Address{}, 50), u(50), u(500000), u(0), f.deadline())
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = f.pool.AddLiquidity(payable(alice, 50), u(50), u(0), u(0), f.deadline())
	require.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
	require.True(t, f.pool.Reserves().Base.IsZero())
	require.True(t, f.base.BalanceOf(f.pool.Address()).IsZero())
}

func TestBuyQuotesBelowFeeFreeOutput(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 500, 5_000_000)
	before := f.pool.Reserves()

	quoted, err := f.pool.GetAmountOut(u(75), true)
	require.NoError(t, err)
	require.Equal(t, uint64(650471), quoted.Uint64())

	out, err := f.pool.Buy(payable(bob, 75), u(0), u(0), bob, f.deadline())
	require.NoError(t, err)
	require.Equal(t, quoted, out)
	require.Less(t, out.Uint64(), uint64(75*5_000_000/575))
	require.Equal(t, uint64(10_000_000+650471), f.quote.BalanceOf(bob).Uint64())

	after := f.pool.Reserves()
	require.Equal(t, uint64(575), after.Base.Uint64())
	require.Equal(t, uint64(5_000_000-650471), after.Quote.Uint64())
	kBefore, _ := before.Product()
	kAfter, _ := after.Product()
	require.False(t, kAfter.Lt(kBefore))
}

func TestSellPullsQuoteAllowance(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 500, 5_000_000)

	out, err := f.pool.Sell(chain.NewCall(bob), u(100_000), u(1), u(0), bob, f.deadline())
	require.NoError(t, err)
	expected, err := GetAmountOut(u(100_000), u(5_000_000), u(500), DefaultFeeMultiplier)
	require.NoError(t, err)
	require.Equal(t, expected, out)
	require.Equal(t, uint64(1_000_000)+out.Uint64(), f.base.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(5_100_000), f.pool.Reserves().Quote.Uint64())
}

func TestSwapRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)

	_, err := f.pool.Buy(payable(bob, 10), u(0), u(0), f.quote.Address(), f.deadline())
	require.ErrorIs(t, err, ErrInvalidTo)
	_, err = f.pool.Buy(payable(bob, 10), u(0), u(0), f.pool.Address(), f.deadline())
	require.ErrorIs(t, err, ErrInvalidTo)

	_, err = f.pool.Buy(payable(bob, 10), u(83125), u(0), bob, f.deadline())
	require.ErrorIs(t, err, ErrSlippageRateExceeded)
	_, err = f.pool.Buy(payable(bob, 10), u(0), u(83123), bob, f.deadline())
	require.ErrorIs(t, err, ErrSlippageRateExceeded)

	_, err = f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.clock.Now()-1)
	require.ErrorIs(t, err, guard.ErrExpired)

	_, err = f.pool.Buy(payable(bob, 0), u(0), u(0), bob, f.deadline())
	require.ErrorIs(t, err, ErrInsufficientInputAmount)

	require.Equal(t, uint64(50), f.pool.Reserves().Base.Uint64())
	require.Equal(t, uint64(1_000_000), f.base.BalanceOf(bob).Uint64())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues("pool", "buy", "expired")))
}

func TestZeroFeeMultiplierTripsInvariant(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)

	require.ErrorIs(t, f.pool.SetFeeMultiplier(bob, 1000), access.ErrAccessRejected)
	require.ErrorIs(t, f.pool.SetFeeMultiplier(gov, 1001), ErrInvalidConfig)
	require.NoError(t, f.pool.SetFeeMultiplier(gov, 1000))

	// the quote path charges nothing but the product re-check still deducts 0.3%
	_, err := f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.deadline())
	require.ErrorIs(t, err, ErrK)
	require.Equal(t, uint64(1_000_000), f.base.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(10_000_000), f.quote.BalanceOf(bob).Uint64())

	require.NoError(t, f.roles.Grant(gov, bob, access.CapFeeSetter))
	require.NoError(t, f.pool.SetFeeMultiplier(bob, 990))
	_, err = f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.deadline())
	require.NoError(t, err)
}

func TestRemoveLiquidityProRata(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)

	base, quote, err := f.pool.GetBurnValue(u(2500))
	require.NoError(t, err)
	require.Equal(t, uint64(25), base.Uint64())
	require.Equal(t, uint64(250000), quote.Uint64())

	_, _, err = f.pool.RemoveLiquidity(chain.NewCall(alice), u(5000), f.deadline())
	require.ErrorIs(t, err, ErrMinimumPoolLiquidity)
	_, _, err = f.pool.RemoveLiquidity(chain.NewCall(bob), u(1), f.deadline())
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	outBase, outQuote, err := f.pool.RemoveLiquidity(chain.NewCall(alice), u(2500), f.deadline())
	require.NoError(t, err)
	require.Equal(t, uint64(25), outBase.Uint64())
	require.Equal(t, uint64(250000), outQuote.Uint64())
	require.Equal(t, uint64(2500), f.pool.ShareToken().TotalSupply().Uint64())

	// round trip never returns more than was contributed
	require.LessOrEqual(t, f.base.BalanceOf(alice).Uint64(), uint64(1_000_000))
	require.LessOrEqual(t, f.quote.BalanceOf(alice).Uint64(), uint64(10_000_000))

	history := f.pool.LiquidityHistory(alice)
	require.Len(t, history, 2)
	require.False(t, history[1].IsDeposit)

	_, _, err = f.pool.RemoveLiquidity(chain.NewCall(alice), u(1), f.deadline())
	require.ErrorIs(t, err, ErrInsufficientLiquidityBurned)
}

func TestMaximumPoolLiquidity(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.pool.SetLiquidityBounds(bob, u(0), u(1)), access.ErrAccessRejected)
	require.ErrorIs(t, f.pool.SetLiquidityBounds(gov, u(2), u(1)), ErrInvalidConfig)
	require.NoError(t, f.pool.SetLiquidityBounds(gov, u(1000), u(25_000_000)))

	f.seed(t, 50, 500000)
	_, err := f.pool.AddLiquidity(payable(bob, 1), u(1), u(10000), u(0), f.deadline())
	require.ErrorIs(t, err, ErrMaximumPoolLiquidity)

	minimum, maximum := f.pool.LiquidityBounds()
	require.Equal(t, uint64(1000), minimum.Uint64())
	require.Equal(t, uint64(25_000_000), maximum.Uint64())
}

func TestReentrantCallIsLocked(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)

	var inner error
	f.quote.OnTransfer(func(from, to common.Address, amount *uint256.Int) error {
		if from == f.pool.Address() && to == bob {
			_, inner = f.pool.Sell(chain.NewCall(bob), u(10), u(0), u(0), bob, f.deadline())
			if inner == nil {
				return errors.New("reentered")
			}
		}
		return nil
	})

	_, err := f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.deadline())
	require.NoError(t, err)
	require.ErrorIs(t, inner, guard.ErrLocked)

	// the guard is released after the outer call
	_, err = f.pool.Sell(chain.NewCall(bob), u(100_000), u(1), u(0), alice, f.deadline())
	require.NoError(t, err)
}

func TestFailedSwapLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)
	logs := len(f.journal.Records())

	f.quote.OnTransfer(func(from, to common.Address, amount *uint256.Int) error {
		if to == bob {
			return errors.New("recipient rejects")
		}
		return nil
	})
	_, err := f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.deadline())
	require.ErrorIs(t, err, ledger.ErrHookRejected)

	require.Equal(t, uint64(1_000_000), f.base.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(50), f.base.BalanceOf(f.pool.Address()).Uint64())
	require.Equal(t, uint64(500000), f.pool.Reserves().Quote.Uint64())
	require.Len(t, f.journal.Records(), logs)
}

func TestPriceHistoryRecordsOpeningPrice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 50, 500000)
	start := uint32(f.clock.Now())

	f.clock.Advance(12)
	_, err := f.pool.Buy(payable(bob, 10), u(0), u(0), bob, f.deadline())
	require.NoError(t, err)

	_, ok := f.pool.PriceAt(start)
	require.False(t, ok)
	price, ok := f.pool.PriceAt(start + 12)
	require.True(t, ok)
	require.Equal(t, uint64(10000), price.Uint64())
}
