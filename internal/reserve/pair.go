package reserve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

var ErrOverflow = errors.New("reserve overflow")

// MaxReserve is the largest balance a reserve slot can hold (2^112 - 1).
var MaxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// Fits reports whether v can be stored in a reserve slot.
func Fits(v *uint256.Int) bool {
	return !v.Gt(MaxReserve)
}

// Snapshot is a point-in-time copy of a pair's reserves.
type Snapshot struct {
	Base       *uint256.Int
	Quote      *uint256.Int
	LastUpdate uint32
}

// Pair tracks the base and quote reserves of one pool and the opening price
// of every time unit in which the reserves changed.
type Pair struct {
	mu           sync.RWMutex
	base         *uint256.Int
	quote        *uint256.Int
	lastUpdate   uint32
	priceHistory map[uint32]*uint256.Int
}

func NewPair() *Pair {
	return &Pair{
		base:         new(uint256.Int),
		quote:        new(uint256.Int),
		priceHistory: make(map[uint32]*uint256.Int),
	}
}

// Sync overwrites the reserves with freshly observed balances. When now falls
// in a new time unit and both prior reserves are non-zero, priorQuote/priorBase
// is recorded as that unit's opening price. The price is deliberately quoted
// as quote units per base unit: the base asset is the first reserve, so this
// is the second reserve over the first, not first over second.
func (p *Pair) Sync(balanceBase, balanceQuote, priorBase, priorQuote *uint256.Int, now uint64) error {
	if !Fits(balanceBase) || !Fits(balanceQuote) {
		return fmt.Errorf("%w: base %s, quote %s", ErrOverflow, balanceBase.Dec(), balanceQuote.Dec())
	}
	ts := uint32(now)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ts != p.lastUpdate && !priorBase.IsZero() && !priorQuote.IsZero() {
		if _, seen := p.priceHistory[ts]; !seen {
			p.priceHistory[ts] = new(uint256.Int).Div(priorQuote, priorBase)
		}
	}
	p.base = balanceBase.Clone()
	p.quote = balanceQuote.Clone()
	p.lastUpdate = ts
	return nil
}

// Reserves returns copies of the current reserves.
func (p *Pair) Reserves() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{Base: p.base.Clone(), Quote: p.quote.Clone(), LastUpdate: p.lastUpdate}
}

// Product returns base*quote and whether it overflowed 256 bits.
func (s Snapshot) Product() (*uint256.Int, bool) {
	return new(uint256.Int).MulOverflow(s.Base, s.Quote)
}

// PriceAt returns the opening price recorded for time unit ts.
func (p *Pair) PriceAt(ts uint32) (*uint256.Int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.priceHistory[ts]
	if !ok {
		return nil, false
	}
	return price.Clone(), true
}

// PriceHistory returns a copy of every recorded sample.
func (p *Pair) PriceHistory() map[uint32]*uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[uint32]*uint256.Int, len(p.priceHistory))
	for ts, price := range p.priceHistory {
		out[ts] = price.Clone()
	}
	return out
}

// Reserve is the single-asset form used by the fund.
type Reserve struct {
	mu         sync.RWMutex
	value      *uint256.Int
	lastUpdate uint32
}

func NewReserve() *Reserve {
	return &Reserve{value: new(uint256.Int)}
}

// Sync overwrites the reserve with an observed balance.
func (r *Reserve) Sync(balance *uint256.Int, now uint64) error {
	if !Fits(balance) {
		return fmt.Errorf("%w: %s", ErrOverflow, balance.Dec())
	}
	r.mu.Lock()
	r.value = balance.Clone()
	r.lastUpdate = uint32(now)
	r.mu.Unlock()
	return nil
}

func (r *Reserve) Value() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value.Clone()
}

func (r *Reserve) LastUpdate() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdate
}
