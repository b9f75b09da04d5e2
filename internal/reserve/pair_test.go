package reserve

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestPairSyncRecordsOpeningPrice(t *testing.T) {
	p := NewPair()

	if err := p.Sync(u(50), u(500000), u(0), u(0), 100); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := p.PriceAt(100); ok {
		t.Fatalf("price recorded with zero prior reserves")
	}

	if err := p.Sync(u(60), u(420000), u(50), u(500000), 101); err != nil {
		t.Fatalf("sync: %v", err)
	}
	price, ok := p.PriceAt(101)
	if !ok || price.Uint64() != 10000 {
		t.Fatalf("price at 101: got %v ok=%v", price, ok)
	}

	// same time unit: no new sample, reserves still overwritten
	if err := p.Sync(u(70), u(360000), u(60), u(420000), 101); err != nil {
		t.Fatalf("sync: %v", err)
	}
	price, _ = p.PriceAt(101)
	if price.Uint64() != 10000 {
		t.Fatalf("price overwritten: %s", price.Dec())
	}
	snap := p.Reserves()
	if snap.Base.Uint64() != 70 || snap.Quote.Uint64() != 360000 || snap.LastUpdate != 101 {
		t.Fatalf("unexpected reserves: %+v", snap)
	}
	if len(p.PriceHistory()) != 1 {
		t.Fatalf("history size: %d", len(p.PriceHistory()))
	}
}

func TestPairSyncOverflow(t *testing.T) {
	p := NewPair()
	tooBig := new(uint256.Int).AddUint64(MaxReserve, 1)
	err := p.Sync(tooBig, u(1), u(0), u(0), 1)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if !p.Reserves().Base.IsZero() {
		t.Fatalf("reserves changed on overflow")
	}
	if err := p.Sync(MaxReserve, MaxReserve, u(0), u(0), 1); err != nil {
		t.Fatalf("max reserve rejected: %v", err)
	}
}

func TestReserveSync(t *testing.T) {
	r := NewReserve()
	if err := r.Sync(u(42), 7); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if r.Value().Uint64() != 42 || r.LastUpdate() != 7 {
		t.Fatalf("unexpected reserve %s at %d", r.Value().Dec(), r.LastUpdate())
	}
	if err := r.Sync(new(uint256.Int).AddUint64(MaxReserve, 1), 8); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestPairPriceIsQuotePerBase(t *testing.T) {
	p := NewPair()
	if err := p.Sync(u(500000), u(50), u(500000), u(50), 7); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// 50/500000 floors to zero; base over quote would have given 10000
	price, ok := p.PriceAt(7)
	if !ok || !price.IsZero() {
		t.Fatalf("price at 7: got %v ok=%v", price, ok)
	}
}
