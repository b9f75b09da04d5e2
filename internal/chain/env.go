package chain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Clock reports the host's current block time in unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall time.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is a settable Clock for tests and scenario replays.
type ManualClock struct {
	mu  sync.RWMutex
	now uint64
}

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d seconds and returns the new time.
func (c *ManualClock) Advance(d uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Set pins the clock to ts.
func (c *ManualClock) Set(ts uint64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

// Call carries the caller identity and the native value attached to an entry point.
type Call struct {
	Sender common.Address
	Value  *uint256.Int
}

// NewCall builds a Call without attached value.
func NewCall(sender common.Address) Call {
	return Call{Sender: sender, Value: new(uint256.Int)}
}

// AttachedValue returns the attached value, zero when unset.
func (c Call) AttachedValue() *uint256.Int {
	if c.Value == nil {
		return new(uint256.Int)
	}
	return c.Value
}

// DeriveAddress returns a deterministic address for a label, used to name
// tokens, pools and funds that have no key of their own.
func DeriveAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label)))
}
