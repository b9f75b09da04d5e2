// Package guard holds the entry-point checks shared by the engines.
package guard

import (
	"errors"
	"fmt"
	"sync"

	"dexFund/internal/chain"
)

var (
	ErrLocked  = errors.New("locked")
	ErrExpired = errors.New("expired")
)

// Lock is a non-reentrant flag. A second Enter before Exit fails instead of
// blocking, whether it comes from a nested call or another goroutine.
type Lock struct {
	mu     sync.Mutex
	locked bool
}

func (l *Lock) Enter() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return ErrLocked
	}
	l.locked = true
	return nil
}

func (l *Lock) Exit() {
	l.mu.Lock()
	l.locked = false
	l.mu.Unlock()
}

func (l *Lock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Ensure rejects calls whose deadline is before the clock's current time.
func Ensure(clock chain.Clock, deadline uint64) error {
	if now := clock.Now(); now > deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrExpired, deadline, now)
	}
	return nil
}
