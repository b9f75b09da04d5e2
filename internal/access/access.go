package access

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Capability names a privileged operation family.
type Capability uint8

const (
	CapGovernance Capability = iota + 1
	CapFeeSetter
	CapTrader
	CapMinter
	CapPauser
	CapSnapshot
)

var ErrAccessRejected = errors.New("access rejected")

func (c Capability) String() string {
	switch c {
	case CapGovernance:
		return "governance"
	case CapFeeSetter:
		return "fee_setter"
	case CapTrader:
		return "trader"
	case CapMinter:
		return "minter"
	case CapPauser:
		return "pauser"
	case CapSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// ParseCapability maps a config/scenario name to a Capability.
func ParseCapability(name string) (Capability, error) {
	for c := CapGovernance; c <= CapSnapshot; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability: %s", name)
}

// Checker answers capability questions for engines.
type Checker interface {
	HasCapability(principal common.Address, c Capability) bool
}

// Require returns ErrAccessRejected when principal lacks c.
func Require(checker Checker, principal common.Address, c Capability) error {
	if checker == nil || !checker.HasCapability(principal, c) {
		return fmt.Errorf("%w: %s lacks %s", ErrAccessRejected, principal.Hex(), c)
	}
	return nil
}

// Roles is an in-memory Checker. The governance holder implicitly has every
// capability and is the only principal allowed to grant or revoke.
type Roles struct {
	mu         sync.RWMutex
	governance common.Address
	grants     map[Capability]map[common.Address]struct{}
}

func NewRoles(governance common.Address) *Roles {
	return &Roles{
		governance: governance,
		grants:     make(map[Capability]map[common.Address]struct{}),
	}
}

func (r *Roles) HasCapability(principal common.Address, c Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if principal == (common.Address{}) {
		return false
	}
	if principal == r.governance {
		return true
	}
	_, ok := r.grants[c][principal]
	return ok
}

// Governance returns the current governance address.
func (r *Roles) Governance() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.governance
}

// Grant gives principal the capability c.
func (r *Roles) Grant(caller, principal common.Address, c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return fmt.Errorf("%w: grant %s", ErrAccessRejected, c)
	}
	if principal == (common.Address{}) {
		return fmt.Errorf("grant %s: zero principal", c)
	}
	set, ok := r.grants[c]
	if !ok {
		set = make(map[common.Address]struct{})
		r.grants[c] = set
	}
	set[principal] = struct{}{}
	return nil
}

// Revoke removes c from principal. Revoking a missing grant is a no-op.
func (r *Roles) Revoke(caller, principal common.Address, c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return fmt.Errorf("%w: revoke %s", ErrAccessRejected, c)
	}
	delete(r.grants[c], principal)
	return nil
}

// TransferGovernance rotates the governance address.
func (r *Roles) TransferGovernance(caller, next common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return fmt.Errorf("%w: transfer governance", ErrAccessRejected)
	}
	if next == (common.Address{}) {
		return fmt.Errorf("transfer governance: zero address")
	}
	r.governance = next
	return nil
}
