package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"dexFund/internal/access"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot id")

type snapshotValue struct {
	id    uint64
	value *uint256.Int
}

// snapshotLog records pre-change values lazily: an account's value is only
// written the first time it changes after a snapshot is taken.
type snapshotLog struct {
	current  uint64
	accounts map[common.Address][]snapshotValue
	supply   []snapshotValue
}

func newSnapshotLog() snapshotLog {
	return snapshotLog{accounts: make(map[common.Address][]snapshotValue)}
}

func (s *snapshotLog) recordBalance(j *journal, account common.Address, value *uint256.Int) {
	if s.current == 0 {
		return
	}
	values := s.accounts[account]
	if len(values) > 0 && values[len(values)-1].id >= s.current {
		return
	}
	s.accounts[account] = append(values, snapshotValue{id: s.current, value: value})
	j.append(func() {
		s.accounts[account] = s.accounts[account][:len(s.accounts[account])-1]
	})
}

func (s *snapshotLog) recordSupply(j *journal, value *uint256.Int) {
	if s.current == 0 {
		return
	}
	if len(s.supply) > 0 && s.supply[len(s.supply)-1].id >= s.current {
		return
	}
	s.supply = append(s.supply, snapshotValue{id: s.current, value: value})
	j.append(func() { s.supply = s.supply[:len(s.supply)-1] })
}

func (s *snapshotLog) lookup(values []snapshotValue, id uint64) (*uint256.Int, bool) {
	idx := sort.Search(len(values), func(i int) bool { return values[i].id >= id })
	if idx == len(values) {
		return nil, false
	}
	return values[idx].value, true
}

// TakeSnapshot starts a new snapshot and returns its id. Caller needs the
// snapshot capability.
func (t *Token) TakeSnapshot(caller common.Address) (uint64, error) {
	if err := access.Require(t.roles, caller, access.CapSnapshot); err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", t.cfg.Symbol, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots.current++
	id := t.snapshots.current
	t.journal.append(func() { t.snapshots.current = id - 1 })
	return id, nil
}

// BalanceOfAt returns account's balance at snapshot id.
func (t *Token) BalanceOfAt(account common.Address, id uint64) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 || id > t.snapshots.current {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	if value, ok := t.snapshots.lookup(t.snapshots.accounts[account], id); ok {
		return value.Clone(), nil
	}
	return t.balanceOf(account).Clone(), nil
}

// TotalSupplyAt returns the total supply at snapshot id.
func (t *Token) TotalSupplyAt(id uint64) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 || id > t.snapshots.current {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	if value, ok := t.snapshots.lookup(t.snapshots.supply, id); ok {
		return value.Clone(), nil
	}
	return t.totalSupply.Clone(), nil
}
