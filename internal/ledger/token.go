package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"dexFund/internal/access"
	"dexFund/internal/chain"
	"dexFund/internal/guard"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
	ErrPaused                = errors.New("token paused")
	ErrSupplyOverflow        = errors.New("total supply overflow")
	ErrHookRejected          = errors.New("transfer hook rejected")
)

// Ledger is the asset surface the engines consume.
type Ledger interface {
	Journaled
	Address() common.Address
	Symbol() string
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// TransferHook runs after a balance move, outside the token lock. A non-nil
// error undoes the move. Hooks model assets with callback semantics.
type TransferHook func(from, to common.Address, amount *uint256.Int) error

// TokenConfig describes a token instance.
type TokenConfig struct {
	Name    string
	Symbol  string
	Address common.Address
	ChainID uint64
}

// Token is an in-memory fungible ledger with pause, snapshot and permit
// modules composed onto the transfer path.
type Token struct {
	cfg   TokenConfig
	roles access.Checker
	clock chain.Clock

	mu          sync.Mutex
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	totalSupply *uint256.Int
	paused      bool
	journal     journal
	snapshots   snapshotLog
	permits     permitVerifier
	hooks       []TransferHook
	claimant    common.Address
	claims      int
}

// NewToken builds a token. When cfg.Address is zero it is derived from the symbol.
func NewToken(cfg TokenConfig, roles access.Checker, clock chain.Clock) *Token {
	if cfg.Address == (common.Address{}) {
		cfg.Address = chain.DeriveAddress("token:" + cfg.Symbol)
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	t := &Token{
		cfg:         cfg,
		roles:       roles,
		clock:       clock,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
		snapshots:   newSnapshotLog(),
	}
	t.permits = newPermitVerifier(cfg, RecoverSigner)
	return t
}

func (t *Token) Address() common.Address { return t.cfg.Address }
func (t *Token) Name() string            { return t.cfg.Name }
func (t *Token) Symbol() string          { return t.cfg.Symbol }

// OnTransfer registers a hook run after every transfer, mint and burn.
func (t *Token) OnTransfer(hook TransferHook) {
	t.mu.Lock()
	t.hooks = append(t.hooks, hook)
	t.mu.Unlock()
}

// SetRecoverer swaps the signature recovery primitive used by Permit.
func (t *Token) SetRecoverer(r Recoverer) {
	t.mu.Lock()
	t.permits.recover = r
	t.mu.Unlock()
}

func (t *Token) Mark() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.journal.mark()
}

func (t *Token) Rollback(mark int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.journal.rollback(mark)
}

func (t *Token) Release(mark int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.journal.release()
}

func (t *Token) Claim(owner common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claims > 0 && t.claimant != owner {
		return fmt.Errorf("%w: %s is held by a call of %s", guard.ErrLocked, t.cfg.Symbol, t.claimant.Hex())
	}
	t.claimant = owner
	t.claims++
	return nil
}

func (t *Token) Unclaim() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claims > 0 {
		t.claims--
	}
	if t.claims == 0 {
		t.claimant = common.Address{}
	}
}

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(account).Clone()
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSupply.Clone()
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowance(owner, spender).Clone()
}

func (t *Token) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Transfer moves amount from the authorizing sender to to.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.withHooks(from, to, amount, func() error {
		return t.move(from, to, amount)
	})
}

// TransferFrom moves amount from from to to against spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return t.withHooks(from, to, amount, func() error {
		if err := t.spendAllowance(from, spender, amount); err != nil {
			return err
		}
		return t.move(from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("approve: %w", ErrZeroAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(owner, spender, amount.Clone())
	return nil
}

// Mint creates amount for to. Caller needs the minter capability.
func (t *Token) Mint(caller, to common.Address, amount *uint256.Int) error {
	if err := access.Require(t.roles, caller, access.CapMinter); err != nil {
		return fmt.Errorf("mint %s: %w", t.cfg.Symbol, err)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	return t.withHooks(common.Address{}, to, amount, func() error {
		if t.paused {
			return ErrPaused
		}
		supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
		if overflow {
			return ErrSupplyOverflow
		}
		t.setSupply(supply)
		t.setBalance(to, new(uint256.Int).Add(t.balanceOf(to), amount))
		return nil
	})
}

// Burn destroys amount of from's own balance.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	return t.withHooks(from, common.Address{}, amount, func() error {
		return t.burn(from, amount)
	})
}

// BurnFrom destroys amount of from's balance against spender's allowance.
func (t *Token) BurnFrom(spender, from common.Address, amount *uint256.Int) error {
	return t.withHooks(from, common.Address{}, amount, func() error {
		if err := t.spendAllowance(from, spender, amount); err != nil {
			return err
		}
		return t.burn(from, amount)
	})
}

// Pause halts transfers, mints and burns.
func (t *Token) Pause(caller common.Address) error {
	return t.setPaused(caller, true)
}

func (t *Token) Unpause(caller common.Address) error {
	return t.setPaused(caller, false)
}

func (t *Token) setPaused(caller common.Address, paused bool) error {
	if err := access.Require(t.roles, caller, access.CapPauser); err != nil {
		return fmt.Errorf("pause %s: %w", t.cfg.Symbol, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.paused
	t.journal.append(func() { t.paused = prev })
	t.paused = paused
	return nil
}

// withHooks runs op under the token lock, then the transfer hooks without
// it; a failing hook rolls the op back.
func (t *Token) withHooks(from, to common.Address, amount *uint256.Int, op func() error) error {
	t.mu.Lock()
	mark := t.journal.mark()
	if err := op(); err != nil {
		t.journal.rollback(mark)
		t.journal.release()
		t.mu.Unlock()
		return fmt.Errorf("%s: %w", t.cfg.Symbol, err)
	}
	hooks := append([]TransferHook(nil), t.hooks...)
	t.mu.Unlock()

	var hookErr error
	for _, hook := range hooks {
		if err := hook(from, to, amount.Clone()); err != nil {
			hookErr = err
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if hookErr != nil {
		t.journal.rollback(mark)
	}
	t.journal.release()
	if hookErr != nil {
		return fmt.Errorf("%s: %w: %w", t.cfg.Symbol, ErrHookRejected, hookErr)
	}
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	if t.paused {
		return ErrPaused
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}
	t.setBalance(from, new(uint256.Int).Sub(bal, amount))
	t.setBalance(to, new(uint256.Int).Add(t.balanceOf(to), amount))
	return nil
}

func (t *Token) burn(from common.Address, amount *uint256.Int) error {
	if t.paused {
		return ErrPaused
	}
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}
	t.setBalance(from, new(uint256.Int).Sub(bal, amount))
	t.setSupply(new(uint256.Int).Sub(t.totalSupply, amount))
	return nil
}

func (t *Token) spendAllowance(owner, spender common.Address, amount *uint256.Int) error {
	current := t.allowance(owner, spender)
	if current.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, current.Dec(), amount.Dec())
	}
	// max allowance is treated as infinite
	if current.Eq(maxUint256) {
		return nil
	}
	t.setAllowance(owner, spender, new(uint256.Int).Sub(current, amount))
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

func (t *Token) balanceOf(account common.Address) *uint256.Int {
	if bal, ok := t.balances[account]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	if v, ok := t.allowances[owner][spender]; ok {
		return v
	}
	return new(uint256.Int)
}

func (t *Token) setBalance(account common.Address, value *uint256.Int) {
	prev, had := t.balances[account]
	t.journal.append(func() {
		if had {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
	t.snapshots.recordBalance(&t.journal, account, t.balanceOf(account))
	t.balances[account] = value
}

func (t *Token) setSupply(value *uint256.Int) {
	prev := t.totalSupply
	t.journal.append(func() { t.totalSupply = prev })
	t.snapshots.recordSupply(&t.journal, prev)
	t.totalSupply = value
}

func (t *Token) setAllowance(owner, spender common.Address, value *uint256.Int) {
	inner, ok := t.allowances[owner]
	if !ok {
		inner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = inner
	}
	prev, had := inner[spender]
	t.journal.append(func() {
		if had {
			inner[spender] = prev
		} else {
			delete(inner, spender)
		}
	})
	inner[spender] = value
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	amount, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("amount overflows 256 bits: %s", value)
	}
	return amount, nil
}
