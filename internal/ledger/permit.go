package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"dexFund/internal/guard"
)

var (
	// ErrExpired is the engines' deadline error, so one errors.Is covers
	// expired calls and expired permits.
	ErrExpired          = guard.ErrExpired
	ErrInvalidSignature = errors.New("invalid signature")
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	versionHash    = crypto.Keccak256Hash([]byte("1"))
)

var (
	domainArgs abi.Arguments
	permitArgs abi.Arguments
	argsOnce   sync.Once
	argsErr    error
)

func typedArgs() (abi.Arguments, abi.Arguments, error) {
	argsOnce.Do(func() {
		bytes32T, err := abi.NewType("bytes32", "", nil)
		if err != nil {
			argsErr = err
			return
		}
		addressT, err := abi.NewType("address", "", nil)
		if err != nil {
			argsErr = err
			return
		}
		uint256T, err := abi.NewType("uint256", "", nil)
		if err != nil {
			argsErr = err
			return
		}
		domainArgs = abi.Arguments{{Type: bytes32T}, {Type: bytes32T}, {Type: bytes32T}, {Type: uint256T}, {Type: addressT}}
		permitArgs = abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: addressT}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T}}
	})
	return domainArgs, permitArgs, argsErr
}

// Recoverer resolves the signer of a 32-byte digest.
type Recoverer func(digest []byte, sig []byte) (common.Address, error)

// RecoverSigner recovers a secp256k1 signer. v may be 0/1 or 27/28.
func RecoverSigner(digest []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Permit is the signed allowance message.
type Permit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *uint256.Int
	Nonce    uint64
	Deadline uint64
}

type permitVerifier struct {
	domain  common.Hash
	recover Recoverer
	nonces  map[common.Address]uint64
}

func newPermitVerifier(cfg TokenConfig, recover Recoverer) permitVerifier {
	return permitVerifier{
		domain:  domainSeparator(cfg),
		recover: recover,
		nonces:  make(map[common.Address]uint64),
	}
}

func domainSeparator(cfg TokenConfig) common.Hash {
	args, _, err := typedArgs()
	if err != nil {
		return common.Hash{}
	}
	packed, err := args.Pack(
		[32]byte(domainTypeHash),
		[32]byte(crypto.Keccak256Hash([]byte(cfg.Name))),
		[32]byte(versionHash),
		new(big.Int).SetUint64(cfg.ChainID),
		cfg.Address,
	)
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(packed)
}

// PermitDigest returns the EIP-712 digest a holder signs for p.
func PermitDigest(domain common.Hash, p Permit) (common.Hash, error) {
	_, args, err := typedArgs()
	if err != nil {
		return common.Hash{}, err
	}
	value := new(big.Int)
	if p.Value != nil {
		value = p.Value.ToBig()
	}
	packed, err := args.Pack(
		[32]byte(permitTypeHash),
		p.Owner,
		p.Spender,
		value,
		new(big.Int).SetUint64(p.Nonce),
		new(big.Int).SetUint64(p.Deadline),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack permit: %w", err)
	}
	structHash := crypto.Keccak256(packed)
	return crypto.Keccak256Hash([]byte("\x19\x01"), domain.Bytes(), structHash), nil
}

// DomainSeparator returns the token's EIP-712 domain hash.
func (t *Token) DomainSeparator() common.Hash {
	return t.permits.domain
}

// Nonces returns the next permit nonce for owner.
func (t *Token) Nonces(owner common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permits.nonces[owner]
}

// Permit verifies a signed allowance, consumes the owner's nonce and sets
// the allowance to value.
func (t *Token) Permit(owner, spender common.Address, value *uint256.Int, deadline uint64, sig []byte) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("permit: %w", ErrZeroAddress)
	}
	if now := t.clock.Now(); now > deadline {
		return fmt.Errorf("permit %w: deadline %d, now %d", ErrExpired, deadline, now)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	nonce := t.permits.nonces[owner]
	digest, err := PermitDigest(t.permits.domain, Permit{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    nonce,
		Deadline: deadline,
	})
	if err != nil {
		return err
	}
	signer, err := t.permits.recover(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("permit: %w", err)
	}
	if signer != owner {
		return fmt.Errorf("%w: signer %s, owner %s", ErrInvalidSignature, signer.Hex(), owner.Hex())
	}

	t.permits.nonces[owner] = nonce + 1
	t.journal.append(func() { t.permits.nonces[owner] = nonce })
	t.setAllowance(owner, spender, value.Clone())
	return nil
}

// SignPermit signs p for the token's domain. Wallet-style v (27/28) is returned.
func (t *Token) SignPermit(key *ecdsa.PrivateKey, p Permit) ([]byte, error) {
	digest, err := PermitDigest(t.permits.domain, p)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign permit: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
