package sim

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"dexFund/internal/access"
	"dexFund/internal/amm"
	"dexFund/internal/chain"
	"dexFund/internal/cheque"
	"dexFund/internal/events"
	"dexFund/internal/fund"
	"dexFund/internal/ledger"
	"dexFund/internal/metrics"
	"dexFund/internal/model"
)

// WorldConfig describes the wired engines of a scenario.
type WorldConfig struct {
	ChainID              uint64
	StartTime            uint64
	Governance           string
	BaseSymbol           string
	QuoteSymbol          string
	FeeMultiplier        uint64
	MinimumLiquidity     *uint256.Int
	MaximumLiquidity     *uint256.Int
	ChequeFeePerThousand uint64
	DeadlineWindow       uint64
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		ChainID:              56,
		StartTime:            1_700_000_000,
		Governance:           "gov",
		BaseSymbol:           "WBNB",
		QuoteSymbol:          "ADNS",
		FeeMultiplier:        amm.DefaultFeeMultiplier,
		ChequeFeePerThousand: 10,
		DeadlineWindow:       300,
	}
}

// World is a pool, a fund and a cheque desk over two tokens, driven by a
// manual clock. The fund stakes the quote token and collects the base token.
type World struct {
	cfg WorldConfig

	Clock   *chain.ManualClock
	Roles   *access.Roles
	Base    *ledger.Token
	Quote   *ledger.Token
	Pool    *amm.Pool
	Fund    *fund.Fund
	Desk    *cheque.Desk
	Journal *events.Journal
	Meta    *events.MetaCache

	logger *zap.Logger

	mu     sync.Mutex
	actors map[string]*ecdsa.PrivateKey
}

func NewWorld(cfg WorldConfig, m *metrics.Metrics, logger *zap.Logger) (*World, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Governance == "" {
		cfg.Governance = "gov"
	}
	if cfg.DeadlineWindow == 0 {
		cfg.DeadlineWindow = 300
	}
	w := &World{
		cfg:    cfg,
		Clock:  chain.NewManualClock(cfg.StartTime),
		Meta:   events.NewMetaCache(),
		logger: logger,
		actors: make(map[string]*ecdsa.PrivateKey),
	}
	gov, _, err := w.Actor(cfg.Governance)
	if err != nil {
		return nil, err
	}
	w.Roles = access.NewRoles(gov)
	w.Journal = events.NewJournal(cfg.ChainID, w.Clock, logger)
	w.Base = w.newToken(cfg.BaseSymbol)
	w.Quote = w.newToken(cfg.QuoteSymbol)

	poolCfg := amm.DefaultConfig(cfg.BaseSymbol + "-" + cfg.QuoteSymbol)
	poolCfg.ChainID = cfg.ChainID
	if cfg.FeeMultiplier != 0 {
		poolCfg.FeeMultiplier = cfg.FeeMultiplier
	}
	if cfg.MinimumLiquidity != nil {
		poolCfg.MinimumLiquidity = cfg.MinimumLiquidity
	}
	if cfg.MaximumLiquidity != nil {
		poolCfg.MaximumLiquidity = cfg.MaximumLiquidity
	}
	w.Pool, err = amm.NewPool(poolCfg, amm.Deps{
		Base:     w.Base,
		Quote:    w.Quote,
		Roles:    w.Roles,
		Clock:    w.Clock,
		Recorder: w.Journal,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	w.Fund, err = fund.NewFund(fund.Config{Name: cfg.QuoteSymbol + "-FUND", ChainID: cfg.ChainID}, fund.Deps{
		Base:     w.Quote,
		Proceeds: w.Base,
		Roles:    w.Roles,
		Clock:    w.Clock,
		Recorder: w.Journal,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new fund: %w", err)
	}

	w.Desk, err = cheque.NewDesk(cfg.ChequeFeePerThousand, cheque.Deps{
		Token:    w.Quote,
		Roles:    w.Roles,
		Recorder: w.Journal,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new cheque desk: %w", err)
	}

	w.Meta.Set(w.Pool.Address(), model.EngineMeta{Kind: "pool", BaseAsset: w.Base.Address().Hex(), QuoteAsset: w.Quote.Address().Hex()})
	w.Meta.Set(w.Fund.Address(), model.EngineMeta{Kind: "fund", BaseAsset: w.Quote.Address().Hex(), QuoteAsset: w.Base.Address().Hex()})
	w.Meta.Set(w.Quote.Address(), model.EngineMeta{Kind: "cheque", BaseAsset: w.Quote.Address().Hex()})
	return w, nil
}

func (w *World) newToken(symbol string) *ledger.Token {
	return ledger.NewToken(ledger.TokenConfig{
		Name:    symbol,
		Symbol:  symbol,
		Address: chain.DeriveAddress("token:" + symbol),
		ChainID: w.cfg.ChainID,
	}, w.Roles, w.Clock)
}

// Actor returns the deterministic key of a named actor.
func (w *World) Actor(name string) (common.Address, *ecdsa.PrivateKey, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return common.Address{}, nil, fmt.Errorf("actor name is empty")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if key, ok := w.actors[name]; ok {
		return crypto.PubkeyToAddress(key.PublicKey), key, nil
	}
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("dexfund-actor:" + name)))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("derive key for %s: %w", name, err)
	}
	w.actors[name] = key
	return crypto.PubkeyToAddress(key.PublicKey), key, nil
}

// Resolve maps a target to an address: engine names, hex addresses or actors.
func (w *World) Resolve(target string) (common.Address, error) {
	target = strings.TrimSpace(target)
	switch strings.ToLower(target) {
	case "":
		return common.Address{}, fmt.Errorf("target is empty")
	case "pool":
		return w.Pool.Address(), nil
	case "fund":
		return w.Fund.Address(), nil
	}
	if strings.HasPrefix(target, "0x") {
		if !common.IsHexAddress(target) {
			return common.Address{}, fmt.Errorf("invalid address: %s", target)
		}
		return common.HexToAddress(target), nil
	}
	addr, _, err := w.Actor(target)
	return addr, err
}

func (w *World) asset(name string) (*ledger.Token, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "base", strings.ToLower(w.Base.Symbol()):
		return w.Base, nil
	case "quote", strings.ToLower(w.Quote.Symbol()):
		return w.Quote, nil
	case "pool-shares", "lp":
		return w.Pool.ShareToken(), nil
	case "fund-shares", "stake":
		return w.Fund.ShareToken(), nil
	default:
		return nil, fmt.Errorf("unknown asset: %q", name)
	}
}

func (w *World) deadline(op Op) uint64 {
	if op.Deadline != 0 {
		return op.Deadline
	}
	return w.Clock.Now() + w.cfg.DeadlineWindow
}

// ReserveSnapshots reports both engines' reserves at the journal's block.
func (w *World) ReserveSnapshots() []model.ReserveSnapshot {
	block, now := w.Journal.Block(), w.Clock.Now()
	pool := w.Pool.Reserves()
	stake, proceeds := w.Fund.Reserves()
	return []model.ReserveSnapshot{
		{
			ChainID:      w.cfg.ChainID,
			Engine:       w.Pool.Address().Hex(),
			Kind:         "pool",
			BlockNumber:  block,
			ReserveBase:  pool.Base.Dec(),
			ReserveQuote: pool.Quote.Dec(),
			Timestamp:    now,
		},
		{
			ChainID:      w.cfg.ChainID,
			Engine:       w.Fund.Address().Hex(),
			Kind:         "fund",
			BlockNumber:  block,
			ReserveBase:  stake.Dec(),
			ReserveQuote: proceeds.Dec(),
			Timestamp:    now,
		},
	}
}
