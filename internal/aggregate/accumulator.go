package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"dexFund/internal/model"
)

// Accumulator holds aggregate values for an engine window.
type Accumulator struct {
	ChainID      uint64
	Engine       string
	BaseAsset    string
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	VolumeBase   *big.Int
	VolumeQuote  *big.Int
	FeeBase      *big.Int
	FeeQuote     *big.Int
	ReserveBase  *big.Int
	ReserveQuote *big.Int
	FirstBlock   uint64
	LastBlock    uint64
	lastTS       uint64
}

func NewAccumulator(event *model.TypedEvent, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:      event.ChainID,
		Engine:       event.Address,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeBase:   big.NewInt(0),
		VolumeQuote:  big.NewInt(0),
		FeeBase:      big.NewInt(0),
		FeeQuote:     big.NewInt(0),
		ReserveBase:  big.NewInt(0),
		ReserveQuote: big.NewInt(0),
		FirstBlock:   event.BlockNumber,
		LastBlock:    event.BlockNumber,
		lastTS:       event.Timestamp,
	}
	if event.Engine != nil {
		acc.BaseAsset = event.Engine.BaseAsset
	}
	return acc
}

// AddEvent folds a decoded event into the window. feePerThousand is the
// share of each input taken as fee.
func (a *Accumulator) AddEvent(event *model.TypedEvent, feePerThousand uint64) error {
	if event.Timestamp >= a.lastTS {
		a.lastTS = event.Timestamp
		a.LastBlock = event.BlockNumber
	}
	if event.BlockNumber < a.FirstBlock {
		a.FirstBlock = event.BlockNumber
	}

	switch data := event.Decoded.(type) {
	case model.SwapEventData:
		return a.applySwap(data, feePerThousand)
	case model.SyncEventData:
		return a.applySync(data)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData, feePerThousand uint64) error {
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(swap.AmountOut)
	if err != nil {
		return err
	}

	fee := feeFromAmount(amountIn, feePerThousand)
	if a.BaseAsset != "" && strings.EqualFold(swap.AssetIn, a.BaseAsset) {
		a.VolumeBase.Add(a.VolumeBase, amountIn)
		a.VolumeQuote.Add(a.VolumeQuote, amountOut)
		a.FeeBase.Add(a.FeeBase, fee)
	} else {
		a.VolumeQuote.Add(a.VolumeQuote, amountIn)
		a.VolumeBase.Add(a.VolumeBase, amountOut)
		a.FeeQuote.Add(a.FeeQuote, fee)
	}
	a.SwapCount++
	return nil
}

func (a *Accumulator) applySync(sync model.SyncEventData) error {
	base, err := parseBigInt(sync.ReserveBase)
	if err != nil {
		return err
	}
	quote, err := parseBigInt(sync.ReserveQuote)
	if err != nil {
		return err
	}
	a.ReserveBase, a.ReserveQuote = base, quote
	return nil
}

// Metrics renders the window.
func (a *Accumulator) Metrics() model.WindowMetrics {
	feeRateBase, feeRateQuote := computeFeeRates(a.FeeBase, a.FeeQuote, a.ReserveBase, a.ReserveQuote)
	return model.WindowMetrics{
		ChainID:      a.ChainID,
		Engine:       a.Engine,
		WindowStart:  a.WindowStart,
		WindowEnd:    a.WindowEnd,
		SwapCount:    a.SwapCount,
		VolumeBase:   a.VolumeBase.String(),
		VolumeQuote:  a.VolumeQuote.String(),
		FeeBase:      a.FeeBase.String(),
		FeeQuote:     a.FeeQuote.String(),
		ReserveBase:  a.ReserveBase.String(),
		ReserveQuote: a.ReserveQuote.String(),
		FeeRateBase:  feeRateBase,
		FeeRateQuote: feeRateQuote,
		FeeAPR:       computeAPR(feeRateBase, feeRateQuote, a.WindowEnd-a.WindowStart),
		FirstBlock:   a.FirstBlock,
		LastBlock:    a.LastBlock,
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int, feePerThousand uint64) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, new(big.Int).SetUint64(feePerThousand))
	fee.Div(fee, big.NewInt(1000))
	return fee
}
