package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

func computeFeeRates(fee0 *big.Int, fee1 *big.Int, reserve0 *big.Int, reserve1 *big.Int) (*string, *string) {
	var feeRate0 *string
	var feeRate1 *string

	if rate := computeRateFromInt(fee0, reserve0); rate != "" {
		feeRate0 = &rate
	}
	if rate := computeRateFromInt(fee1, reserve1); rate != "" {
		feeRate1 = &rate
	}
	return feeRate0, feeRate1
}

func computeRateFromInt(fee *big.Int, reserve *big.Int) string {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(fee, reserve)
	return rat.FloatString(ratioScale)
}

// computeAPR annualizes a fee rate when exactly one side collected fees.
func computeAPR(feeRate0 *string, feeRate1 *string, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	var selected string
	if feeRate0 != nil && feeRate1 == nil {
		selected = *feeRate0
	} else if feeRate1 != nil && feeRate0 == nil {
		selected = *feeRate1
	} else {
		return nil
	}

	rat, ok := new(big.Rat).SetString(selected)
	if !ok {
		return nil
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(rat, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}
