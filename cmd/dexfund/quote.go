package main

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dexFund/internal/amm"
	"dexFund/internal/config"
	"dexFund/internal/ledger"
)

type quoteResult struct {
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	AmountInUnits  string `json:"amount_in_units"`
	AmountOutUnits string `json:"amount_out_units"`
	SpotPrice      string `json:"spot_price"`
	ExecutionPrice string `json:"execution_price"`
	PriceImpactPct string `json:"price_impact_pct"`
	FeeMultiplier  uint64 `json:"fee_multiplier"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	reserveIn, err := requiredAmount("reserve-in", cfg.ReserveIn)
	if err != nil {
		return err
	}
	reserveOut, err := requiredAmount("reserve-out", cfg.ReserveOut)
	if err != nil {
		return err
	}
	amount, err := requiredAmount("amount", cfg.Amount)
	if err != nil {
		return err
	}

	amountIn, amountOut := amount, amount
	if cfg.ExactOut {
		amountIn, err = amm.GetAmountIn(amount, reserveIn, reserveOut, cfg.FeeMultiplier)
	} else {
		amountOut, err = amm.GetAmountOut(amount, reserveIn, reserveOut, cfg.FeeMultiplier)
	}
	if err != nil {
		return err
	}

	result := buildQuote(reserveIn, reserveOut, amountIn, amountOut, cfg.Decimals)
	result.FeeMultiplier = cfg.FeeMultiplier

	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(line))
	return err
}

func buildQuote(reserveIn, reserveOut, amountIn, amountOut *uint256.Int, decimals int32) quoteResult {
	in := decimal.NewFromBigInt(amountIn.ToBig(), 0)
	out := decimal.NewFromBigInt(amountOut.ToBig(), 0)
	spot := decimal.NewFromBigInt(reserveOut.ToBig(), 0).Div(decimal.NewFromBigInt(reserveIn.ToBig(), 0))
	execution := decimal.Zero
	if !in.IsZero() {
		execution = out.Div(in)
	}
	impact := decimal.Zero
	if !spot.IsZero() {
		impact = decimal.NewFromInt(1).Sub(execution.Div(spot)).Mul(decimal.NewFromInt(100))
	}
	return quoteResult{
		AmountIn:       amountIn.Dec(),
		AmountOut:      amountOut.Dec(),
		AmountInUnits:  units(amountIn, decimals),
		AmountOutUnits: units(amountOut, decimals),
		SpotPrice:      spot.StringFixed(8),
		ExecutionPrice: execution.StringFixed(8),
		PriceImpactPct: impact.StringFixed(4),
	}
}

// units renders a raw amount with the asset's decimals.
func units(v *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

func requiredAmount(name, value string) (*uint256.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, err := ledger.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
