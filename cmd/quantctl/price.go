package main

import (
	"github.com/spf13/cobra"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/usecase"
)

type priceOutput struct {
	models.PricingResult
	ImpliedVolatility *float64 `json:"impliedVolatility,omitempty"`
}

func priceCmd(e *env) *cobra.Command {
	var (
		p      models.OptionParameters
		typ    string
		market float64
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Black-Scholes price and Greeks, optionally solving IV from a market price",
		RunE: func(cmd *cobra.Command, args []string) error {
			ot, ok := models.ParseOptionType(typ)
			if !ok {
				return errs.Invalid("unknown option type %q", typ)
			}
			p.OptionType = ot
			uc := usecase.NewOptionsUseCase(nil, nil, nil, nil, nil, 0, e.l)

			res, err := uc.Price(p)
			if err != nil {
				return err
			}
			out := priceOutput{PricingResult: res}
			if market > 0 {
				iv, err := uc.ImpliedVol(p, market)
				if err != nil {
					return err
				}
				out.ImpliedVolatility = &iv
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&p.SpotPrice, "spot", 0, "spot price")
	f.Float64Var(&p.Strike, "strike", 0, "strike")
	f.Float64Var(&p.TimeToExpiry, "t", 0, "time to expiry in years")
	f.Float64Var(&p.RiskFreeRate, "rate", 0.05, "annual risk-free rate")
	f.Float64Var(&p.ImpliedVolatility, "vol", 0.2, "annual volatility")
	f.Float64Var(&p.DividendYield, "div", 0, "continuous dividend yield")
	f.StringVar(&typ, "type", "call", "call or put")
	f.Float64Var(&market, "market", 0, "market price to solve implied volatility from")
	_ = cmd.MarkFlagRequired("spot")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("t")
	return cmd
}
