package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/repository"
	"QuantLens/internal/services/pinning"
	"QuantLens/internal/services/surface"
	"QuantLens/internal/usecase"
)

func optionsUseCase(e *env, store *repository.SnapshotStore) *usecase.OptionsUseCase {
	return usecase.NewOptionsUseCase(
		surface.NewAnalyzer(e.cfg.Surface, e.l),
		pinning.NewPredictor(e.cfg.Pinning),
		store, nil, nil, e.cfg.Options.Workers, e.l,
	)
}

// readChains accepts one snapshot or an array of them.
func readChains(path string) ([]models.ChainSnapshot, error) {
	var raw json.RawMessage
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var snaps []models.ChainSnapshot
		if err := json.Unmarshal(trimmed, &snaps); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return snaps, nil
	}
	var snap models.ChainSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return []models.ChainSnapshot{snap}, nil
}

type surfaceOutput struct {
	Analyses []models.SurfaceAnalysis `json:"analyses"`
	Failures []errs.SymbolFailure     `json:"failures,omitempty"`
}

func surfaceCmd(e *env) *cobra.Command {
	var chainPath string
	cmd := &cobra.Command{
		Use:   "surface",
		Short: "Analyze the implied volatility surface of option chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			snaps, err := readChains(chainPath)
			if err != nil {
				return err
			}
			uc := optionsUseCase(e, repository.NewSnapshotStore())
			analyses, failures := uc.AnalyzeBatch(cmd.Context(), snaps)
			out := surfaceOutput{Analyses: analyses, Failures: failures}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if len(analyses) == 0 && len(failures) > 0 {
				return fmt.Errorf("no chain could be analyzed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chainPath, "chain", "-", "chain snapshot JSON file, - for stdin")
	return cmd
}

func pinCmd(e *env) *cobra.Command {
	var (
		chainPath string
		oiPath    string
		p         usecase.PinningParams
	)
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Predict expiry pinning from open interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := repository.NewSnapshotStore()
			if chainPath != "" {
				snaps, err := readChains(chainPath)
				if err != nil {
					return err
				}
				for _, s := range snaps {
					store.Save(s)
				}
			}
			if oiPath != "" {
				if err := readJSON(oiPath, &p.OpenInterest); err != nil {
					return err
				}
			}
			pred, err := optionsUseCase(e, store).PredictPinning(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pred)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Symbol, "symbol", "", "underlying symbol")
	f.StringVar(&chainPath, "chain", "", "chain snapshot JSON to derive open interest from")
	f.StringVar(&oiPath, "oi", "", "open interest JSON array of {strike, callOI, putOI}")
	f.Float64Var(&p.CurrentPrice, "price", 0, "current price")
	f.Float64Var(&p.DaysToExpiry, "dte", 0, "days to expiry")
	f.Float64Var(&p.IV, "iv", 0, "implied volatility")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
