package pricing

import (
	"testing"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		strike float64
		tte    float64
		iv     float64
		typ    models.OptionType
	}{
		{"atm call", 100, 0.25, 0.25, models.Call},
		{"otm put", 85, 0.5, 0.45, models.Put},
		{"itm call", 80, 1, 0.15, models.Call},
		{"short dated", 102, 3.0 / 365, 0.9, models.Put},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(100, tt.strike, tt.tte, 0.04, tt.iv, tt.typ)
			priced, err := PriceAndGreeks(p)
			require.NoError(t, err)

			got, err := ImpliedVolatility(p, priced.Price)
			require.NoError(t, err)
			assert.InDelta(t, tt.iv, got, 1e-5)
		})
	}
}

func TestImpliedVolatility_RejectsOutOfBounds(t *testing.T) {
	p := params(100, 100, 0.5, 0.02, 0, models.Call)

	_, err := ImpliedVolatility(p, 150)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = ImpliedVolatility(p, -1)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	p.TimeToExpiry = 0
	_, err = ImpliedVolatility(p, 5)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
