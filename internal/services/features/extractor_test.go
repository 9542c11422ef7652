package features

import (
	"math"
	"testing"
	"time"

	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes(cs ...float64) []models.Bar {
	out := make([]models.Bar, len(cs))
	for i, c := range cs {
		out[i] = models.Bar{Close: c, Volume: float64(100 * (i + 1))}
	}
	return out
}

func TestComputeLogReturns(t *testing.T) {
	assert.Nil(t, ComputeLogReturns(closes(100)))

	r := ComputeLogReturns(closes(100, 110, 0, 99))
	require.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.01}, 2, 252))
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.01, 0.01, 0.01}, 3, 252))

	// sample stdev of {0.01, -0.01} is sqrt(0.0002)
	got := RealizedVolatility([]float64{0.5, 0.01, -0.01}, 2, 252)
	assert.InDelta(t, math.Sqrt(0.0002*252), got, 1e-12)
}

func TestAverageVolume(t *testing.T) {
	assert.Equal(t, 0.0, AverageVolume(nil))
	assert.InDelta(t, 200.0, AverageVolume(closes(1, 2, 3)), 1e-12)
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	to := time.Date(2024, 1, 5, 1, 0, 0, 0, time.UTC)
	f, e := AlignFromTo(from, to)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f)
	assert.Equal(t, 5, e.Day())
	assert.Equal(t, 23, e.Hour())
}
