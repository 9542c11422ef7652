package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).With("surface")

	l.Info("analyzed",
		String("symbol", "SPY"),
		Int("strikes", 42),
		Float64("atm_iv", 0.21),
		Strings("expiries", []string{"2024-06-21", "2024-07-19"}),
		Duration("elapsed", 1500*time.Microsecond),
		Error(errors.New("partial")),
	)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "surface", got["component"])
	assert.Equal(t, "SPY", got["symbol"])
	assert.EqualValues(t, 42, got["strikes"])
	assert.Equal(t, 1.5, got["elapsed"])
	assert.Equal(t, "partial", got["error"])
	assert.Len(t, got["expiries"], 2)
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(&Config{Level: "info", Output: "stderr", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
