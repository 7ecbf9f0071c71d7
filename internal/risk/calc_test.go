package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSize(t *testing.T) {
	cases := []struct {
		name     string
		deposit  float64
		riskPct  float64
		stopPct  float64
		wantRisk string
		wantSize string
	}{
		{"spec example", 1000, 1, 2, "10", "500"},
		{"double risk double stop", 1000, 2, 4, "20", "500"},
		{"fractional", 2500, 1.5, 3, "37.5", "1250"},
		{"tiny stop", 100, 1, 0.5, "1", "200"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := PositionSize(tc.deposit, tc.riskPct, tc.stopPct)
			require.NoError(t, err)
			assert.True(t, res.RiskAmount.Equal(decimal.RequireFromString(tc.wantRisk)),
				"risk amount: got %s", res.RiskAmount)
			assert.True(t, res.PositionSize.Equal(decimal.RequireFromString(tc.wantSize)),
				"position size: got %s", res.PositionSize)
		})
	}
}

func TestPositionSizeRejectsNonPositiveInput(t *testing.T) {
	_, err := PositionSize(0, 1, 2)
	assert.ErrorIs(t, err, ErrNonPositiveDeposit)

	_, err = PositionSize(1000, -1, 2)
	assert.ErrorIs(t, err, ErrNonPositiveRisk)

	_, err = PositionSize(1000, 1, 0)
	assert.ErrorIs(t, err, ErrNonPositiveStop)
}

func TestFormatUSD(t *testing.T) {
	res, err := PositionSize(1000, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "$500.00", FormatUSD(res.PositionSize))
	assert.Equal(t, "$20.00", FormatUSD(res.RiskAmount))
}
