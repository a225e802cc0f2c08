package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgeWatch/internal/domain"
)

func TestEMA_Calculate(t *testing.T) {
	series := []float64{100.0, 102.0, 101.0, 103.0, 104.0}

	tests := []struct {
		name          string
		period        int
		series        []float64
		expectedValue float64
		expectError   bool
	}{
		{
			name:   "period 3 seeded with first price",
			period: 3,
			series: series,
			// alpha=0.5: 100 -> 101 -> 101 -> 102 -> 103
			expectedValue: 103.0,
		},
		{
			name:          "period 1 tracks last price",
			period:        1,
			series:        series,
			expectedValue: 104.0,
		},
		{
			name:          "constant series",
			period:        4,
			series:        []float64{50, 50, 50, 50, 50, 50},
			expectedValue: 50.0,
		},
		{
			name:        "insufficient data",
			period:      6,
			series:      series,
			expectError: true,
		},
		{
			name:        "invalid period",
			period:      0,
			series:      series,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := NewEMA(tt.period).Calculate(tt.series)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedValue, value, 0.0001)
		})
	}
}

func TestEMA_Name(t *testing.T) {
	assert.Equal(t, "EMA15", NewEMA(15).Name())
	assert.Equal(t, 45, NewEMA(45).RequiredDataPoints())
}

func TestTrendStack_RequiresLargestPeriod(t *testing.T) {
	stack := DefaultTrendStack()
	assert.Equal(t, 60, stack.RequiredDataPoints())

	series := make([]float64, 0, 60)
	for i := 0; i < 59; i++ {
		series = append(series, float64(100+i))
	}
	_, ok := stack.Compute(series)
	assert.False(t, ok, "59 points must not produce any EMA")

	series = append(series, 159)
	values, ok := stack.Compute(series)
	require.True(t, ok)
	assert.True(t, values.Complete())
	for _, p := range domain.EMAPeriods {
		assert.False(t, math.IsNaN(values[p]))
	}
}

func TestTrendStack_RisingSeriesOrdersFastAboveSlow(t *testing.T) {
	series := make([]float64, 80)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	values, ok := DefaultTrendStack().Compute(series)
	require.True(t, ok)

	assert.Greater(t, values[15], values[30])
	assert.Greater(t, values[30], values[45])
	assert.Greater(t, values[45], values[60])
}
