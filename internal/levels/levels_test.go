package levels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcontext/internal/model"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// flat builds one candle per close with open = high = low = close.
func flat(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{TS: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func steps(from, to, step float64) []float64 {
	var out []float64
	if from <= to {
		for v := from; v <= to; v += step {
			out = append(out, v)
		}
		return out
	}
	for v := from; v >= to; v -= step {
		out = append(out, v)
	}
	return out
}

func TestExtremes(t *testing.T) {
	candles := flat(10, 14, 9, 12, 11)
	candles[1].High = 15

	high, low, ok := Extremes(candles, 5)
	require.True(t, ok)
	assert.Equal(t, 15.0, high)
	assert.Equal(t, 9.0, low)

	high, low, ok = Extremes(candles, 2)
	require.True(t, ok)
	assert.Equal(t, 12.0, high)
	assert.Equal(t, 11.0, low)
}

func TestExtremes_ShortWindowIsInsufficient(t *testing.T) {
	_, _, ok := Extremes(flat(1, 2, 3), 252)
	assert.False(t, ok)
}

func TestTrailingExtremes(t *testing.T) {
	candles := flat(10, 14, 9, 12, 11)

	high, low, n := TrailingExtremes(candles, 20)
	assert.Equal(t, 5, n, "short history uses every candle")
	assert.Equal(t, 14.0, high)
	assert.Equal(t, 9.0, low)

	high, low, n = TrailingExtremes(candles, 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, 12.0, high)
	assert.Equal(t, 9.0, low)

	_, _, n = TrailingExtremes(nil, 20)
	assert.Zero(t, n)
}

func TestPctFrom(t *testing.T) {
	assert.InDelta(t, -5.769230769, PctFrom(2450, 2600), 1e-9)
	assert.InDelta(t, 25.0, PctFrom(125, 100), 1e-12)
}

func TestSwings_PullbackConfirmsHigh(t *testing.T) {
	closes := append(steps(100, 130, 1), steps(129, 120, 1)...)
	candles := flat(closes...)

	high, low := RecentSwings(candles, DefaultSwingThreshold)
	require.NotNil(t, high)
	assert.Equal(t, 130.0, high.Price)
	assert.Equal(t, 30, high.Index)
	assert.Equal(t, candles[30].TS, high.TS)

	// The rally off 100 confirms 100 as the prior swing low.
	require.NotNil(t, low)
	assert.Equal(t, 100.0, low.Price)
}

func TestSwings_SmallPullbackDoesNotConfirm(t *testing.T) {
	// 130 → 128.7 is a 1% pullback.
	closes := append(steps(100, 130, 1), 129.5, 128.7)
	high, _ := RecentSwings(flat(closes...), DefaultSwingThreshold)
	assert.Nil(t, high)
}

func TestSwings_LatestExtremumNotConfirmed(t *testing.T) {
	// Rising into the final candle: 130 is the running high, not a swing.
	high, _ := RecentSwings(flat(steps(100, 130, 1)...), DefaultSwingThreshold)
	assert.Nil(t, high)
}

func TestSwings_Zigzag(t *testing.T) {
	// 100 → 120 → 110 → 125 → 118
	var closes []float64
	closes = append(closes, steps(100, 120, 2)...)
	closes = append(closes, steps(118, 110, 2)...)
	closes = append(closes, steps(112, 125, 1)...)
	closes = append(closes, steps(123, 118, 1)...)

	points := Swings(flat(closes...), DefaultSwingThreshold)
	require.Len(t, points, 4)

	assert.Equal(t, SwingLow, points[0].Kind)
	assert.Equal(t, 100.0, points[0].Price)
	assert.Equal(t, SwingHigh, points[1].Kind)
	assert.Equal(t, 120.0, points[1].Price)
	assert.Equal(t, SwingLow, points[2].Kind)
	assert.Equal(t, 110.0, points[2].Price)
	assert.Equal(t, SwingHigh, points[3].Kind)
	assert.Equal(t, 125.0, points[3].Price)
}

func TestSwings_DowntrendDoesNotInventHighs(t *testing.T) {
	// A steady decline after one peak has exactly one swing high.
	closes := append(steps(100, 130, 2), steps(128, 80, 2)...)
	var highs int
	for _, p := range Swings(flat(closes...), DefaultSwingThreshold) {
		if p.Kind == SwingHigh {
			highs++
			assert.Equal(t, 130.0, p.Price)
		}
	}
	assert.Equal(t, 1, highs)
}

func TestSwings_UsesIntradayRange(t *testing.T) {
	candles := flat(100, 104, 108, 110, 109)
	// Wick down to 106: (110-106)/110 = 3.6%.
	candles[4].Low = 106
	high, _ := RecentSwings(candles, DefaultSwingThreshold)
	require.NotNil(t, high)
	assert.Equal(t, 110.0, high.Price)
}

func TestSwings_Threshold(t *testing.T) {
	closes := append(steps(100, 130, 1), 127)
	high, _ := RecentSwings(flat(closes...), 0.03)
	assert.Nil(t, high, "a 2.3 percent pullback must not confirm at a 3 percent threshold")

	high, _ = RecentSwings(flat(closes...), 0.02)
	require.NotNil(t, high)
	assert.Equal(t, 130.0, high.Price)
}

func TestRoundLevels(t *testing.T) {
	cases := []struct {
		price        float64
		below, above float64
	}{
		{985, 950, 1000},
		{1000, 1000, 1100},
		{55, 50, 60},
		{9.5, 0, 10},
		{100, 100, 150},
		{2437.65, 2400, 2500},
		{9999.99, 9900, 10000},
		{10000, 10000, 10500},
		{23712.4, 23500, 24000},
	}
	for _, tc := range cases {
		below, above, ok := RoundLevels(tc.price)
		require.True(t, ok, "price %v", tc.price)
		assert.Equal(t, tc.below, below, "below for %v", tc.price)
		assert.Equal(t, tc.above, above, "above for %v", tc.price)
	}
}

func TestRoundLevels_NonPositive(t *testing.T) {
	_, _, ok := RoundLevels(0)
	assert.False(t, ok)
}
