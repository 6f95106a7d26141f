// Package levels derives price-context levels from raw daily candles:
// trailing extremes, percentage-confirmed swing points, and psychological
// round numbers. Nothing here depends on indicator output.
package levels

import "marketcontext/internal/model"

const (
	// TradingDays52W is the trailing window used for 52-week extremes.
	TradingDays52W = 252

	// TradingDays20D is the short-term extremes window.
	TradingDays20D = 20

	// DefaultSwingThreshold is the minimum reversal (fraction) confirming a swing.
	DefaultSwingThreshold = 0.03
)

// Extremes returns the highest high and lowest low of the trailing window
// candles. ok is false when fewer than window candles are available.
func Extremes(candles []model.Candle, window int) (high, low float64, ok bool) {
	if window <= 0 || len(candles) < window {
		return 0, 0, false
	}
	tail := candles[len(candles)-window:]
	high, low = tail[0].High, tail[0].Low
	for _, c := range tail[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low, true
}

// TrailingExtremes is Extremes over at most window candles: a shorter
// history uses every candle available. n is the number of candles used
// (0 for an empty input).
func TrailingExtremes(candles []model.Candle, window int) (high, low float64, n int) {
	n = min(window, len(candles))
	if n <= 0 {
		return 0, 0, 0
	}
	high, low, _ = Extremes(candles, n)
	return high, low, n
}

// PctFrom returns (price − ref) / ref × 100.
func PctFrom(price, ref float64) float64 {
	return (price - ref) / ref * 100
}
