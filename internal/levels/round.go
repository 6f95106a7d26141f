package levels

import "github.com/shopspring/decimal"

// RoundGranularity returns the psychological-level step for a price tier:
// <100 → 10, [100,1000) → 50, [1000,10000) → 100, ≥10000 → 500.
func RoundGranularity(price float64) int64 {
	switch {
	case price < 100:
		return 10
	case price < 1000:
		return 50
	case price < 10000:
		return 100
	default:
		return 500
	}
}

// RoundLevels returns the nearest round numbers around price.
// below = floor(price/step)·step and above = below + step, so a price
// sitting exactly on a multiple is its own below level. ok is false for
// non-positive prices.
func RoundLevels(price float64) (below, above float64, ok bool) {
	if price <= 0 {
		return 0, 0, false
	}
	step := decimal.NewFromInt(RoundGranularity(price))
	b := decimal.NewFromFloat(price).Div(step).Floor().Mul(step)

	below, _ = b.Float64()
	above, _ = b.Add(step).Float64()
	return below, above, true
}
