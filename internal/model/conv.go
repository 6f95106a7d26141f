package model

import "math"

// ToPaise converts a rupee price to integer paise, rounding half away from zero.
func ToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// FromPaise converts integer paise back to rupees.
func FromPaise(paise int64) float64 {
	return float64(paise) / 100.0
}
