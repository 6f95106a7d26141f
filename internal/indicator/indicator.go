// Package indicator provides technical indicator calculations over daily
// price series.
//
// Every indicator is an O(1)-per-update state machine fed one value at a
// time (Update), exposing the latest result through Value and Ready. The
// *Series helpers replay a whole column through a fresh instance and
// return one model.NullFloat per input, undefined during warm-up.
package indicator

import (
	"strconv"

	"marketcontext/internal/model"
)

// Indicator is the interface for single-input technical indicators.
type Indicator interface {
	// Name returns the indicator name with its period (e.g. "EMA_9").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Run feeds values through ind and records its output after every step.
func Run(ind Indicator, values []float64) []model.NullFloat {
	out := make([]model.NullFloat, len(values))
	for i, v := range values {
		ind.Update(v)
		if ind.Ready() {
			out[i] = model.Float(ind.Value())
		}
	}
	return out
}

// Last returns the final element of a series, or an undefined value.
func Last(series []model.NullFloat) model.NullFloat {
	if len(series) == 0 {
		return model.NullFloat{}
	}
	return series[len(series)-1]
}

// Valid extracts the defined values of a series, preserving order.
func Valid(series []model.NullFloat) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if v.Valid {
			out = append(out, v.Float64)
		}
	}
	return out
}

func name(kind string, period int) string {
	return kind + "_" + strconv.Itoa(period)
}
