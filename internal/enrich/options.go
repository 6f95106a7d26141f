// Package enrich turns a validated daily Series into an EnrichedMarketData
// snapshot. Four independent engines (trend, oscillator, volatility,
// levels) read the same immutable Series concurrently; the assembler joins
// their bundles into one record.
package enrich

import (
	"errors"
	"fmt"

	"marketcontext/internal/levels"
)

// Fixed indicator parameters.
const (
	RSIPeriod  = 14
	ATRPeriod  = 14
	BBPeriod   = 20
	BBStdDev   = 2.0
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// ErrInvalidOptions wraps every Options.Validate failure.
var ErrInvalidOptions = errors.New("invalid options")

// EMAPeriods are the trend EMAs reported in every snapshot.
var EMAPeriods = [...]int{9, 20, 50, 200}

// Options tunes a computation.
type Options struct {
	// SwingThreshold is the reversal fraction confirming a swing point.
	// Zero means levels.DefaultSwingThreshold.
	SwingThreshold float64

	// IncludeSeries attaches the full per-candle indicator history.
	IncludeSeries bool
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{SwingThreshold: levels.DefaultSwingThreshold}
}

func (o Options) withDefaults() Options {
	if o.SwingThreshold == 0 {
		o.SwingThreshold = levels.DefaultSwingThreshold
	}
	return o
}

// Validate rejects options no computation can honour.
func (o Options) Validate() error {
	if o.SwingThreshold < 0 || o.SwingThreshold >= 1 {
		return fmt.Errorf("swing threshold %.4f outside [0, 1): %w", o.SwingThreshold, ErrInvalidOptions)
	}
	return nil
}
