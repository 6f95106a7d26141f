package indicator

import (
	"math"

	"marketcontext/internal/model"
)

// ATR calculates Average True Range with Wilder's smoothing.
// TR = max(high-low, |high-prevClose|, |low-prevClose|). The first candle
// has no previous close and only primes prevClose, so the first value
// needs period+1 candles.
type ATR struct {
	period    int
	count     int
	prevClose float64
	avg       *Wilder
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, avg: NewWilder(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

// UpdateCandle feeds the next candle.
func (a *ATR) UpdateCandle(high, low, close float64) {
	a.count++
	if a.count > 1 {
		a.avg.Update(TrueRange(high, low, a.prevClose))
	}
	a.prevClose = close
}

// Update treats price as a flat candle (high = low = close).
func (a *ATR) Update(price float64) { a.UpdateCandle(price, price, price) }

func (a *ATR) Value() float64 { return a.avg.Value() }
func (a *ATR) Ready() bool    { return a.avg.Ready() }

// TrueRange returns the true range of a candle given the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATRSeries returns ATR at every index of the candle columns.
// The three slices must have equal length.
func ATRSeries(highs, lows, closes []float64, period int) []model.NullFloat {
	atr := NewATR(period)
	out := make([]model.NullFloat, len(closes))
	for i := range closes {
		atr.UpdateCandle(highs[i], lows[i], closes[i])
		if atr.Ready() {
			out[i] = model.Float(atr.Value())
		}
	}
	return out
}
