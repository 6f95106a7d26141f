package indicator

import "marketcontext/internal/model"

// MACDResult holds the three MACD series aligned with the input closes.
type MACDResult struct {
	Line      []model.NullFloat
	Signal    []model.NullFloat
	Histogram []model.NullFloat
}

// MACDSeries computes MACD = EMA(fast) − EMA(slow), its signal line
// EMA(signal) over the defined MACD values, and the histogram.
// The line needs slow closes; the signal needs slow+signal-1.
func MACDSeries(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{
		Line:      make([]model.NullFloat, n),
		Signal:    make([]model.NullFloat, n),
		Histogram: make([]model.NullFloat, n),
	}
	if fast >= slow {
		return res
	}

	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)

	sig := NewEMA(signal)
	for i := 0; i < n; i++ {
		if !emaFast[i].Valid || !emaSlow[i].Valid {
			continue
		}
		line := emaFast[i].Float64 - emaSlow[i].Float64
		res.Line[i] = model.Float(line)

		sig.Update(line)
		if sig.Ready() {
			res.Signal[i] = model.Float(sig.Value())
			res.Histogram[i] = model.Float(line - sig.Value())
		}
	}
	return res
}
