package indicator

import "marketcontext/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The first value needs period+1 prices (period deltas).
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   *Wilder
	avgLoss   *Wilder
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		avgGain: NewWilder(period),
		avgLoss: NewWilder(period),
	}
}

func (r *RSI) Name() string { return name("RSI", r.period) }

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		// first price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)

	if r.avgGain.Ready() {
		r.current = rsiFrom(r.avgGain.Value(), r.avgLoss.Value())
	}
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.avgGain.Ready() }

// rsiFrom converts smoothed gain/loss into RSI, clamped to [0, 100].
// A zero average loss yields 100.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	v := 100.0 - (100.0 / (1.0 + rs))
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// RSISeries returns the RSI of closes at every index.
func RSISeries(closes []float64, period int) []model.NullFloat {
	return Run(NewRSI(period), closes)
}
