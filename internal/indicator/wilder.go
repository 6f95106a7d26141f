package indicator

import "marketcontext/internal/model"

// Wilder calculates Wilder's smoothed moving average (SMMA / RMA).
// First value is SMA(period), then avg = (prev*(period-1) + x) / period.
// RSI and ATR both smooth through this type.
type Wilder struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewWilder creates a Wilder average with the given period.
func NewWilder(period int) *Wilder {
	return &Wilder{period: period}
}

func (w *Wilder) Name() string { return name("WILDER", w.period) }

func (w *Wilder) Update(x float64) {
	w.count++

	if w.count <= w.period {
		w.sum += x
		if w.count == w.period {
			w.current = w.sum / float64(w.period)
		}
		return
	}

	w.current = (w.current*float64(w.period-1) + x) / float64(w.period)
}

func (w *Wilder) Value() float64 { return w.current }
func (w *Wilder) Ready() bool    { return w.count >= w.period }

// WilderSeries returns the Wilder average of values at every index.
func WilderSeries(values []float64, period int) []model.NullFloat {
	return Run(NewWilder(period), values)
}
