package indicator

import "marketcontext/internal/model"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer; the mean is recomputed from the
// window on every update so it never drifts from the values it covers.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return name("SMA", s.period) }

func (s *SMA) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		sum := 0.0
		for _, v := range s.window() {
			sum += v
		}
		s.current = sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// window returns the buffered values oldest first. Only meaningful once Ready.
func (s *SMA) window() []float64 {
	out := make([]float64, 0, s.period)
	out = append(out, s.buf[s.idx:]...)
	out = append(out, s.buf[:s.idx]...)
	return out
}

// SMASeries returns the SMA of values at every index.
func SMASeries(values []float64, period int) []model.NullFloat {
	return Run(NewSMA(period), values)
}
