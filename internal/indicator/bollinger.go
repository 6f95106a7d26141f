package indicator

import (
	"math"

	"marketcontext/internal/model"
)

// Bands is one Bollinger Band reading.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands: SMA(period) ± k·σ, where σ is the
// population standard deviation of the same window.
type Bollinger struct {
	sma     *SMA
	k       float64
	current Bands
}

// NewBollinger creates Bollinger Bands with the given period and width k.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return name("BB", b.sma.period) }

func (b *Bollinger) Update(price float64) {
	b.sma.Update(price)
	if !b.sma.Ready() {
		return
	}

	mean := b.sma.Value()
	variance := 0.0
	for _, v := range b.sma.window() {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(b.sma.period))

	b.current = Bands{
		Upper:  mean + b.k*std,
		Middle: mean,
		Lower:  mean - b.k*std,
	}
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.current.Middle }
func (b *Bollinger) Bands() Bands   { return b.current }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

// BandSeries holds the three Bollinger series aligned with the input.
type BandSeries struct {
	Upper  []model.NullFloat
	Middle []model.NullFloat
	Lower  []model.NullFloat
}

// BollingerSeries returns Bollinger Bands of closes at every index.
func BollingerSeries(closes []float64, period int, k float64) BandSeries {
	bb := NewBollinger(period, k)
	out := BandSeries{
		Upper:  make([]model.NullFloat, len(closes)),
		Middle: make([]model.NullFloat, len(closes)),
		Lower:  make([]model.NullFloat, len(closes)),
	}
	for i, c := range closes {
		bb.Update(c)
		if !bb.Ready() {
			continue
		}
		bands := bb.Bands()
		out.Upper[i] = model.Float(bands.Upper)
		out.Middle[i] = model.Float(bands.Middle)
		out.Lower[i] = model.Float(bands.Lower)
	}
	return out
}
