package enrich

import (
	"marketcontext/internal/indicator"
	"marketcontext/internal/model"
)

type volatilityBundle struct {
	BBUpper, BBMiddle, BBLower model.NullFloat
	ATR14                      model.NullFloat
	ATRPercent                 model.NullFloat

	series map[string][]model.NullFloat
}

// computeVolatility derives Bollinger(20, 2σ), ATR(14) and ATR as a
// percentage of the latest close.
func computeVolatility(s *model.Series, opts Options) volatilityBundle {
	closes := s.Closes()
	bb := indicator.BollingerSeries(closes, BBPeriod, BBStdDev)
	atr := indicator.ATRSeries(s.Highs(), s.Lows(), closes, ATRPeriod)

	b := volatilityBundle{
		BBUpper:  indicator.Last(bb.Upper),
		BBMiddle: indicator.Last(bb.Middle),
		BBLower:  indicator.Last(bb.Lower),
		ATR14:    indicator.Last(atr),
	}
	if last, ok := s.Last(); ok && b.ATR14.Valid && last.Close > 0 {
		b.ATRPercent = model.Float(b.ATR14.Float64 / last.Close * 100)
	}

	if opts.IncludeSeries {
		b.series = map[string][]model.NullFloat{
			"bb_upper":  bb.Upper,
			"bb_middle": bb.Middle,
			"bb_lower":  bb.Lower,
			"atr_14":    atr,
		}
	}
	return b
}
