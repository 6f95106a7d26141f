package enrich

import (
	"marketcontext/internal/indicator"
	"marketcontext/internal/model"
)

// trendBundle is the trend engine's private output.
type trendBundle struct {
	EMA9, EMA20, EMA50, EMA200 model.NullFloat

	MACDLine      model.NullFloat
	MACDSignal    model.NullFloat
	MACDHistogram model.NullFloat

	series map[string][]model.NullFloat
}

// computeTrend derives EMA(9/20/50/200) and MACD(12,26,9) from closes.
func computeTrend(s *model.Series, opts Options) trendBundle {
	closes := s.Closes()

	emas := make([][]model.NullFloat, len(EMAPeriods))
	for i, p := range EMAPeriods {
		emas[i] = indicator.EMASeries(closes, p)
	}
	macd := indicator.MACDSeries(closes, MACDFast, MACDSlow, MACDSignal)

	b := trendBundle{
		EMA9:          indicator.Last(emas[0]),
		EMA20:         indicator.Last(emas[1]),
		EMA50:         indicator.Last(emas[2]),
		EMA200:        indicator.Last(emas[3]),
		MACDLine:      indicator.Last(macd.Line),
		MACDSignal:    indicator.Last(macd.Signal),
		MACDHistogram: indicator.Last(macd.Histogram),
	}

	if opts.IncludeSeries {
		b.series = map[string][]model.NullFloat{
			"ema_9":          emas[0],
			"ema_20":         emas[1],
			"ema_50":         emas[2],
			"ema_200":        emas[3],
			"macd":           macd.Line,
			"macd_signal":    macd.Signal,
			"macd_histogram": macd.Histogram,
		}
	}
	return b
}
