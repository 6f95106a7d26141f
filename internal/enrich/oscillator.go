package enrich

import (
	"marketcontext/internal/indicator"
	"marketcontext/internal/model"
)

type oscillatorBundle struct {
	RSI14  model.NullFloat
	series map[string][]model.NullFloat
}

func computeOscillator(s *model.Series, opts Options) oscillatorBundle {
	rsi := indicator.RSISeries(s.Closes(), RSIPeriod)

	b := oscillatorBundle{RSI14: indicator.Last(rsi)}
	if opts.IncludeSeries {
		b.series = map[string][]model.NullFloat{"rsi_14": rsi}
	}
	return b
}
