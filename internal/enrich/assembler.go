package enrich

import (
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"marketcontext/internal/model"
)

// EngineError reports an engine that failed to produce its bundle.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string { return fmt.Sprintf("%s engine: %v", e.Engine, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// Compute runs the four engines over s and assembles the snapshot.
//
// Indicators lacking history are left undefined and named in
// EnrichedMarketData.Undefined; values computed over a shortened window are
// named in Partial. Compute only fails with ErrInsufficientData
// when no field at all can be derived (an empty series).
func Compute(s *model.Series, opts Options) (*model.EnrichedMarketData, error) {
	if s == nil {
		return nil, fmt.Errorf("compute: nil series: %w", model.ErrInsufficientData)
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", s.Key(), err)
	}

	var (
		g   errgroup.Group
		tr  trendBundle
		osc oscillatorBundle
		vol volatilityBundle
		lv  levelsBundle
	)
	g.Go(guard("trend", func() { tr = computeTrend(s, opts) }))
	g.Go(guard("oscillator", func() { osc = computeOscillator(s, opts) }))
	g.Go(guard("volatility", func() { vol = computeVolatility(s, opts) }))
	g.Go(guard("levels", func() { lv = computeLevels(s, opts) }))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", s.Key(), err)
	}

	out := &model.EnrichedMarketData{
		InstrumentToken: s.Token,
		Symbol:          s.Symbol,
		Exchange:        s.Exchange,
		Candles:         s.Len(),
		Indicators: model.IndicatorValues{
			EMA9:          tr.EMA9,
			EMA20:         tr.EMA20,
			EMA50:         tr.EMA50,
			EMA200:        tr.EMA200,
			RSI14:         osc.RSI14,
			MACDLine:      tr.MACDLine,
			MACDSignal:    tr.MACDSignal,
			MACDHistogram: tr.MACDHistogram,
			BBUpper:       vol.BBUpper,
			BBMiddle:      vol.BBMiddle,
			BBLower:       vol.BBLower,
			ATR14:         vol.ATR14,
			ATRPercent:    vol.ATRPercent,
		},
		Levels:  lv.levels,
		Partial: lv.partial,
	}
	if last, ok := s.Last(); ok {
		out.LatestPrice = last.Close
		out.AsOf = model.Time(last.TS)
	}

	fields := out.Fields()
	for _, f := range fields {
		if !f.Valid {
			out.Undefined = append(out.Undefined, f.Name)
		}
	}
	if len(out.Undefined) == len(fields) {
		return nil, fmt.Errorf("compute %s: %d candles: %w", s.Key(), s.Len(), model.ErrInsufficientData)
	}

	if opts.IncludeSeries {
		out.Series = make(map[string][]model.NullFloat, 12)
		for _, m := range []map[string][]model.NullFloat{tr.series, osc.series, vol.series} {
			for k, v := range m {
				out.Series[k] = v
			}
		}
	}
	return out, nil
}

// LevelsReport is the standalone price-levels answer.
type LevelsReport struct {
	LatestPrice float64           `json:"latest_price"`
	AsOf        model.NullTime    `json:"as_of"`
	Levels      model.PriceLevels `json:"price_levels"`
	ATRPercent  model.NullFloat   `json:"atr_percent"`
	Partial     []string          `json:"partial,omitempty"`
}

// ComputeLevels runs only the level and volatility engines.
func ComputeLevels(s *model.Series, opts Options) (*LevelsReport, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("levels: empty series: %w", model.ErrInsufficientData)
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("levels %s: %w", s.Key(), err)
	}
	opts.IncludeSeries = false

	var (
		g   errgroup.Group
		vol volatilityBundle
		lv  levelsBundle
	)
	g.Go(guard("volatility", func() { vol = computeVolatility(s, opts) }))
	g.Go(guard("levels", func() { lv = computeLevels(s, opts) }))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("levels %s: %w", s.Key(), err)
	}

	last, _ := s.Last()
	return &LevelsReport{
		LatestPrice: last.Close,
		AsOf:        model.Time(last.TS),
		Levels:      lv.levels,
		ATRPercent:  vol.ATRPercent,
		Partial:     lv.partial,
	}, nil
}

// guard converts a panicking engine into an *EngineError.
func guard(engine string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &EngineError{
					Engine: engine,
					Err:    fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
				}
			}
		}()
		fn()
		return nil
	}
}

// IsInsufficient reports whether err means there was no data to work with.
func IsInsufficient(err error) bool { return errors.Is(err, model.ErrInsufficientData) }
