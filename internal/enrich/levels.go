package enrich

import (
	"marketcontext/internal/levels"
	"marketcontext/internal/model"
)

type levelsBundle struct {
	levels  model.PriceLevels
	partial []string // defined from fewer candles than the nominal window
}

// computeLevels derives price levels from raw candles only.
func computeLevels(s *model.Series, opts Options) levelsBundle {
	var (
		b  levelsBundle
		lv = &b.levels
	)
	last, ok := s.Last()
	if !ok {
		return b
	}
	price := last.Close
	candles := s.Candles()

	if high, low, ok := levels.Extremes(candles, levels.TradingDays52W); ok {
		lv.High52W = model.Float(high)
		lv.Low52W = model.Float(low)
		lv.PctFrom52WHigh = model.Float(levels.PctFrom(price, high))
		lv.PctFrom52WLow = model.Float(levels.PctFrom(price, low))
	}
	if high, low, n := levels.TrailingExtremes(candles, levels.TradingDays20D); n > 0 {
		lv.High20D = model.Float(high)
		lv.Low20D = model.Float(low)
		if n < levels.TradingDays20D {
			b.partial = append(b.partial, "high_20d", "low_20d")
		}
	}

	swingHigh, swingLow := levels.RecentSwings(candles, opts.SwingThreshold)
	if swingHigh != nil {
		lv.RecentSwingHigh = model.Float(swingHigh.Price)
		lv.RecentSwingHighDate = model.Time(swingHigh.TS)
	}
	if swingLow != nil {
		lv.RecentSwingLow = model.Float(swingLow.Price)
		lv.RecentSwingLowDate = model.Time(swingLow.TS)
	}

	if below, above, ok := levels.RoundLevels(price); ok {
		lv.NearestRoundBelow = model.Float(below)
		lv.NearestRoundAbove = model.Float(above)
	}
	return b
}
