package levels

import (
	"time"

	"marketcontext/internal/model"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind int

const (
	SwingHigh SwingKind = iota
	SwingLow
)

func (k SwingKind) String() string {
	if k == SwingHigh {
		return "high"
	}
	return "low"
}

// SwingPoint is a confirmed local extremum.
type SwingPoint struct {
	Kind  SwingKind `json:"kind"`
	Index int       `json:"index"`
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

type leg int

const (
	legUnknown leg = iota
	legUp          // tracking the running high, waiting for a fall
	legDown        // tracking the running low, waiting for a rise
)

type extreme struct {
	idx   int
	price float64
}

// Swings scans candles (oldest first) as a percentage zigzag and returns
// every confirmed swing point in chronological order.
//
// A swing high is the running high of an up-leg, confirmed once a later
// low falls at least threshold (fraction) below it before a higher high
// prints. Swing lows mirror that with a rise of threshold. Confirmation
// always lags: the extremum still being tracked at the end of the series
// is never reported.
func Swings(candles []model.Candle, threshold float64) []SwingPoint {
	if len(candles) < 2 || threshold <= 0 {
		return nil
	}

	var (
		out   []SwingPoint
		state = legUnknown
		hi    = extreme{0, candles[0].High}
		lo    = extreme{0, candles[0].Low}
	)

	confirm := func(kind SwingKind, e extreme) {
		out = append(out, SwingPoint{Kind: kind, Index: e.idx, TS: candles[e.idx].TS, Price: e.price})
	}

	for i := 1; i < len(candles); i++ {
		c := candles[i]
		fell := (hi.price-c.Low)/hi.price >= threshold
		rose := (c.High-lo.price)/lo.price >= threshold

		switch state {
		case legUnknown:
			// The older extremum reverses first when one candle does both.
			switch {
			case fell && (!rose || hi.idx <= lo.idx):
				confirm(SwingHigh, hi)
				state, lo = legDown, extreme{i, c.Low}
			case rose:
				confirm(SwingLow, lo)
				state, hi = legUp, extreme{i, c.High}
			default:
				if c.High > hi.price {
					hi = extreme{i, c.High}
				}
				if c.Low < lo.price {
					lo = extreme{i, c.Low}
				}
			}

		case legUp:
			if fell {
				confirm(SwingHigh, hi)
				state, lo = legDown, extreme{i, c.Low}
			} else if c.High > hi.price {
				hi = extreme{i, c.High}
			}

		case legDown:
			if rose {
				confirm(SwingLow, lo)
				state, hi = legUp, extreme{i, c.High}
			} else if c.Low < lo.price {
				lo = extreme{i, c.Low}
			}
		}
	}
	return out
}

// RecentSwings returns the most recent confirmed swing high and swing low.
// Either is nil when none was confirmed.
func RecentSwings(candles []model.Candle, threshold float64) (high, low *SwingPoint) {
	points := Swings(candles, threshold)
	for i := len(points) - 1; i >= 0 && (high == nil || low == nil); i-- {
		p := points[i]
		switch {
		case p.Kind == SwingHigh && high == nil:
			high = &p
		case p.Kind == SwingLow && low == nil:
			low = &p
		}
	}
	return high, low
}
