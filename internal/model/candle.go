package model

import (
	"math"
	"time"
)

// Candle represents one daily OHLCV bar for a single instrument.
// Prices are in rupees; storage converts to paise (see conv.go).
type Candle struct {
	TS     time.Time `json:"ts"` // session date (UTC midnight of the trading day)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// check returns a non-empty reason if the candle violates the OHLCV invariant.
func (c *Candle) check() string {
	for _, p := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return "non-finite price"
		}
	}
	switch {
	case c.Low > c.High:
		return "low above high"
	case c.Open < c.Low || c.Open > c.High:
		return "open outside [low, high]"
	case c.Close < c.Low || c.Close > c.High:
		return "close outside [low, high]"
	case c.Volume < 0:
		return "negative volume"
	case c.Low <= 0:
		return "non-positive price"
	}
	return ""
}

// Series is a chronologically ordered, validated run of daily candles for
// one instrument. Build it with NewSeries; it is never mutated afterwards.
type Series struct {
	Token    string
	Exchange string
	Symbol   string

	candles []Candle
}

// NewSeries validates candles and returns an immutable Series.
// The first candle breaking the OHLCV invariant or timestamp ordering is
// reported as a *MalformedCandleError; nothing is dropped or repaired.
func NewSeries(inst Instrument, candles []Candle) (*Series, error) {
	for i := range candles {
		c := &candles[i]
		if reason := c.check(); reason != "" {
			return nil, &MalformedCandleError{Index: i, TS: c.TS, Reason: reason}
		}
		if i > 0 && !c.TS.After(candles[i-1].TS) {
			return nil, &MalformedCandleError{Index: i, TS: c.TS, Reason: "timestamp not after previous candle"}
		}
	}

	own := make([]Candle, len(candles))
	copy(own, candles)
	return &Series{
		Token:    inst.Token,
		Exchange: inst.Exchange,
		Symbol:   inst.TradingSymbol,
		candles:  own,
	}, nil
}

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.candles) }

// At returns the i-th candle (oldest first).
func (s *Series) At(i int) Candle { return s.candles[i] }

// Last returns the most recent candle. ok is false for an empty series.
func (s *Series) Last() (c Candle, ok bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Tail returns a copy of the trailing n candles (all of them if n > Len).
func (s *Series) Tail(n int) []Candle {
	if n > len(s.candles) {
		n = len(s.candles)
	}
	out := make([]Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out
}

// Candles returns a copy of every candle.
func (s *Series) Candles() []Candle { return s.Tail(len(s.candles)) }

// Closes returns the close-price column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i := range s.candles {
		out[i] = s.candles[i].Close
	}
	return out
}

// Highs returns the high-price column.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.candles))
	for i := range s.candles {
		out[i] = s.candles[i].High
	}
	return out
}

// Lows returns the low-price column.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.candles))
	for i := range s.candles {
		out[i] = s.candles[i].Low
	}
	return out
}

// Key returns "exchange:token".
func (s *Series) Key() string {
	return s.Exchange + ":" + s.Token
}
