package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInst = Instrument{Token: "1594", Exchange: "NSE", TradingSymbol: "INFY-EQ"}

func day(i int) time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i) }

func goodCandles(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		p := 1500 + float64(i)
		out[i] = Candle{TS: day(i), Open: p, High: p + 10, Low: p - 10, Close: p + 5, Volume: 100}
	}
	return out
}

func TestNewSeries_Valid(t *testing.T) {
	s, err := NewSeries(testInst, goodCandles(10))
	require.NoError(t, err)

	assert.Equal(t, 10, s.Len())
	assert.Equal(t, "NSE:1594", s.Key())
	assert.Equal(t, "INFY-EQ", s.Symbol)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 1514.0, last.Close)
	assert.Equal(t, []float64{1512, 1513, 1514}, s.Closes()[7:])
	assert.Equal(t, 1519.0, s.Highs()[9])
	assert.Equal(t, 1490.0, s.Lows()[0])
}

func TestNewSeries_Empty(t *testing.T) {
	s, err := NewSeries(testInst, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	_, ok := s.Last()
	assert.False(t, ok)
	assert.Empty(t, s.Tail(5))
}

func TestNewSeries_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c []Candle)
		index  int
		reason string
	}{
		{"low above high", func(c []Candle) { c[7].Low = c[7].High + 1 }, 7, "low above high"},
		{"open outside", func(c []Candle) { c[3].Open = c[3].High + 0.05 }, 3, "open outside [low, high]"},
		{"close outside", func(c []Candle) { c[4].Close = c[4].Low - 1 }, 4, "close outside [low, high]"},
		{"negative volume", func(c []Candle) { c[0].Volume = -1 }, 0, "negative volume"},
		{"zero price", func(c []Candle) { c[2] = Candle{TS: c[2].TS} }, 2, "non-positive price"},
		{"NaN close", func(c []Candle) { c[9].Close = math.NaN() }, 9, "non-finite price"},
		{"all NaN", func(c []Candle) {
			nan := math.NaN()
			c[1] = Candle{TS: c[1].TS, Open: nan, High: nan, Low: nan, Close: nan}
		}, 1, "non-finite price"},
		{"infinite high", func(c []Candle) { c[6].High = math.Inf(1) }, 6, "non-finite price"},
		{"infinite low", func(c []Candle) { c[6].Low = math.Inf(-1) }, 6, "non-finite price"},
		{"duplicate timestamp", func(c []Candle) { c[5].TS = c[4].TS }, 5, "timestamp not after previous candle"},
		{"out of order", func(c []Candle) { c[6].TS = c[2].TS }, 6, "timestamp not after previous candle"},
		{"first offender wins", func(c []Candle) {
			c[8].Low = c[8].High + 1
			c[2].Volume = -5
		}, 2, "negative volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := goodCandles(10)
			tt.mutate(candles)

			s, err := NewSeries(testInst, candles)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrMalformedCandle)

			var mce *MalformedCandleError
			require.True(t, errors.As(err, &mce))
			assert.Equal(t, tt.index, mce.Index)
			assert.Equal(t, candles[tt.index].TS, mce.TS)
			assert.Equal(t, tt.reason, mce.Reason)
		})
	}
}

func TestNewSeries_CopiesInput(t *testing.T) {
	candles := goodCandles(3)
	s, err := NewSeries(testInst, candles)
	require.NoError(t, err)

	candles[2].Close = 1
	assert.Equal(t, 1507.0, s.At(2).Close)

	out := s.Candles()
	out[0].Close = 1
	assert.Equal(t, 1505.0, s.At(0).Close)
}

func TestSeries_Tail(t *testing.T) {
	s, err := NewSeries(testInst, goodCandles(5))
	require.NoError(t, err)

	tail := s.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, day(3), tail[0].TS)
	assert.Len(t, s.Tail(50), 5)
}

func TestNullFloat_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A NullFloat `json:"a"`
		B NullFloat `json:"b"`
	}{A: Float(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(b))

	var back struct {
		A NullFloat `json:"a"`
		B NullFloat `json:"b"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Float(1.5), back.A)
	assert.False(t, back.B.Valid)
}

func TestSnapshot_JSONReportsEncodeError(t *testing.T) {
	snap := EnrichedMarketData{
		InstrumentToken: "1594",
		Exchange:        "NSE",
		Indicators:      IndicatorValues{RSI14: Float(math.NaN())},
	}
	data, err := snap.JSON()
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), "NSE:1594")
}

func TestSnapshot_JSONShape(t *testing.T) {
	snap := EnrichedMarketData{
		InstrumentToken: "1594",
		Exchange:        "NSE",
		Indicators:      IndicatorValues{RSI14: Float(55)},
		Levels:          PriceLevels{RecentSwingHighDate: Time(day(1))},
	}
	data, err := snap.JSON()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	ind := m["indicators"].(map[string]any)
	assert.Equal(t, 55.0, ind["rsi_14"])
	assert.Nil(t, ind["ema_200"])
	lv := m["price_levels"].(map[string]any)
	assert.Equal(t, "2024-03-02T00:00:00Z", lv["recent_swing_high_date"])
	assert.NotContains(t, m, "indicator_series")
	assert.Equal(t, "NSE:1594", snap.Key())
	assert.Len(t, snap.Fields(), 25)
}

func TestPaise(t *testing.T) {
	assert.Equal(t, int64(245065), ToPaise(2450.65))
	assert.Equal(t, int64(10), ToPaise(0.1))
	assert.Equal(t, 2450.65, FromPaise(245065))
}
