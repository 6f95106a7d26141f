package model

import (
	"encoding/json"
	"fmt"
)

// IndicatorValues holds the latest value of every computed indicator.
// A field is undefined when the series was too short for its lookback.
type IndicatorValues struct {
	EMA9          NullFloat `json:"ema_9"`
	EMA20         NullFloat `json:"ema_20"`
	EMA50         NullFloat `json:"ema_50"`
	EMA200        NullFloat `json:"ema_200"`
	RSI14         NullFloat `json:"rsi_14"`
	MACDLine      NullFloat `json:"macd_line"`
	MACDSignal    NullFloat `json:"macd_signal"`
	MACDHistogram NullFloat `json:"macd_histogram"`
	BBUpper       NullFloat `json:"bb_upper"`
	BBMiddle      NullFloat `json:"bb_middle"`
	BBLower       NullFloat `json:"bb_lower"`
	ATR14         NullFloat `json:"atr_14"`
	ATRPercent    NullFloat `json:"atr_percent"`
}

// PriceLevels holds support/resistance context for the latest price.
type PriceLevels struct {
	High52W        NullFloat `json:"high_52w"`
	Low52W         NullFloat `json:"low_52w"`
	PctFrom52WHigh NullFloat `json:"pct_from_52w_high"` // negative = below high
	PctFrom52WLow  NullFloat `json:"pct_from_52w_low"`  // positive = above low

	High20D NullFloat `json:"high_20d"`
	Low20D  NullFloat `json:"low_20d"`

	RecentSwingHigh     NullFloat `json:"recent_swing_high"`
	RecentSwingHighDate NullTime  `json:"recent_swing_high_date"`
	RecentSwingLow      NullFloat `json:"recent_swing_low"`
	RecentSwingLowDate  NullTime  `json:"recent_swing_low_date"`

	NearestRoundAbove NullFloat `json:"nearest_round_above"`
	NearestRoundBelow NullFloat `json:"nearest_round_below"`
}

// EnrichedMarketData is the immutable snapshot handed to the GTT decision
// agent. Undefined lists the fields left undefined for lack of data;
// Partial lists defined fields computed over a shorter window than nominal.
type EnrichedMarketData struct {
	InstrumentToken string          `json:"instrument_token"`
	Symbol          string          `json:"symbol"`
	Exchange        string          `json:"exchange"`
	LatestPrice     float64         `json:"latest_price"`
	AsOf            NullTime        `json:"as_of"`
	Candles         int             `json:"candles"`
	Indicators      IndicatorValues `json:"indicators"`
	Levels          PriceLevels     `json:"price_levels"`
	Undefined       []string        `json:"undefined,omitempty"`
	Partial         []string        `json:"partial,omitempty"`

	// Series is only populated on request (full indicator history).
	Series map[string][]NullFloat `json:"indicator_series,omitempty"`
}

// Key returns "exchange:token".
func (e *EnrichedMarketData) Key() string {
	return e.Exchange + ":" + e.InstrumentToken
}

// JSON returns the JSON-encoded snapshot.
func (e *EnrichedMarketData) JSON() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", e.Key(), err)
	}
	return b, nil
}

// Field names one derived value and whether it is defined.
type Field struct {
	Name  string
	Valid bool
}

// Fields lists every indicator and level field in a fixed order.
func (e *EnrichedMarketData) Fields() []Field {
	in, lv := &e.Indicators, &e.Levels
	return []Field{
		{"ema_9", in.EMA9.Valid},
		{"ema_20", in.EMA20.Valid},
		{"ema_50", in.EMA50.Valid},
		{"ema_200", in.EMA200.Valid},
		{"rsi_14", in.RSI14.Valid},
		{"macd_line", in.MACDLine.Valid},
		{"macd_signal", in.MACDSignal.Valid},
		{"macd_histogram", in.MACDHistogram.Valid},
		{"bb_upper", in.BBUpper.Valid},
		{"bb_middle", in.BBMiddle.Valid},
		{"bb_lower", in.BBLower.Valid},
		{"atr_14", in.ATR14.Valid},
		{"atr_percent", in.ATRPercent.Valid},
		{"high_52w", lv.High52W.Valid},
		{"low_52w", lv.Low52W.Valid},
		{"pct_from_52w_high", lv.PctFrom52WHigh.Valid},
		{"pct_from_52w_low", lv.PctFrom52WLow.Valid},
		{"high_20d", lv.High20D.Valid},
		{"low_20d", lv.Low20D.Valid},
		{"recent_swing_high", lv.RecentSwingHigh.Valid},
		{"recent_swing_high_date", lv.RecentSwingHighDate.Valid},
		{"recent_swing_low", lv.RecentSwingLow.Valid},
		{"recent_swing_low_date", lv.RecentSwingLowDate.Valid},
		{"nearest_round_above", lv.NearestRoundAbove.Valid},
		{"nearest_round_below", lv.NearestRoundBelow.Valid},
	}
}
