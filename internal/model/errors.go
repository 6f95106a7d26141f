package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientData means the series is too short for a computation.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedCandle matches any *MalformedCandleError via errors.Is.
	ErrMalformedCandle = errors.New("malformed candle")
)

// MalformedCandleError identifies the first candle that broke the OHLCV
// invariant or the timestamp ordering of a series.
type MalformedCandleError struct {
	Index  int
	TS     time.Time
	Reason string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle at index %d (%s): %s",
		e.Index, e.TS.Format("2006-01-02"), e.Reason)
}

// Is reports ErrMalformedCandle as a match.
func (e *MalformedCandleError) Is(target error) bool {
	return target == ErrMalformedCandle
}
