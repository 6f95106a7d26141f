// Package markethours answers NSE calendar questions for daily candles:
// which days trade, and which session is the latest one fully closed.
package markethours

import (
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// TodayClose returns the close time (3:30 PM IST) of t's IST calendar day.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// SessionDate maps t to its IST calendar date expressed as UTC midnight,
// the timestamp convention for daily candles.
func SessionDate(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, time.UTC)
}

// LastCompletedSession returns the session date of the most recent trading
// day whose close is at or before t. A daily candle for a later date is
// still forming.
func LastCompletedSession(t time.Time) time.Time {
	ist := t.In(IST)
	d := ist
	if ist.Before(TodayClose(ist)) || !IsTradingDay(ist) {
		d = ist.AddDate(0, 0, -1)
	}
	for i := 0; i < 15 && !IsTradingDay(d); i++ { // holidays + weekends
		d = d.AddDate(0, 0, -1)
	}
	return SessionDate(d)
}

// IsSessionComplete reports whether the daily candle dated session is final at now.
func IsSessionComplete(session, now time.Time) bool {
	return !SessionDate(session).After(LastCompletedSession(now))
}
