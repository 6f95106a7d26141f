package historical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
	"marketcontext/pkg/smartconnect"
)

var reliance = model.Instrument{Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ"}

type fakeSource struct {
	calls []smartconnect.CandleParams
	fail  []error
	rows  func(p smartconnect.CandleParams) []smartconnect.CandleRow
}

func (f *fakeSource) GetCandleData(_ context.Context, p smartconnect.CandleParams) ([]smartconnect.CandleRow, error) {
	f.calls = append(f.calls, p)
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.rows(p), nil
}

// dailyRows returns one row per weekday in [p.From, p.To], stamped at IST midnight.
func dailyRows(p smartconnect.CandleParams) []smartconnect.CandleRow {
	var out []smartconnect.CandleRow
	from := markethours.SessionDate(p.From)
	to := markethours.SessionDate(p.To)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		ts := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, markethours.IST)
		out = append(out, smartconnect.CandleRow{TS: ts, Open: 100, High: 110, Low: 90, Close: 105, Volume: 10})
	}
	return out
}

func newTestFetcher(src candleSource, now time.Time) *Fetcher {
	f := NewFetcher(src)
	f.minGap = 0
	f.retryAfter = time.Millisecond
	f.now = func() time.Time { return now }
	return f
}

func TestFetchDaily_NormalisesAndDropsFormingSession(t *testing.T) {
	src := &fakeSource{rows: dailyRows}
	// Wednesday 11:00 IST: today's candle is still forming
	now := time.Date(2025, time.June, 4, 11, 0, 0, 0, markethours.IST)
	f := newTestFetcher(src, now)

	var observed int
	f.OnFetch = func(_ time.Duration, n int, err error) { observed = n }

	from := time.Date(2025, time.May, 26, 0, 0, 0, 0, time.UTC)
	got, err := f.FetchDaily(context.Background(), reliance, from, now)
	require.NoError(t, err)

	require.Len(t, got, 7) // May 26-30, Jun 2-3
	assert.Equal(t, from, got[0].TS)
	assert.Equal(t, time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC), got[6].TS)
	assert.Equal(t, 7, observed)

	require.Len(t, src.calls, 1)
	p := src.calls[0]
	assert.Equal(t, "ONE_DAY", p.Interval)
	assert.Equal(t, "2885", p.SymbolToken)
	assert.Equal(t, "2025-06-03 15:30", p.To.In(markethours.IST).Format("2006-01-02 15:04"))

	_, err = model.NewSeries(reliance, got)
	assert.NoError(t, err, "fetched candles form a valid series")
}

func TestFetchDaily_ChunksLongRanges(t *testing.T) {
	src := &fakeSource{rows: dailyRows}
	now := time.Date(2025, time.June, 4, 18, 0, 0, 0, markethours.IST)
	f := newTestFetcher(src, now)

	from := now.AddDate(0, 0, -(maxDaysPerRequest + 10))
	got, err := f.FetchDaily(context.Background(), reliance, from, now)
	require.NoError(t, err)
	assert.Len(t, src.calls, 2)

	for i := 1; i < len(got); i++ {
		require.True(t, got[i].TS.After(got[i-1].TS), "strictly increasing at %d", i)
	}
}

func TestFetchDaily_EmptyRange(t *testing.T) {
	src := &fakeSource{rows: dailyRows}
	now := time.Date(2025, time.June, 4, 18, 0, 0, 0, markethours.IST)
	f := newTestFetcher(src, now)

	got, err := f.FetchDaily(context.Background(), reliance, now.AddDate(0, 0, 3), now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.calls)
}

func TestFetchDaily_RetriesRateLimit(t *testing.T) {
	src := &fakeSource{
		rows: dailyRows,
		fail: []error{&smartconnect.APIError{HTTPStatus: 200, Type: "AB1004", Message: "Access denied because of exceeding access rate"}},
	}
	now := time.Date(2025, time.June, 4, 18, 0, 0, 0, markethours.IST)
	f := newTestFetcher(src, now)

	got, err := f.FetchDaily(context.Background(), reliance, now.AddDate(0, 0, -2), now)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Len(t, src.calls, 2)
}

func TestFetchDaily_PermanentError(t *testing.T) {
	denied := &smartconnect.APIError{HTTPStatus: 403, Type: "AG8001", Message: "Invalid Token"}
	src := &fakeSource{rows: dailyRows, fail: []error{denied}}
	now := time.Date(2025, time.June, 4, 18, 0, 0, 0, markethours.IST)
	f := newTestFetcher(src, now)

	_, err := f.FetchDaily(context.Background(), reliance, now.AddDate(0, 0, -2), now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, denied) || errors.As(err, new(*smartconnect.APIError)))
	assert.Len(t, src.calls, 1)
}
