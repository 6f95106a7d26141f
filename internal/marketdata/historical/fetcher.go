// Package historical pulls daily OHLCV history from the broker and
// normalises it into model candles.
package historical

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
	"marketcontext/pkg/smartconnect"
)

const (
	// ONE_DAY requests are limited to this many calendar days each.
	maxDaysPerRequest = 2000

	// Historical API allows about three requests per second.
	defaultMinGap = 350 * time.Millisecond
)

// candleSource is the broker call the fetcher needs; *smartconnect.SmartConnect satisfies it.
type candleSource interface {
	GetCandleData(ctx context.Context, p smartconnect.CandleParams) ([]smartconnect.CandleRow, error)
}

// Fetcher implements model.CandleFetcher against Angel One SmartAPI.
type Fetcher struct {
	src        candleSource
	minGap     time.Duration
	retries    uint64
	retryAfter time.Duration
	now        func() time.Time

	mu   sync.Mutex
	last time.Time

	// OnFetch is called after every instrument fetch (for metrics).
	OnFetch func(took time.Duration, candles int, err error)
}

// NewFetcher wraps src.
func NewFetcher(src candleSource) *Fetcher {
	return &Fetcher{src: src, minGap: defaultMinGap, retries: 4, retryAfter: time.Second, now: time.Now}
}

// FetchDaily returns completed daily candles for inst between from and to
// (inclusive, by session date), oldest first with unique dates. A candle
// for a session that has not closed yet is dropped.
func (f *Fetcher) FetchDaily(ctx context.Context, inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	start := f.now()
	out, err := f.fetch(ctx, inst, from, to)
	if f.OnFetch != nil {
		f.OnFetch(f.now().Sub(start), len(out), err)
	}
	return out, err
}

func (f *Fetcher) fetch(ctx context.Context, inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	from, to = markethours.SessionDate(from), markethours.SessionDate(to)
	if last := markethours.LastCompletedSession(f.now()); to.After(last) {
		to = last
	}
	if from.After(to) {
		return nil, nil
	}

	byDate := make(map[time.Time]model.Candle)
	for chunkFrom := from; !chunkFrom.After(to); chunkFrom = chunkFrom.AddDate(0, 0, maxDaysPerRequest) {
		chunkTo := chunkFrom.AddDate(0, 0, maxDaysPerRequest-1)
		if chunkTo.After(to) {
			chunkTo = to
		}

		rows, err := f.call(ctx, smartconnect.CandleParams{
			Exchange:    inst.Exchange,
			SymbolToken: inst.Token,
			Interval:    smartconnect.IntervalOneDay,
			From:        istTime(chunkFrom, markethours.OpenHour, markethours.OpenMinute),
			To:          istTime(chunkTo, markethours.CloseHour, markethours.CloseMinute),
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s..%s: %w", inst.Key(),
				chunkFrom.Format("2006-01-02"), chunkTo.Format("2006-01-02"), err)
		}

		for _, r := range rows {
			day := markethours.SessionDate(r.TS)
			if day.Before(from) || day.After(to) {
				continue
			}
			byDate[day] = model.Candle{
				TS:     day,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			}
		}
	}

	out := make([]model.Candle, 0, len(byDate))
	for _, c := range byDate {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

// call throttles and retries one broker request. Only rate-limit and
// server errors are retried.
func (f *Fetcher) call(ctx context.Context, p smartconnect.CandleParams) ([]smartconnect.CandleRow, error) {
	var rows []smartconnect.CandleRow
	op := func() error {
		if err := f.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		rows, err = f.src.GetCandleData(ctx, p)
		if err == nil {
			return nil
		}
		var apiErr *smartconnect.APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			log.Printf("[historical] %s:%s retrying: %v", p.Exchange, p.SymbolToken, err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryAfter
	b.MaxElapsedTime = time.Minute
	return rows, backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, f.retries), ctx))
}

// wait enforces minGap between consecutive requests.
func (f *Fetcher) wait(ctx context.Context) error {
	f.mu.Lock()
	next := f.last.Add(f.minGap)
	now := f.now()
	if next.Before(now) {
		next = now
	}
	f.last = next
	f.mu.Unlock()

	d := next.Sub(now)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func istTime(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, markethours.IST)
}
