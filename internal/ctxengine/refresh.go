package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketcontext/internal/logger"
	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
	"marketcontext/internal/notification"
)

// RefreshResult is the outcome for one watchlist instrument.
type RefreshResult struct {
	Key       string   `json:"key"`
	Fetched   int      `json:"fetched"`
	Candles   int      `json:"candles,omitempty"`
	Undefined []string `json:"undefined,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// RefreshReport summarises one pass over the watchlist.
type RefreshReport struct {
	StartedAt time.Time       `json:"started_at"`
	Took      string          `json:"took"`
	Results   []RefreshResult `json:"results"`
	Failed    int             `json:"failed"`
}

// Refresh fetches missing candles for every watchlist instrument and
// recomputes its snapshot, RefreshWorkers at a time. One instrument
// failing does not stop the others; the returned error joins all failures.
func (svc *Service) Refresh(ctx context.Context) (*RefreshReport, error) {
	start := svc.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("refresh", start))

	report := &RefreshReport{StartedAt: start, Results: make([]RefreshResult, len(svc.cfg.Watchlist))}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.cfg.RefreshWorkers)
	for i, inst := range svc.cfg.Watchlist {
		i, inst := i, inst
		g.Go(func() error {
			res, err := svc.refreshOne(gctx, inst)
			report.Results[i] = res
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// a cancelled parent stops the pass; instrument errors do not
			return ctx.Err()
		})
	}
	waitErr := g.Wait()

	took := svc.now().Sub(start)
	report.Took = took.Round(time.Millisecond).String()
	report.Failed = len(errs)
	svc.Metrics.RefreshDur.Observe(took.Seconds())

	err := errors.Join(append(errs, waitErr)...)
	svc.Health.SetRefreshResult(svc.now(), err)
	if err == nil {
		svc.Metrics.RefreshLastSuccess.Set(float64(svc.now().Unix()))
	} else {
		svc.notifyRefreshFailure(ctx, report)
	}

	log.Printf("[ctxengine] refresh: %d instruments, %d failed, took %s",
		len(report.Results), report.Failed, report.Took)
	return report, err
}

func (svc *Service) refreshOne(ctx context.Context, inst model.Instrument) (RefreshResult, error) {
	res := RefreshResult{Key: inst.Key()}
	fail := func(err error) (RefreshResult, error) {
		res.Error = err.Error()
		return res, fmt.Errorf("%s: %w", inst.Key(), err)
	}

	if err := svc.Store.UpsertInstrument(ctx, inst); err != nil {
		return fail(err)
	}

	if svc.Fetcher != nil {
		n, err := svc.fetchMissing(ctx, inst)
		res.Fetched = n
		if err != nil {
			return fail(err)
		}
	}

	snap, err := svc.Snapshot(ctx, inst.Exchange, inst.Token, svc.cfg.Options)
	if err != nil {
		return fail(err)
	}
	res.Candles = snap.Candles
	res.Undefined = snap.Undefined
	return res, nil
}

// fetchMissing pulls candles after the newest stored one, or HistoryDays
// of history for an instrument with none.
func (svc *Service) fetchMissing(ctx context.Context, inst model.Instrument) (int, error) {
	now := svc.now()
	last, ok, err := svc.Store.LastCandleTime(ctx, inst.Exchange, inst.Token)
	if err != nil {
		return 0, err
	}

	from := markethours.SessionDate(now).AddDate(0, 0, -svc.cfg.HistoryDays)
	if ok {
		from = last.AddDate(0, 0, 1)
	}
	if from.After(markethours.LastCompletedSession(now)) {
		return 0, nil
	}

	candles, err := svc.Fetcher.FetchDaily(ctx, inst, from, now)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	if err := svc.Store.UpsertCandles(ctx, inst.Exchange, inst.Token, candles); err != nil {
		return 0, err
	}
	return len(candles), nil
}

func (svc *Service) notifyRefreshFailure(ctx context.Context, r *RefreshReport) {
	var failed []string
	for _, res := range r.Results {
		if res.Error != "" {
			failed = append(failed, res.Key+": "+res.Error)
		}
	}
	msg := fmt.Sprintf("%d of %d instruments failed", r.Failed, len(r.Results))
	for _, f := range failed {
		msg += "\n" + f
	}
	alert := notification.Alert{Level: notification.AlertCritical, Title: "Market context refresh failed", Message: msg}
	if err := svc.Notifier.Send(ctx, alert); err != nil {
		log.Printf("[ctxengine] refresh alert: %v", err)
	}
}
