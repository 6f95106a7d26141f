package ctxengine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
	"marketcontext/internal/notification"
)

// memStore is an in-memory candle + snapshot store.
type memStore struct {
	mu          sync.Mutex
	candles     map[string][]model.Candle
	instruments map[string]model.Instrument
	snapshots   []*model.EnrichedMarketData
}

func newMemStore() *memStore {
	return &memStore{
		candles:     make(map[string][]model.Candle),
		instruments: make(map[string]model.Instrument),
	}
}

func (m *memStore) ReadCandles(_ context.Context, exchange, token string, from time.Time) ([]model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Candle
	for _, c := range m.candles[exchange+":"+token] {
		if !c.TS.Before(from) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) Instrument(_ context.Context, exchange, token string) (*model.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[exchange+":"+token]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

func (m *memStore) UpsertCandles(_ context.Context, exchange, token string, candles []model.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := exchange + ":" + token
	byTS := make(map[time.Time]model.Candle)
	for _, c := range m.candles[key] {
		byTS[c.TS] = c
	}
	for _, c := range candles {
		byTS[c.TS] = c
	}
	merged := make([]model.Candle, 0, len(byTS))
	for _, c := range byTS {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].TS.Before(merged[j].TS) })
	m.candles[key] = merged
	return nil
}

func (m *memStore) UpsertInstrument(_ context.Context, inst model.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments[inst.Key()] = inst
	return nil
}

func (m *memStore) LastCandleTime(_ context.Context, exchange, token string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := m.candles[exchange+":"+token]
	if len(cs) == 0 {
		return time.Time{}, false, nil
	}
	return cs[len(cs)-1].TS, true, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap *model.EnrichedMarketData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memStore) LatestSnapshot(_ context.Context, exchange, token string) (*model.EnrichedMarketData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if s := m.snapshots[i]; s.Exchange == exchange && s.InstrumentToken == token {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memStore) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.candles[key])
}

func (m *memStore) saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, snap *model.EnrichedMarketData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, snap.Key())
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (n *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) all() []notification.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Alert(nil), n.alerts...)
}

// stubFetcher serves weekday candles in [from, to]; tokens in fail error out.
type stubFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []time.Time
}

func (f *stubFetcher) FetchDaily(_ context.Context, inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, from)
	f.mu.Unlock()
	if f.fail[inst.Token] {
		return nil, errors.New("broker unavailable")
	}
	var out []model.Candle
	for d := markethours.SessionDate(from); !d.After(markethours.SessionDate(to)); d = d.AddDate(0, 0, 1) {
		if markethours.IsWeekday(d) {
			out = append(out, candle(d, 200))
		}
	}
	return out, nil
}

func candle(ts time.Time, close float64) model.Candle {
	return model.Candle{TS: ts, Open: close - 1, High: close + 2, Low: close - 2, Close: close, Volume: 1000}
}

// weekdays returns n consecutive weekday session dates ending at last.
func weekdays(n int, last time.Time) []time.Time {
	out := make([]time.Time, n)
	d := last
	for i := n - 1; i >= 0; {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = d
			i--
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

// risingHistory is n weekday candles ending at last with closes 100, 101, ...
func risingHistory(n int, last time.Time) []model.Candle {
	days := weekdays(n, last)
	out := make([]model.Candle, n)
	for i, d := range days {
		out[i] = candle(d, 100+float64(i))
	}
	return out
}
