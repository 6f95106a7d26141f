package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcontext/internal/model"
)

func TestObserveSnapshot(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveSnapshot(&model.EnrichedMarketData{Undefined: []string{"ema_200", "high_52w"}}, nil, time.Millisecond)
	m.ObserveSnapshot(&model.EnrichedMarketData{Undefined: []string{"ema_200"}}, nil, time.Millisecond)
	m.ObserveSnapshot(nil, fmt.Errorf("compute: %w", model.ErrInsufficientData), time.Millisecond)
	m.ObserveSnapshot(nil, &model.MalformedCandleError{Index: 3, Reason: "low above high"}, time.Millisecond)
	m.ObserveSnapshot(nil, errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(OutcomeInsufficient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(OutcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UndefinedFields.WithLabelValues("ema_200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UndefinedFields.WithLabelValues("high_52w")))
}

func TestHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.CandlesFetched.Add(250)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ctxengine_candles_fetched_total 250"))
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()

	get := func() (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])

	h.SetSQLiteOK(true)
	code, body = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"], "redis down")

	h.SetRedisConnected(true)
	h.SetWatchlist(3)
	h.SetRefreshResult(time.Now(), nil)
	code, body = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 3.0, body["watchlist"])

	h.SetRefreshResult(time.Now(), errors.New("fetch NSE:2885: timeout"))
	_, body = get()
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "fetch NSE:2885: timeout", body["last_refresh_error"])
}
