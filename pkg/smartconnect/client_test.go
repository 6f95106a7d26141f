package smartconnect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(route string, body map[string]any, r *http.Request) (int, string)) *SmartConnect {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for name, path := range routes {
			if path == r.URL.Path {
				code, resp := handler(name, body, r)
				w.WriteHeader(code)
				w.Write([]byte(resp))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return NewSmartConnect(Config{APIKey: "key", RootURL: srv.URL, ClientLocalIP: "10.0.0.2", ClientMAC: "aa:bb:cc:dd:ee:ff"})
}

func TestGenerateSessionAndCandles(t *testing.T) {
	var candleReq map[string]any
	sc := newTestServer(t, func(route string, body map[string]any, r *http.Request) (int, string) {
		assert.Equal(t, "key", r.Header.Get("X-PrivateKey"))
		switch route {
		case "api.login":
			assert.Equal(t, "A123", body["clientcode"])
			assert.Equal(t, "123456", body["totp"])
			return 200, `{"status":true,"message":"SUCCESS","data":{"jwtToken":"jwt-1","refreshToken":"ref-1","feedToken":"feed-1"}}`
		case "api.candle.data":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			candleReq = body
			return 200, `{"status":true,"message":"SUCCESS","data":[
				["2024-06-03T00:00:00+05:30",2940.05,2960.4,2921.15,2955.3,512000],
				["2024-06-04T00:00:00+05:30",2955.3,2971,2948.6,2950.75,498700]]}`
		}
		return 404, `{}`
	})
	ctx := context.Background()

	_, err := sc.GetCandleData(ctx, CandleParams{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, sc.GenerateSession(ctx, "A123", "0000", "123456"))
	assert.Equal(t, "jwt-1", sc.AccessToken())
	assert.Equal(t, "A123", sc.UserID())

	from := time.Date(2024, 6, 1, 9, 15, 0, 0, ist)
	rows, err := sc.GetCandleData(ctx, CandleParams{
		Exchange: "NSE", SymbolToken: "2885", Interval: IntervalOneDay,
		From: from, To: from.Add(4 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2955.3, rows[0].Close)
	assert.Equal(t, int64(498700), rows[1].Volume)
	assert.Equal(t, "2024-06-04", rows[1].TS.Format("2006-01-02"))

	assert.Equal(t, "2024-06-01 09:15", candleReq["fromdate"])
	assert.Equal(t, "ONE_DAY", candleReq["interval"])
}

func TestAPIErrors(t *testing.T) {
	expired := false
	sc := newTestServer(t, func(route string, _ map[string]any, _ *http.Request) (int, string) {
		switch route {
		case "api.login":
			return 200, `{"status":false,"message":"Invalid totp","errorcode":"AB1050","data":null}`
		case "api.token":
			return 403, `{"error_type":"TokenException","message":"Token expired"}`
		case "api.candle.data":
			return 200, `{"status":false,"message":"Access denied because of exceeding access rate","errorcode":"AB1004"}`
		}
		return 404, ``
	})
	sc.SessionExpiryHook = func() { expired = true }
	ctx := context.Background()

	err := sc.GenerateSession(ctx, "A123", "0000", "000000")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AB1050", apiErr.Type)
	assert.False(t, apiErr.Temporary())

	assert.ErrorIs(t, sc.RenewAccessToken(ctx), ErrNotLoggedIn)
	sc.setTokens("jwt", "ref", "")
	err = sc.RenewAccessToken(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "TokenException", apiErr.Type)
	assert.True(t, expired)

	_, err = sc.GetCandleData(ctx, CandleParams{Exchange: "NSE", SymbolToken: "1"})
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
}

func TestParseCandleRows(t *testing.T) {
	rows, err := parseCandleRows(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = parseCandleRows(json.RawMessage(`[["2024-06-03T00:00:00+05:30",1,2,0.5]]`))
	assert.Error(t, err)

	_, err = parseCandleRows(json.RawMessage(`[["yesterday",1,2,0.5,1,10]]`))
	assert.Error(t, err)
}

func TestSearchScrip(t *testing.T) {
	sc := newTestServer(t, func(route string, body map[string]any, _ *http.Request) (int, string) {
		assert.Equal(t, "SBIN", body["searchscrip"])
		return 200, `{"status":true,"message":"SUCCESS","data":[{"exchange":"NSE","tradingsymbol":"SBIN-EQ","symboltoken":"3045"}]}`
	})
	sc.setTokens("jwt", "", "")

	got, err := sc.SearchScrip(context.Background(), "NSE", "SBIN")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3045", got[0].SymbolToken)
}
