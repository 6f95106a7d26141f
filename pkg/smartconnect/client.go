// Package smartconnect is a minimal client for the Angel One SmartAPI REST
// endpoints used to pull daily history: password+TOTP login, token refresh,
// scrip search and historical candles.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PIN", totpCode); err != nil {
//	    log.Fatal(err)
//	}
//	rows, err := sc.GetCandleData(ctx, smartconnect.CandleParams{
//	    Exchange: "NSE", SymbolToken: "2885", Interval: smartconnect.IntervalOneDay,
//	    From: from, To: to,
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 15s
	Debug          bool
	UserType       string // default: USER
	SourceID       string // default: WEB
	ClientPublicIP string // default 106.193.147.98
	ClientLocalIP  string // default resolved, else 127.0.0.1
	ClientMAC      string // default from interface MAC

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

type SmartConnect struct {
	apiKey string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	debug      bool
	httpClient *http.Client

	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Optional callback for 403 TokenException
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// APIError is a SmartAPI error payload or a status=false response.
type APIError struct {
	HTTPStatus int
	Type       string // error_type or errorcode
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartapi %s (http %d): %s", e.Type, e.HTTPStatus, e.Message)
}

// Temporary reports whether a retry may succeed (rate limit or server error).
func (e *APIError) Temporary() bool {
	if e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "access rate")
}

// ErrNotLoggedIn is returned by secure endpoints before GenerateSession.
var ErrNotLoggedIn = errors.New("smartapi: not logged in")

// GetLocalIP finds the first non-loopback IPv4 address.
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

// NewSmartConnect initializes the client.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		localIP, err := GetLocalIP()
		if err != nil {
			log.Printf("[smartconnect] local IP: %v", err)
		}
		cfg.ClientLocalIP = firstNonEmpty(localIP, "127.0.0.1")
	}
	cfg.ClientPublicIP = firstNonEmpty(cfg.ClientPublicIP, "106.193.147.98")
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMACFallback()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     client,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getMACFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if tok := sc.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

// envelope is the common SmartAPI response shape.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (sc *SmartConnect) post(ctx context.Context, route string, params map[string]any) (json.RawMessage, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	if sc.debug {
		log.Printf("[smartconnect] request: POST %s", route)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartapi %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("smartapi %s: read body: %w", route, err)
	}
	if sc.debug {
		log.Printf("[smartconnect] response: %s code=%d bytes=%d", route, resp.StatusCode, len(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{HTTPStatus: resp.StatusCode, Type: "http", Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}
	if env.ErrorType != "" {
		if sc.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" {
			sc.SessionExpiryHook()
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, Type: env.ErrorType, Message: env.Message}
	}
	if !env.Status || resp.StatusCode != http.StatusOK {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Type: firstNonEmpty(env.ErrorCode, "status"), Message: env.Message}
	}
	return env.Data, nil
}

// ---- Session ----

// AccessToken returns the current JWT (without the Bearer prefix).
func (sc *SmartConnect) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

// UserID returns the logged-in client code.
func (sc *SmartConnect) UserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

func (sc *SmartConnect) setTokens(jwt, refresh, feed string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if jwt != "" {
		sc.accessToken = jwt
	}
	if refresh != "" {
		sc.refreshToken = refresh
	}
	if feed != "" {
		sc.feedToken = feed
	}
}

type tokenSet struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// GenerateSession logs in with client code, PIN and a current TOTP.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) error {
	data, err := sc.post(ctx, "api.login", map[string]any{"clientcode": clientCode, "password": password, "totp": totp})
	if err != nil {
		return fmt.Errorf("login %s: %w", clientCode, err)
	}
	var ts tokenSet
	if err := json.Unmarshal(data, &ts); err != nil || ts.JWTToken == "" {
		return errors.New("unexpected login response format")
	}
	sc.setTokens(ts.JWTToken, ts.RefreshToken, ts.FeedToken)

	sc.mu.Lock()
	sc.userID = clientCode
	sc.mu.Unlock()
	return nil
}

// RenewAccessToken exchanges the refresh token for a new JWT.
func (sc *SmartConnect) RenewAccessToken(ctx context.Context) error {
	sc.mu.RLock()
	refresh := sc.refreshToken
	sc.mu.RUnlock()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	data, err := sc.post(ctx, "api.token", map[string]any{"refreshToken": refresh})
	if err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	var ts tokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	sc.setTokens(ts.JWTToken, ts.RefreshToken, ts.FeedToken)
	return nil
}

// TerminateSession logs out.
func (sc *SmartConnect) TerminateSession(ctx context.Context) error {
	_, err := sc.post(ctx, "api.logout", map[string]any{"clientcode": sc.UserID()})
	return err
}

// ---- Market data ----

// Candle intervals accepted by getCandleData.
const (
	IntervalOneDay    = "ONE_DAY"
	IntervalOneHour   = "ONE_HOUR"
	IntervalOneMinute = "ONE_MINUTE"
)

// CandleParams selects one historical range.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    string
	From, To    time.Time // interpreted in IST
}

// CandleRow is one OHLCV row as returned by the broker.
type CandleRow struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

var ist = time.FixedZone("IST", 5*3600+1800)

// GetCandleData fetches OHLCV rows, oldest first.
func (sc *SmartConnect) GetCandleData(ctx context.Context, p CandleParams) ([]CandleRow, error) {
	if sc.AccessToken() == "" {
		return nil, ErrNotLoggedIn
	}
	data, err := sc.post(ctx, "api.candle.data", map[string]any{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    p.Interval,
		"fromdate":    p.From.In(ist).Format("2006-01-02 15:04"),
		"todate":      p.To.In(ist).Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, fmt.Errorf("candles %s:%s: %w", p.Exchange, p.SymbolToken, err)
	}
	return parseCandleRows(data)
}

// parseCandleRows decodes [[ts, o, h, l, c, v], ...].
func parseCandleRows(data json.RawMessage) ([]CandleRow, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var raw [][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	out := make([]CandleRow, 0, len(raw))
	for i, r := range raw {
		if len(r) < 6 {
			return nil, fmt.Errorf("candle row %d: want 6 fields, got %d", i, len(r))
		}
		var (
			ts  string
			row CandleRow
			vol float64
		)
		if err := json.Unmarshal(r[0], &ts); err != nil {
			return nil, fmt.Errorf("candle row %d: timestamp: %w", i, err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("candle row %d: %w", i, err)
		}
		row.TS = t
		for j, dst := range []*float64{&row.Open, &row.High, &row.Low, &row.Close, &vol} {
			if err := json.Unmarshal(r[j+1], dst); err != nil {
				return nil, fmt.Errorf("candle row %d field %d: %w", i, j+1, err)
			}
		}
		row.Volume = int64(vol)
		out = append(out, row)
	}
	return out, nil
}

// Scrip is one searchScrip match.
type Scrip struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

// SearchScrip looks up instruments by symbol text.
func (sc *SmartConnect) SearchScrip(ctx context.Context, exchange, query string) ([]Scrip, error) {
	if sc.AccessToken() == "" {
		return nil, ErrNotLoggedIn
	}
	data, err := sc.post(ctx, "api.search.scrip", map[string]any{"exchange": exchange, "searchscrip": query})
	if err != nil {
		return nil, fmt.Errorf("search %s %q: %w", exchange, query, err)
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []Scrip
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode scrips: %w", err)
	}
	return out, nil
}
