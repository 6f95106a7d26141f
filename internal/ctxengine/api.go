package ctxengine

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"marketcontext/internal/enrich"
	"marketcontext/internal/logger"
	"marketcontext/internal/model"
)

// Handler returns the service's HTTP routes.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", svc.handleSnapshot)
	mux.HandleFunc("/levels", svc.handleLevels)
	mux.HandleFunc("/refresh", svc.handleRefresh)
	mux.Handle("/healthz", svc.Health)
	mux.Handle("/metrics", svc.Metrics.Handler())
	if svc.Hub != nil {
		mux.Handle("/ws", svc.Hub)
	}
	return mux
}

// instrumentQuery reads exchange and token plus per-request option overrides.
func (svc *Service) instrumentQuery(r *http.Request) (exchange, token string, opts enrich.Options, err error) {
	q := r.URL.Query()
	exchange = strings.ToUpper(strings.TrimSpace(q.Get("exchange")))
	token = strings.TrimSpace(q.Get("token"))
	if exchange == "" || token == "" {
		return "", "", opts, errors.New("exchange and token are required")
	}

	opts = svc.cfg.Options
	if v := q.Get("swing_threshold"); v != "" {
		if opts.SwingThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			return "", "", opts, errors.New("swing_threshold: not a number")
		}
	}
	if v := q.Get("include_series"); v != "" {
		if opts.IncludeSeries, err = strconv.ParseBool(v); err != nil {
			return "", "", opts, errors.New("include_series: not a boolean")
		}
	}
	return exchange, token, opts, opts.Validate()
}

// handleSnapshot serves GET /snapshot?exchange=NSE&token=2885[&include_series=true][&cached=true].
func (svc *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	exchange, token, opts, err := svc.instrumentQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(exchange+":"+token, svc.now()))

	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
		snap, err := svc.Cached(ctx, exchange, token)
		switch {
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		case snap == nil:
			writeError(w, http.StatusNotFound, errors.New("no snapshot for "+exchange+":"+token))
		default:
			writeJSON(w, http.StatusOK, snap)
		}
		return
	}

	snap, err := svc.Snapshot(ctx, exchange, token, opts)
	if err != nil {
		slog.InfoContext(ctx, "snapshot failed", append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleLevels serves GET /levels?exchange=NSE&token=2885[&swing_threshold=0.05].
func (svc *Service) handleLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	exchange, token, opts, err := svc.instrumentQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rep, err := svc.Levels(r.Context(), exchange, token, opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleRefresh runs a watchlist refresh synchronously (POST /refresh).
func (svc *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	rep, err := svc.Refresh(r.Context())
	if err != nil {
		log.Printf("[ctxengine] manual refresh: %v", err)
		writeJSON(w, http.StatusMultiStatus, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, enrich.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientData), errors.Is(err, model.ErrMalformedCandle):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ctxengine] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
