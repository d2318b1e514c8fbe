// Package api exposes the HTTP surface polled by the trading client: bar
// ingestion, signal queries, retrain and backup triggers, and diagnostics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradesrv/internal/history"
	"tradesrv/internal/metrics"
	"tradesrv/internal/model"
	"tradesrv/internal/trading"
)

const maxLatestCount = 100

// Server wires the trading service to HTTP handlers. Journal may be nil
// when no trade history database is configured.
type Server struct {
	svc     *trading.Service
	m       *metrics.Metrics
	journal *history.Journal
}

// NewServer creates the handler set around an injected service.
func NewServer(svc *trading.Service, m *metrics.Metrics, journal *history.Journal) *Server {
	return &Server{svc: svc, m: m, journal: journal}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/tick", s.handleTick)
	mux.HandleFunc("/signal/", s.handleSignal)
	mux.HandleFunc("/predict/", s.handlePredict)
	mux.HandleFunc("/retrain/", s.handleRetrain)
	mux.HandleFunc("/status", s.handleStatusAll)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/data/", s.handleLatestData)
	mux.HandleFunc("/backup/", s.handleBackup)
	mux.HandleFunc("/trades/", s.handleTrades)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// writeJSON encodes v with the given status and counts the request.
func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] %s: encode response: %v", endpoint, err)
	}
	if s.m != nil {
		s.m.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, code int, msg string) {
	s.writeJSON(w, endpoint, code, map[string]string{"error": msg})
}

// pathSymbol extracts the trailing symbol from prefix-routed paths like
// /signal/EURUSD.
func pathSymbol(r *http.Request, prefix string) string {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(rest, "/")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "/health", http.StatusOK, s.svc.HealthCheck())
}

// handleHealthz is the bare liveness probe for orchestrators.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// tickRequest is the ingestion payload. The trading client sends the bar
// timestamp in the "datetime" field as "2006-01-02 15:04:05"; RFC3339 is
// accepted too.
type tickRequest struct {
	Symbol   string  `json:"symbol"`
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

func parseBarTime(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, "/tick", http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req tickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "/tick", http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Symbol == "" {
		s.writeError(w, "/tick", http.StatusBadRequest, "symbol is required")
		return
	}
	ts, err := parseBarTime(req.Datetime)
	if err != nil {
		s.writeError(w, "/tick", http.StatusBadRequest, err.Error())
		return
	}

	bar := model.Bar{
		Symbol: req.Symbol,
		Time:   ts,
		Open:   req.Open,
		High:   req.High,
		Low:    req.Low,
		Close:  req.Close,
		Volume: req.Volume,
	}
	res, err := s.svc.Ingest(req.Symbol, bar)
	if err != nil {
		s.writeError(w, "/tick", http.StatusBadRequest, err.Error())
		return
	}

	status := "success"
	if !res.Accepted {
		status = "rejected"
	}
	s.writeJSON(w, "/tick", http.StatusOK, map[string]interface{}{
		"status":      status,
		"symbol":      req.Symbol,
		"buffer_size": s.svc.Status(req.Symbol).Buffer.CurrentSize,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSignal serves the model-based decision by default; ?mode=rules runs
// the regime/stochastic rule path, with ?position=BUY|SELL enabling the
// exit check for an open position.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r, "/signal/")
	if symbol == "" {
		s.writeError(w, "/signal", http.StatusBadRequest, "symbol is required")
		return
	}

	if r.URL.Query().Get("mode") == "rules" {
		position := model.Action(strings.ToUpper(r.URL.Query().Get("position")))
		ev, err := s.svc.RuleSignal(r.Context(), symbol, position)
		if err != nil {
			if errors.Is(err, model.ErrInsufficientData) {
				s.writeError(w, "/signal", http.StatusBadRequest, err.Error())
				return
			}
			s.writeError(w, "/signal", http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, "/signal", http.StatusOK, ev)
		return
	}

	sig := s.svc.Signal(r.Context(), symbol)
	s.writeJSON(w, "/signal", http.StatusOK, map[string]interface{}{
		"symbol":          symbol,
		"signal":          sig.Action,
		"confidence":      round3(sig.Confidence),
		"predicted_price": roundPtr(sig.PredictedPrice),
		"current_price":   round5(sig.CurrentPrice),
		"message":         sig.Reason,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r, "/predict/")
	if symbol == "" {
		s.writeError(w, "/predict", http.StatusBadRequest, "symbol is required")
		return
	}
	current, predicted, confidence, err := s.svc.Predict(symbol)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) || errors.Is(err, model.ErrModelNotLoaded) {
			s.writeError(w, "/predict", http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, "/predict", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, "/predict", http.StatusOK, map[string]interface{}{
		"symbol":           symbol,
		"current_price":    round5(current),
		"predicted_price":  round5(predicted),
		"price_change":     round5(predicted - current),
		"price_change_pct": round3((predicted - current) / current * 100),
		"confidence":       round3(confidence),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, "/retrain", http.StatusMethodNotAllowed, "POST required")
		return
	}
	symbol := pathSymbol(r, "/retrain/")
	if symbol == "" {
		s.writeError(w, "/retrain", http.StatusBadRequest, "symbol is required")
		return
	}
	used, err := s.svc.Retrain(symbol)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, model.ErrInsufficientData) {
			code = http.StatusBadRequest
		}
		s.writeJSON(w, "/retrain", code, map[string]interface{}{
			"status":  "error",
			"symbol":  symbol,
			"message": err.Error(),
		})
		return
	}
	s.writeJSON(w, "/retrain", http.StatusOK, map[string]interface{}{
		"status":           "success",
		"symbol":           symbol,
		"message":          "model retrained successfully",
		"data_points_used": used,
	})
}

func (s *Server) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "/status", http.StatusOK, s.svc.StatusAll())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r, "/status/")
	if symbol == "" {
		s.handleStatusAll(w, r)
		return
	}
	s.writeJSON(w, "/status", http.StatusOK, s.svc.Status(symbol))
}

// handleLatestData serves GET /data/{symbol}/latest?count=N.
func (s *Server) handleLatestData(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/data/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "latest" || parts[0] == "" {
		s.writeError(w, "/data", http.StatusNotFound, "use /data/{symbol}/latest")
		return
	}
	symbol := parts[0]

	count := 10
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	if count > maxLatestCount {
		count = maxLatestCount
	}

	bars := s.svc.Latest(symbol, count)
	s.writeJSON(w, "/data", http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"data":   bars,
		"count":  len(bars),
	})
}

// handleBackup serves POST /backup/{symbol} and POST /backup/all.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, "/backup", http.StatusMethodNotAllowed, "POST required")
		return
	}
	target := pathSymbol(r, "/backup/")
	if target == "" {
		s.writeError(w, "/backup", http.StatusBadRequest, "use /backup/{symbol} or /backup/all")
		return
	}

	if target == "all" {
		results := s.svc.BackupAll()
		out := make(map[string]string, len(results))
		failed := 0
		for sym, err := range results {
			if err != nil {
				out[sym] = err.Error()
				failed++
			} else {
				out[sym] = "ok"
			}
		}
		code := http.StatusOK
		if failed > 0 {
			code = http.StatusInternalServerError
		}
		s.writeJSON(w, "/backup", code, map[string]interface{}{
			"status":  "done",
			"results": out,
			"failed":  failed,
		})
		return
	}

	if err := s.svc.Backup(target); err != nil {
		s.writeError(w, "/backup", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, "/backup", http.StatusOK, map[string]interface{}{
		"status":      "success",
		"symbol":      target,
		"buffer_size": s.svc.Status(target).Buffer.CurrentSize,
	})
}

// tradeRequest reports one closed trade from the trading client. It feeds
// the losing-direction guard of the rule engine.
type tradeRequest struct {
	Action   string  `json:"action"`
	Profit   float64 `json:"profit"`
	ClosedAt string  `json:"closed_at"`
}

// handleTrades serves POST /trades/{symbol} (record a closed trade) and
// GET /trades/{symbol}?count=N.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r, "/trades/")
	if symbol == "" {
		s.writeError(w, "/trades", http.StatusBadRequest, "symbol is required")
		return
	}
	if s.journal == nil {
		s.writeError(w, "/trades", http.StatusServiceUnavailable, "trade history disabled")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req tradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, "/trades", http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		action := model.Action(strings.ToUpper(req.Action))
		if action != model.ActionBuy && action != model.ActionSell {
			s.writeError(w, "/trades", http.StatusBadRequest, "action must be BUY or SELL")
			return
		}
		closedAt := time.Now().UTC()
		if req.ClosedAt != "" {
			ts, err := parseBarTime(req.ClosedAt)
			if err != nil {
				s.writeError(w, "/trades", http.StatusBadRequest, err.Error())
				return
			}
			closedAt = ts
		}
		trade := model.ClosedTrade{Symbol: symbol, Action: action, Profit: req.Profit, ClosedAt: closedAt}
		if err := s.journal.RecordClosedTrade(trade); err != nil {
			s.writeError(w, "/trades", http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, "/trades", http.StatusOK, map[string]string{"status": "recorded"})

	case http.MethodGet:
		count := 20
		if v := r.URL.Query().Get("count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLatestCount {
				count = n
			}
		}
		trades, err := s.journal.RecentTrades(symbol, count)
		if err != nil {
			s.writeError(w, "/trades", http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, "/trades", http.StatusOK, map[string]interface{}{
			"symbol": symbol,
			"trades": trades,
			"count":  len(trades),
		})

	default:
		s.writeError(w, "/trades", http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func round3(v float64) float64 { return roundTo(v, 1000) }
func round5(v float64) float64 { return roundTo(v, 100000) }

func roundTo(v, scale float64) float64 {
	return float64(int64(v*scale+copySignHalf(v))) / scale
}

func copySignHalf(v float64) float64 {
	if v < 0 {
		return -0.5
	}
	return 0.5
}

func roundPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return round5(*v)
}
