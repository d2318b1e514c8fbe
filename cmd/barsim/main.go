// cmd/barsim — Demo bar generator.
// Produces random-walk OHLCV bars for testing tradesrv without a live
// trading terminal: bars are POSTed to a running server's /tick endpoint
// and broadcast over WebSocket for anything that wants a feed.
//
// Bar JSON shape matches the /tick request:
//
//	{"symbol":"EURUSD","datetime":"2026-08-30 12:00:00","open":1.1,...}
//
// Config (env vars):
//
//	BARSIM_ADDR         — listen address for the WS feed (default: ":9001")
//	BARSIM_TARGET       — tradesrv base URL to POST bars to (default: "http://localhost:5000")
//	BARSIM_SYMBOLS      — comma-separated SYMBOL:STARTPRICE pairs (default: "EURUSD:1.1000")
//	BARSIM_INTERVAL_MS  — bar interval milliseconds (default: "1000")
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// barMsg mirrors the tradesrv /tick request body.
type barMsg struct {
	Symbol   string  `json:"symbol"`
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop bar
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[barsim] upgrade error: %v", err)
			return
		}
		log.Printf("[barsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[barsim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Bar generator ────────────────────────────────────────────────────────────

// nextBar walks the price ±0.1% and wraps it in an OHLCV bar with a small
// simulated range.
func nextBar(inst *instrument, now time.Time, rng *rand.Rand) barMsg {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	open := inst.Price
	close := open * (1 + pct)
	high := close
	if open > close {
		high = open
	}
	high *= 1 + rng.Float64()*0.0005
	low := close
	if open < close {
		low = open
	}
	low *= 1 - rng.Float64()*0.0005
	inst.Price = close

	return barMsg{
		Symbol:   inst.Symbol,
		Datetime: now.UTC().Format("2006-01-02 15:04:05"),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   int64(rng.Intn(900) + 100),
	}
}

func postBar(client *http.Client, target string, b []byte) {
	resp, err := client.Post(target+"/tick", "application/json", bytes.NewReader(b))
	if err != nil {
		log.Printf("[barsim] POST /tick failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[barsim] POST /tick status %d", resp.StatusCode)
	}
}

func runGenerator(h *hub, target string, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := &http.Client{Timeout: 5 * time.Second}

	for now := range ticker.C {
		for i := range instruments {
			bar := nextBar(&instruments[i], now, rng)
			b, err := json.Marshal(bar)
			if err != nil {
				continue
			}
			h.broadcast(b)
			if target != "" {
				postBar(client, target, b)
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[barsim] starting demo bar generator...")

	addr := envOrDefault("BARSIM_ADDR", ":9001")
	target := envOrDefault("BARSIM_TARGET", "http://localhost:5000")
	symbolsEnv := envOrDefault("BARSIM_SYMBOLS", "EURUSD:1.1000")
	intervalMs := envIntOrDefault("BARSIM_INTERVAL_MS", 1000)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[barsim] no symbols configured via BARSIM_SYMBOLS")
	}
	log.Printf("[barsim] symbols: %+v", instruments)
	log.Printf("[barsim] bar interval: %dms, target: %s", intervalMs, target)

	h := newHub()
	go runGenerator(h, target, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"barsim"}`)
	})

	log.Printf("[barsim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[barsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		symbol := strings.TrimSpace(seg[0])
		if symbol == "" {
			continue
		}
		price := 1.1000
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(seg[1], 64); err == nil && p > 0 {
				price = p
			} else {
				log.Printf("[barsim] invalid start price in %q, using %.4f", part, price)
			}
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
