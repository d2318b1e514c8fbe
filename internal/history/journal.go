// Package history persists closed trades reported by the trading client to
// SQLite. The strategy layer reads it back to avoid re-entering a direction
// that just lost.
package history

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradesrv/internal/model"
)

// Journal is the closed-trade store. A single mutex serializes writers; the
// database runs in WAL mode.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the SQLite journal database at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS closed_trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol      TEXT NOT NULL,
		action      TEXT NOT NULL,
		profit      REAL NOT NULL,
		closed_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol, closed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[history] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordClosedTrade persists a completed trade.
func (j *Journal) RecordClosedTrade(t model.ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO closed_trades (symbol, action, profit, closed_at) VALUES (?, ?, ?, ?)`,
		t.Symbol,
		string(t.Action),
		t.Profit,
		t.ClosedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LastClosedTrade returns the most recently closed trade for symbol, or nil
// when none is on record.
func (j *Journal) LastClosedTrade(symbol string) (*model.ClosedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := j.db.QueryRow(
		`SELECT id, symbol, action, profit, closed_at
		 FROM closed_trades WHERE symbol = ? ORDER BY closed_at DESC, id DESC LIMIT 1`, symbol)

	var t model.ClosedTrade
	var action, closedAt string
	err := row.Scan(&t.ID, &t.Symbol, &action, &t.Profit, &closedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Action = model.Action(action)
	if ts, perr := time.Parse(time.RFC3339, closedAt); perr == nil {
		t.ClosedAt = ts
	}
	return &t, nil
}

// RecentTrades returns the last limit closed trades for symbol, newest
// first.
func (j *Journal) RecentTrades(symbol string, limit int) ([]model.ClosedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, action, profit, closed_at
		 FROM closed_trades WHERE symbol = ? ORDER BY closed_at DESC, id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.ClosedTrade
	for rows.Next() {
		var t model.ClosedTrade
		var action, closedAt string
		if err := rows.Scan(&t.ID, &t.Symbol, &action, &t.Profit, &closedAt); err != nil {
			continue
		}
		t.Action = model.Action(action)
		if ts, perr := time.Parse(time.RFC3339, closedAt); perr == nil {
			t.ClosedAt = ts
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
