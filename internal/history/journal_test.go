package history

import (
	"path/filepath"
	"testing"
	"time"

	"tradesrv/internal/model"
	"tradesrv/internal/strategy"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLastClosedTradeEmpty(t *testing.T) {
	j := testJournal(t)
	trade, err := j.LastClosedTrade("EURUSD")
	if err != nil {
		t.Fatalf("LastClosedTrade: %v", err)
	}
	if trade != nil {
		t.Errorf("empty journal returned trade %+v, want nil", trade)
	}
}

func TestRecordAndLastClosedTrade(t *testing.T) {
	j := testJournal(t)
	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	trades := []model.ClosedTrade{
		{Symbol: "EURUSD", Action: model.ActionBuy, Profit: -10.5, ClosedAt: base},
		{Symbol: "EURUSD", Action: model.ActionSell, Profit: 4.2, ClosedAt: base.Add(time.Hour)},
		{Symbol: "GBPUSD", Action: model.ActionBuy, Profit: 1.0, ClosedAt: base.Add(2 * time.Hour)},
	}
	for _, tr := range trades {
		if err := j.RecordClosedTrade(tr); err != nil {
			t.Fatalf("RecordClosedTrade(%+v): %v", tr, err)
		}
	}

	last, err := j.LastClosedTrade("EURUSD")
	if err != nil {
		t.Fatalf("LastClosedTrade: %v", err)
	}
	if last == nil {
		t.Fatal("no trade returned")
	}
	if last.Action != model.ActionSell || last.Profit != 4.2 {
		t.Errorf("last trade = %+v, want the SELL at +4.2", last)
	}
	if !last.ClosedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("closed_at = %s, want %s", last.ClosedAt, base.Add(time.Hour))
	}
	if !last.Won() {
		t.Error("trade with positive profit should report Won")
	}
}

func TestRecentTrades(t *testing.T) {
	j := testJournal(t)
	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tr := model.ClosedTrade{
			Symbol:   "EURUSD",
			Action:   model.ActionBuy,
			Profit:   float64(i) - 2,
			ClosedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := j.RecordClosedTrade(tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.RecentTrades("EURUSD", 3)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("returned %d trades, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ClosedAt.After(got[i-1].ClosedAt) {
			t.Error("trades not ordered newest first")
		}
	}
	if got[0].Profit != 2 {
		t.Errorf("newest trade profit = %v, want 2", got[0].Profit)
	}

	if other, _ := j.RecentTrades("USDJPY", 10); len(other) != 0 {
		t.Errorf("unknown symbol returned %d trades", len(other))
	}
}

// The journal must satisfy the strategy history surface.
var _ strategy.TradeHistory = (*Journal)(nil)
