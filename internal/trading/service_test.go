package trading

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tradesrv/internal/buffer"
	"tradesrv/internal/markethours"
	"tradesrv/internal/model"
	"tradesrv/internal/predictor"
)

type capturePublisher struct {
	mu   sync.Mutex
	sigs []model.Signal
}

func (p *capturePublisher) PublishSignal(ctx context.Context, sig model.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sigs = append(p.sigs, sig)
	return nil
}

func (p *capturePublisher) published() []model.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Signal(nil), p.sigs...)
}

// newTestService builds a service with a wall-clock-independent buffer
// policy: the closed-market divisor is 1 so capacity does not depend on
// when the test runs.
func newTestService(t *testing.T, pub SignalPublisher) *Service {
	t.Helper()
	dir := t.TempDir()

	bufCfg := buffer.DefaultConfig(filepath.Join(dir, "data"))
	bufCfg.LiveCapacity = 2000
	bufCfg.ClosedDivisor = 1
	bufCfg.BackupInterval = 0

	cfg := DefaultConfig(filepath.Join(dir, "models"))
	cfg.Symbols = []string{"EURUSD"}

	return NewService(cfg, Deps{
		BufferConfig: bufCfg,
		Calendar:     markethours.Default(time.UTC),
		Publisher:    pub,
	})
}

func feedBars(t *testing.T, s *Service, symbol string, n int) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	price := 1.1000
	for i := 0; i < n; i++ {
		open := price
		price += (rng.Float64() - 0.5) * 0.0004
		bar := model.Bar{
			Symbol: symbol,
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, price) + 0.0002,
			Low:    math.Min(open, price) - 0.0002,
			Close:  price,
			Volume: int64(50 + rng.Intn(100)),
		}
		if _, err := s.Ingest(symbol, bar); err != nil {
			t.Fatalf("Ingest bar %d: %v", i, err)
		}
	}
}

func TestIngestRejectsInvalidBar(t *testing.T) {
	s := newTestService(t, nil)
	bad := model.Bar{Symbol: "EURUSD", Time: time.Now()}
	if _, err := s.Ingest("EURUSD", bad); err == nil {
		t.Error("Ingest(invalid bar) = nil error, want validation error")
	}
}

func TestSignalInsufficientData(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 10)

	sig := s.Signal(context.Background(), "EURUSD")
	if sig.Action != model.ActionHold {
		t.Errorf("signal = %s, want HOLD", sig.Action)
	}
	if !strings.Contains(sig.Reason, "insufficient data") {
		t.Errorf("reason = %q, want insufficient data message", sig.Reason)
	}
}

func TestSignalModelNotLoaded(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 150)

	sig := s.Signal(context.Background(), "EURUSD")
	if sig.Action != model.ActionHold || sig.Reason != "model not loaded" {
		t.Errorf("signal = %s %q, want HOLD with model not loaded", sig.Action, sig.Reason)
	}
}

func TestSignalLazyModelLoad(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 600)

	// Drop an artifact in after startup: the next signal query picks it up.
	m := predictor.NewLinearModel("EURUSD")
	if err := m.Train(s.Latest("EURUSD", 600)); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if err := m.Save(predictor.ModelPath(s.cfg.ModelDir, "EURUSD")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sig := s.Signal(context.Background(), "EURUSD")
	if sig.Reason == "model not loaded" {
		t.Fatal("artifact on disk was not lazily loaded")
	}
	if !s.Status("EURUSD").ModelLoaded {
		t.Error("status should report the lazily loaded model")
	}
}

func TestRetrainInsufficientData(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 100)

	if _, err := s.Retrain("EURUSD"); !errors.Is(err, model.ErrInsufficientData) {
		t.Errorf("Retrain(100 bars) error = %v, want ErrInsufficientData", err)
	}
	if s.Status("EURUSD").ModelLoaded {
		t.Error("failed retrain must not install a model")
	}
}

func TestRetrainAndSignal(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestService(t, pub)
	feedBars(t, s, "EURUSD", 600)

	n, err := s.Retrain("EURUSD")
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if n != 600 {
		t.Errorf("retrained on %d bars, want 600", n)
	}
	if _, err := os.Stat(predictor.ModelPath(s.cfg.ModelDir, "EURUSD")); err != nil {
		t.Errorf("model artifact not written: %v", err)
	}

	sig := s.Signal(context.Background(), "EURUSD")
	switch sig.Action {
	case model.ActionBuy, model.ActionSell, model.ActionHold:
	default:
		t.Fatalf("unexpected action %q", sig.Action)
	}
	if sig.Symbol != "EURUSD" {
		t.Errorf("signal symbol = %q, want EURUSD", sig.Symbol)
	}

	if got := pub.published(); len(got) != 1 {
		t.Errorf("published %d signals, want 1", len(got))
	}

	st := s.Status("EURUSD")
	if !st.ModelLoaded {
		t.Error("status should report a loaded model after retrain")
	}
	if st.LastSignal != sig.Action {
		t.Errorf("status last signal = %s, want %s", st.LastSignal, sig.Action)
	}
	if st.LastSignalAt == nil {
		t.Error("status should carry the last signal time")
	}
}

func TestPredict(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 600)

	if _, _, _, err := s.Predict("EURUSD"); !errors.Is(err, model.ErrModelNotLoaded) {
		t.Errorf("Predict without model: error = %v, want ErrModelNotLoaded", err)
	}

	if _, err := s.Retrain("EURUSD"); err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	current, predicted, confidence, err := s.Predict("EURUSD")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if current <= 0 || predicted <= 0 {
		t.Errorf("prices = (%v, %v), want positive", current, predicted)
	}
	if confidence < 0.5 || confidence > 0.95 {
		t.Errorf("confidence %v outside [0.5, 0.95]", confidence)
	}

	if _, _, _, err := s.Predict("GBPUSD"); !errors.Is(err, model.ErrInsufficientData) {
		t.Errorf("Predict on empty symbol: error = %v, want ErrInsufficientData", err)
	}
}

func TestRuleSignal(t *testing.T) {
	s := newTestService(t, nil)

	if _, err := s.RuleSignal(context.Background(), "EURUSD", ""); !errors.Is(err, model.ErrInsufficientData) {
		t.Errorf("RuleSignal on empty buffer: error = %v, want ErrInsufficientData", err)
	}

	feedBars(t, s, "EURUSD", 60)
	ev, err := s.RuleSignal(context.Background(), "EURUSD", "")
	if err != nil {
		t.Fatalf("RuleSignal: %v", err)
	}
	if ev.Reason == "" {
		t.Error("evaluation reason should be populated")
	}
	if ev.Price <= 0 {
		t.Errorf("evaluation price = %v, want positive", ev.Price)
	}
}

func TestRuleSignalPublishesConfidence(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestService(t, pub)

	// Range-bound closes with a dip to the bottom of the recent range at the
	// end: ADX stays low (BOX) and %K lands in oversold territory, so the
	// rule path emits a BUY.
	pattern := []float64{1.1000, 1.1002, 1.1004, 1.1002}
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = pattern[i%4]
	}
	closes[56], closes[57], closes[58], closes[59] = 1.1001, 1.1000, 1.0999, 1.0999

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	prev := closes[0]
	for i, c := range closes {
		bar := model.Bar{
			Symbol: "EURUSD",
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   prev,
			High:   math.Max(prev, c) + 0.00001,
			Low:    math.Min(prev, c) - 0.00001,
			Close:  c,
			Volume: 100,
		}
		if _, err := s.Ingest("EURUSD", bar); err != nil {
			t.Fatalf("Ingest bar %d: %v", i, err)
		}
		prev = c
	}

	ev, err := s.RuleSignal(context.Background(), "EURUSD", "")
	if err != nil {
		t.Fatalf("RuleSignal: %v", err)
	}
	if ev.Signal != model.ActionBuy {
		t.Fatalf("signal = %s (regime %s, k=%.1f, adx=%.1f), want BUY", ev.Signal, ev.Regime, ev.K, ev.ADX)
	}

	got := pub.published()
	if len(got) != 1 {
		t.Fatalf("published %d signals, want 1", len(got))
	}
	sig := got[0]
	if sig.Action != model.ActionBuy || sig.Symbol != "EURUSD" {
		t.Errorf("published signal = %s %s, want EURUSD BUY", sig.Symbol, sig.Action)
	}
	if sig.Confidence < 0.5 || sig.Confidence > 0.95 {
		t.Errorf("published confidence %v outside [0.5, 0.95]", sig.Confidence)
	}
	if sig.CurrentPrice != closes[59] {
		t.Errorf("published price = %v, want %v", sig.CurrentPrice, closes[59])
	}
}

func TestBackupWritesSnapshot(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 50)

	if err := s.Backup("EURUSD"); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	snap := filepath.Join(s.deps.BufferConfig.DataDir, "EURUSD", "current.csv")
	if _, err := os.Stat(snap); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	results := s.BackupAll()
	if err, ok := results["EURUSD"]; !ok || err != nil {
		t.Errorf("BackupAll[EURUSD] = (%v, %v), want nil error", err, ok)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 120)

	h := s.HealthCheck()
	if h.Status != "healthy" {
		t.Errorf("status = %q, want healthy", h.Status)
	}
	if h.TotalDataPoints != 120 {
		t.Errorf("total data points = %d, want 120", h.TotalDataPoints)
	}
	if len(h.ActiveSymbols) != 1 || h.ActiveSymbols[0] != "EURUSD" {
		t.Errorf("active symbols = %v, want [EURUSD]", h.ActiveSymbols)
	}
	if h.SymbolsWithModels != 0 {
		t.Errorf("symbols with models = %d, want 0", h.SymbolsWithModels)
	}
}

func TestStatusBollinger(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 5)
	if st := s.Status("EURUSD"); st.Bollinger != nil {
		t.Error("Bollinger should be nil below 20 bars")
	}

	feedBars2 := func(n int) {
		rng := rand.New(rand.NewSource(7))
		base := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
		price := 1.2
		for i := 0; i < n; i++ {
			open := price
			price += (rng.Float64() - 0.5) * 0.0004
			bar := model.Bar{
				Symbol: "EURUSD",
				Time:   base.Add(time.Duration(i) * time.Minute),
				Open:   open,
				High:   math.Max(open, price) + 0.0002,
				Low:    math.Min(open, price) - 0.0002,
				Close:  price,
				Volume: 100,
			}
			if _, err := s.Ingest("EURUSD", bar); err != nil {
				t.Fatal(err)
			}
		}
	}
	feedBars2(30)

	st := s.Status("EURUSD")
	if st.Bollinger == nil {
		t.Fatal("Bollinger missing with 35 bars buffered")
	}
	if st.Bollinger.Upper < st.Bollinger.Middle || st.Bollinger.Middle < st.Bollinger.Lower {
		t.Errorf("band ordering violated: %+v", st.Bollinger)
	}
	if st.Buffer.CurrentSize != 35 {
		t.Errorf("buffer size = %d, want 35", st.Buffer.CurrentSize)
	}
}

func TestSnapshotRecoveryOnStartup(t *testing.T) {
	dir := t.TempDir()
	bufCfg := buffer.DefaultConfig(filepath.Join(dir, "data"))
	bufCfg.LiveCapacity = 2000
	bufCfg.ClosedDivisor = 1
	bufCfg.BackupInterval = 0
	cfg := DefaultConfig(filepath.Join(dir, "models"))
	cfg.Symbols = []string{"EURUSD"}
	deps := Deps{BufferConfig: bufCfg, Calendar: markethours.Default(time.UTC)}

	s := NewService(cfg, deps)
	feedBars(t, s, "EURUSD", 80)
	if err := s.Backup("EURUSD"); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	// A fresh service over the same data dir recovers the snapshot.
	s2 := NewService(cfg, deps)
	if got := len(s2.Latest("EURUSD", 200)); got != 80 {
		t.Errorf("recovered %d bars, want 80", got)
	}
}

func TestMaintenanceRetrainPoint(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 500)

	m := NewMaintenance(s)
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !s.Status("EURUSD").ModelLoaded {
		t.Error("maintenance pass at 500 bars should have trained a model")
	}
}

func TestMaintenanceSkipsOffStep(t *testing.T) {
	s := newTestService(t, nil)
	feedBars(t, s, "EURUSD", 550)

	m := NewMaintenance(s)
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s.Status("EURUSD").ModelLoaded {
		t.Error("550 bars is not a retrain point with step 100")
	}
}

func TestMaintenanceHonorsContext(t *testing.T) {
	s := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMaintenance(s).RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce(cancelled ctx) = %v, want context.Canceled", err)
	}
}
