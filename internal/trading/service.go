// Package trading owns the per-symbol state and routes every operation the
// HTTP layer exposes: bar ingestion, signal queries, retraining, backups and
// diagnostics. One Service instance is constructed in main and injected into
// the API handlers.
package trading

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradesrv/internal/buffer"
	"tradesrv/internal/indicator"
	"tradesrv/internal/markethours"
	"tradesrv/internal/metrics"
	"tradesrv/internal/model"
	"tradesrv/internal/notify"
	"tradesrv/internal/predictor"
	"tradesrv/internal/strategy"
)

// Config holds the service-level policy knobs.
type Config struct {
	ModelDir string
	Symbols  []string // default symbol set, pre-created at startup

	SignalWindow  int // bars requested for a signal query
	MinSignalBars int // floor below which a signal query degrades to HOLD

	MaintenanceInterval time.Duration
	ErrorCooldown       time.Duration
	RetrainStep         int // auto-retrain when size is a multiple of this
}

// DefaultConfig returns the reference service policy.
func DefaultConfig(modelDir string) Config {
	return Config{
		ModelDir:            modelDir,
		SignalWindow:        200,
		MinSignalBars:       100,
		MaintenanceInterval: 300 * time.Second,
		ErrorCooldown:       60 * time.Second,
		RetrainStep:         100,
	}
}

// SignalPublisher is the optional downstream fan-out for produced signals.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig model.Signal) error
}

// Deps carries the service collaborators. Publisher and History may be nil.
type Deps struct {
	BufferConfig buffer.Config
	Calendar     markethours.Calendar
	Metrics      *metrics.Metrics
	Notifier     notify.Notifier
	Publisher    SignalPublisher
	History      strategy.TradeHistory
}

// symbolState is the single per-symbol record: the buffer plus the model
// and last-signal diagnostics, guarded by one mutex so the parallel maps of
// the old design cannot skew.
type symbolState struct {
	buf *buffer.SymbolBuffer

	trainMu sync.Mutex // serializes retrains for this symbol

	mu             sync.Mutex
	model          *predictor.LinearModel // nil until trained or loaded
	lastSignal     model.Action
	lastConfidence float64
	lastPrediction *float64
	lastSignalAt   time.Time
}

func (st *symbolState) modelLoaded() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.model != nil
}

// Service routes per-symbol operations. Safe for concurrent use.
type Service struct {
	cfg  Config
	deps Deps

	rules    *strategy.Evaluator
	rulePred *strategy.RulePredictor

	mu      sync.RWMutex
	symbols map[string]*symbolState

	started time.Time
}

// NewService builds the service, pre-creates buffers for the default symbol
// set, recovers their snapshots, and attempts a model auto-load per symbol
// (per-symbol artifact first, shared fallback second).
func NewService(cfg Config, deps Deps) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier()
	}
	s := &Service{
		cfg:     cfg,
		deps:    deps,
		rules:   strategy.NewEvaluator(strategy.DefaultConfig(), deps.History),
		symbols: make(map[string]*symbolState),
		started: time.Now(),
	}
	s.rulePred = strategy.NewRulePredictor(s.rules)
	for _, sym := range cfg.Symbols {
		st := s.state(sym)
		if n, err := st.buf.LoadCurrent(); err != nil {
			log.Printf("[trading] %s: snapshot recovery failed: %v", sym, err)
		} else if n > 0 {
			log.Printf("[trading] %s: recovered %d bars from snapshot", sym, n)
		}
		if m, err := predictor.LoadForSymbol(cfg.ModelDir, sym); err == nil {
			st.mu.Lock()
			st.model = m
			st.mu.Unlock()
			s.setModelGauge(sym, true)
			log.Printf("[trading] %s: loaded model artifact (trained %s, %d samples)",
				sym, m.TrainedAt.Format(time.RFC3339), m.Samples)
		} else {
			log.Printf("[trading] %s: no model artifact, training needed", sym)
		}
	}
	return s
}

// state returns the symbol's record, creating it on first use.
func (s *Service) state(symbol string) *symbolState {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{buf: buffer.New(symbol, s.deps.BufferConfig, s.deps.Calendar)}
	s.symbols[symbol] = st
	return st
}

// Symbols returns the known symbols in no particular order.
func (s *Service) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Ingest admits one bar into the symbol's buffer.
func (s *Service) Ingest(symbol string, bar model.Bar) (buffer.AdmitResult, error) {
	bar.Symbol = symbol
	st := s.state(symbol)
	res, err := st.buf.Admit(bar)

	m := s.deps.Metrics
	if m != nil {
		switch {
		case err != nil:
			m.BarsRejected.WithLabelValues(symbol, "validation").Inc()
		case !res.Accepted:
			m.BarsRejected.WithLabelValues(symbol, "duplicate_streak").Inc()
		case res.Duplicate:
			m.DuplicatesHeld.WithLabelValues(symbol).Inc()
			m.BarsIngested.WithLabelValues(symbol).Inc()
		default:
			m.BarsIngested.WithLabelValues(symbol).Inc()
		}
		if res.Evicted > 0 {
			m.ArchivesTotal.WithLabelValues(symbol).Inc()
			m.BarsArchived.WithLabelValues(symbol).Add(float64(res.Evicted))
		}
		if res.BackedUp {
			m.BackupsTotal.WithLabelValues(symbol).Inc()
		}
		m.BufferSize.WithLabelValues(symbol).Set(float64(st.buf.Len()))
		if res.MarketOpen {
			m.MarketState.Set(1)
		} else {
			m.MarketState.Set(0)
		}
	}
	return res, err
}

// Signal produces the model-based decision for the symbol. Every failure
// mode degrades to HOLD with an explanatory message; the HTTP layer never
// sees an error from this path.
func (s *Service) Signal(ctx context.Context, symbol string) model.Signal {
	st := s.state(symbol)

	window := st.buf.Window(s.cfg.SignalWindow)
	if len(window) < s.cfg.MinSignalBars {
		return model.Hold(symbol, fmt.Sprintf("insufficient data: %d of %d bars", len(window), s.cfg.MinSignalBars))
	}
	currentPrice := window[len(window)-1].Close

	st.mu.Lock()
	m := st.model
	st.mu.Unlock()
	if m == nil {
		// Lazy reload: an artifact may have appeared since startup.
		loaded, err := predictor.LoadForSymbol(s.cfg.ModelDir, symbol)
		if err != nil {
			return model.Hold(symbol, "model not loaded")
		}
		st.mu.Lock()
		st.model = loaded
		m = loaded
		st.mu.Unlock()
		s.setModelGauge(symbol, true)
		log.Printf("[trading] %s: lazily loaded model artifact", symbol)
	}

	sig, err := m.Decide(window, currentPrice)
	if err != nil {
		log.Printf("[trading] %s: predictor failed: %v", symbol, err)
		return model.Hold(symbol, err.Error())
	}
	sig.Symbol = symbol

	st.mu.Lock()
	st.lastSignal = sig.Action
	st.lastConfidence = sig.Confidence
	st.lastPrediction = sig.PredictedPrice
	st.lastSignalAt = time.Now()
	st.mu.Unlock()

	s.recordSignal(ctx, sig, "model")
	return sig
}

// RuleSignal runs the rule-based path: regime classification plus entry and
// exit rules. position is the caller's open position direction, if any.
// Non-HOLD evaluations are published as Signals through the RulePredictor,
// which carries the %K-depth confidence on the model path's scale.
func (s *Service) RuleSignal(ctx context.Context, symbol string, position model.Action) (strategy.Evaluation, error) {
	st := s.state(symbol)
	window := st.buf.Window(50)
	ev, err := s.rules.Evaluate(window, position)
	if err != nil {
		return strategy.Evaluation{}, err
	}
	if ev.Signal != model.ActionHold {
		s.recordSignal(ctx, s.rulePred.SignalFrom(symbol, ev), "rules")
	}
	return ev, nil
}

// Predict runs a one-shot price prediction without signal thresholds.
func (s *Service) Predict(symbol string) (current, predicted, confidence float64, err error) {
	st := s.state(symbol)
	window := st.buf.Window(s.cfg.SignalWindow)
	if len(window) < s.cfg.MinSignalBars {
		return 0, 0, 0, fmt.Errorf("%w: have %d bars, need %d", model.ErrInsufficientData, len(window), s.cfg.MinSignalBars)
	}
	st.mu.Lock()
	m := st.model
	st.mu.Unlock()
	if m == nil {
		return 0, 0, 0, model.ErrModelNotLoaded
	}
	current = window[len(window)-1].Close
	predicted, confidence, err = m.PredictNext(window)
	return current, predicted, confidence, err
}

// Retrain fits a fresh model on the symbol's full retained window, persists
// the artifact, swaps it in, and snapshots the buffer. A failed retrain
// leaves the previous model serving.
func (s *Service) Retrain(symbol string) (int, error) {
	st := s.state(symbol)
	st.trainMu.Lock()
	defer st.trainMu.Unlock()

	window := st.buf.Window(st.buf.Len())
	if len(window) < predictor.MinTrainBars {
		s.countRetrain(symbol, "insufficient_data")
		return 0, fmt.Errorf("%w: have %d bars, need %d for training", model.ErrInsufficientData, len(window), predictor.MinTrainBars)
	}

	start := time.Now()
	fresh := predictor.NewLinearModel(symbol)
	if err := fresh.Train(window); err != nil {
		s.countRetrain(symbol, "train_failed")
		s.alert(notify.AlertWarning, "Retrain failed", fmt.Sprintf("Symbol: `%s`\n• Error: %v", symbol, err))
		return 0, err
	}
	if err := fresh.Save(predictor.ModelPath(s.cfg.ModelDir, symbol)); err != nil {
		// Keep serving the in-memory model; the artifact retries next cycle.
		log.Printf("[trading] %s: model artifact save failed: %v", symbol, err)
	}

	st.mu.Lock()
	st.model = fresh
	st.mu.Unlock()
	s.setModelGauge(symbol, true)

	if err := st.buf.Snapshot(); err != nil {
		log.Printf("[trading] %s: post-retrain backup failed: %v", symbol, err)
	} else if s.deps.Metrics != nil {
		s.deps.Metrics.BackupsTotal.WithLabelValues(symbol).Inc()
	}

	dur := time.Since(start)
	s.countRetrain(symbol, "success")
	if s.deps.Metrics != nil {
		s.deps.Metrics.RetrainDuration.Observe(dur.Seconds())
	}
	log.Printf("[trading] %s: retrained on %d bars in %s", symbol, len(window), dur.Round(time.Millisecond))
	s.alert(notify.AlertInfo, "Model retrained", fmt.Sprintf("Symbol: `%s`\n• Bars: %d\n• Duration: %s", symbol, len(window), dur.Round(time.Millisecond)))
	return len(window), nil
}

// Backup forces a snapshot write for one symbol.
func (s *Service) Backup(symbol string) error {
	st := s.state(symbol)
	start := time.Now()
	if err := st.buf.Snapshot(); err != nil {
		return err
	}
	if m := s.deps.Metrics; m != nil {
		m.BackupsTotal.WithLabelValues(symbol).Inc()
		m.BackupDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// BackupAll snapshots every known symbol, returning per-symbol errors.
func (s *Service) BackupAll() map[string]error {
	out := make(map[string]error)
	for _, sym := range s.Symbols() {
		out[sym] = s.Backup(sym)
	}
	return out
}

// SymbolStatus is the per-symbol diagnostic payload.
type SymbolStatus struct {
	Symbol         string                    `json:"symbol"`
	Buffer         buffer.Stats              `json:"buffer"`
	ModelLoaded    bool                      `json:"model_loaded"`
	LastSignal     model.Action              `json:"last_signal,omitempty"`
	LastConfidence float64                   `json:"last_confidence"`
	LastPrediction *float64                  `json:"last_prediction,omitempty"`
	LastSignalAt   *time.Time                `json:"last_signal_at,omitempty"`
	Bollinger      *indicator.BollingerWidth `json:"bollinger,omitempty"`
}

// Status returns one symbol's diagnostics, including the latest Bollinger
// band width when enough bars are buffered.
func (s *Service) Status(symbol string) SymbolStatus {
	st := s.state(symbol)

	out := SymbolStatus{
		Symbol: symbol,
		Buffer: st.buf.Stats(),
	}
	st.mu.Lock()
	out.ModelLoaded = st.model != nil
	out.LastSignal = st.lastSignal
	out.LastConfidence = st.lastConfidence
	out.LastPrediction = st.lastPrediction
	if !st.lastSignalAt.IsZero() {
		t := st.lastSignalAt
		out.LastSignalAt = &t
	}
	st.mu.Unlock()

	if bw, ok := indicator.Bollinger(indicator.CloseSeries(st.buf.Window(20)), 20, 3); ok {
		out.Bollinger = &bw
	}
	return out
}

// StatusAll returns diagnostics for every known symbol.
func (s *Service) StatusAll() map[string]SymbolStatus {
	out := make(map[string]SymbolStatus)
	for _, sym := range s.Symbols() {
		out[sym] = s.Status(sym)
	}
	return out
}

// Health is the aggregate liveness payload.
type Health struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	ActiveSymbols     []string  `json:"active_symbols"`
	TotalDataPoints   int       `json:"total_data_points"`
	SymbolsWithModels int       `json:"symbols_with_models"`
}

// HealthCheck aggregates buffer and model state across symbols.
func (s *Service) HealthCheck() Health {
	h := Health{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(s.started).Seconds(),
		ActiveSymbols: s.Symbols(),
	}
	for _, sym := range h.ActiveSymbols {
		st := s.state(sym)
		h.TotalDataPoints += st.buf.Len()
		if st.modelLoaded() {
			h.SymbolsWithModels++
		}
	}
	return h
}

// Latest returns the last n bars for the symbol.
func (s *Service) Latest(symbol string, n int) []model.Bar {
	return s.state(symbol).buf.Window(n)
}

func (s *Service) recordSignal(ctx context.Context, sig model.Signal, source string) {
	if m := s.deps.Metrics; m != nil {
		m.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Action), source).Inc()
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishSignal(ctx, sig); err != nil {
			log.Printf("[trading] %s: signal publish failed: %v", sig.Symbol, err)
		}
	}
}

func (s *Service) countRetrain(symbol, outcome string) {
	if m := s.deps.Metrics; m != nil {
		m.RetrainsTotal.WithLabelValues(symbol, outcome).Inc()
	}
}

func (s *Service) setModelGauge(symbol string, loaded bool) {
	if m := s.deps.Metrics; m != nil {
		v := 0.0
		if loaded {
			v = 1
		}
		m.ModelLoaded.WithLabelValues(symbol).Set(v)
	}
}

func (s *Service) alert(level notify.AlertLevel, title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.deps.Notifier.Send(ctx, notify.Alert{Level: level, Title: title, Message: message}); err != nil {
		log.Printf("[trading] alert delivery failed: %v", err)
	}
}
