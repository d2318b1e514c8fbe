// Package strategy implements the rule-based signal logic: regime
// classification from ADX and WMA slope, stochastic range entries in a BOX
// regime, and stochastic exit rules for open positions.
package strategy

import (
	"fmt"

	"tradesrv/internal/indicator"
	"tradesrv/internal/model"
)

// Regime classifies the current market condition.
type Regime string

const (
	RegimeUp      Regime = "UP"   // trending up: ADX above threshold, WMA rising
	RegimeDown    Regime = "DOWN" // trending down: ADX above threshold, WMA falling
	RegimeBox     Regime = "BOX"  // ranging: ADX at or below threshold
	RegimeUnknown Regime = ""     // indicators not yet warmed up
)

// TradeHistory looks up the most recent closed trade for a symbol. Returning
// a nil trade with a nil error means no closed trades are on record.
type TradeHistory interface {
	LastClosedTrade(symbol string) (*model.ClosedTrade, error)
}

// Config holds the indicator periods and thresholds for the rule engine.
type Config struct {
	KPeriod   int
	KSmooth   int
	DPeriod   int
	ADXPeriod int
	WMAPeriod int

	ADXTrend   float64 // ADX above this means trending
	Oversold   float64 // %K at or below this in BOX triggers BUY
	Overbought float64 // %K at or above this in BOX triggers SELL

	MinBars int // minimum bars before any evaluation
}

// DefaultConfig returns the reference rule parameters.
func DefaultConfig() Config {
	return Config{
		KPeriod:    5,
		KSmooth:    3,
		DPeriod:    3,
		ADXPeriod:  7,
		WMAPeriod:  14,
		ADXTrend:   40,
		Oversold:   20,
		Overbought: 80,
		MinBars:    10,
	}
}

// Evaluation is the full rule output for the latest bar.
type Evaluation struct {
	Signal model.Action `json:"signal"`
	Regime Regime       `json:"regime"`
	Exit   bool         `json:"exit"`
	K      float64      `json:"k_value"`
	D      float64      `json:"d_value"`
	ADX    float64      `json:"adx"`
	Price  float64      `json:"price"`
	Reason string       `json:"reason"`
}

// Evaluator runs the rule set over a bar window. It holds no per-symbol
// state: the losing-direction guard comes from the injected trade history.
type Evaluator struct {
	cfg     Config
	history TradeHistory
}

// NewEvaluator creates an Evaluator. history may be nil, in which case the
// losing-direction guard is skipped.
func NewEvaluator(cfg Config, history TradeHistory) *Evaluator {
	return &Evaluator{cfg: cfg, history: history}
}

// Evaluate applies the rule set to bars. position is the direction of an
// open position if the caller holds one, or empty. Entries are only emitted
// when no position is open; exits only when one is.
func (e *Evaluator) Evaluate(bars []model.Bar, position model.Action) (Evaluation, error) {
	if len(bars) < e.cfg.MinBars {
		return Evaluation{}, fmt.Errorf("%w: have %d bars, need %d", model.ErrInsufficientData, len(bars), e.cfg.MinBars)
	}

	k, d := indicator.Stochastic(bars, e.cfg.KPeriod, e.cfg.KSmooth, e.cfg.DPeriod)
	adx := indicator.ADX(bars, e.cfg.ADXPeriod)
	wma := indicator.WMA(indicator.CloseSeries(bars), e.cfg.WMAPeriod)

	i := len(bars) - 1
	ev := Evaluation{
		Signal: model.ActionHold,
		Regime: e.classify(adx[i], wma[i-1], wma[i-2]),
		K:      k[i],
		D:      d[i],
		ADX:    adx[i],
		Price:  bars[i].Close,
	}

	hasPosition := position == model.ActionBuy || position == model.ActionSell
	if !hasPosition {
		e.entry(&ev, bars[i].Symbol)
	} else {
		ev.Exit = shouldExit(position, k[i], k[i-1], e.cfg)
		if ev.Exit {
			ev.Reason = fmt.Sprintf("exit %s at %%K %.1f", position, k[i])
		}
	}
	if ev.Reason == "" {
		ev.Reason = fmt.Sprintf("regime %s, %%K %.1f", ev.Regime, k[i])
	}
	return ev, nil
}

// classify maps the latest ADX and the WMA slope to a regime. NaN indicator
// values leave the regime unknown.
func (e *Evaluator) classify(adx0, wma1, wma2 float64) Regime {
	if adx0 != adx0 || wma1 != wma1 || wma2 != wma2 { // NaN check
		return RegimeUnknown
	}
	switch {
	case adx0 > e.cfg.ADXTrend && wma2 < wma1:
		return RegimeUp
	case adx0 > e.cfg.ADXTrend && wma2 > wma1:
		return RegimeDown
	case adx0 <= e.cfg.ADXTrend:
		return RegimeBox
	default:
		return RegimeUnknown
	}
}

// entry fills in an entry signal for a BOX regime. A direction that just lost
// is not repeated until a trade in the other direction or a win intervenes.
func (e *Evaluator) entry(ev *Evaluation, symbol string) {
	if ev.Regime != RegimeBox || ev.K != ev.K {
		return
	}
	var want model.Action
	switch {
	case ev.K <= e.cfg.Oversold:
		want = model.ActionBuy
	case ev.K >= e.cfg.Overbought:
		want = model.ActionSell
	default:
		return
	}
	if e.history != nil {
		last, err := e.history.LastClosedTrade(symbol)
		if err == nil && last != nil && last.Action == want && !last.Won() {
			ev.Reason = fmt.Sprintf("skipping %s, last %s trade lost", want, want)
			return
		}
	}
	ev.Signal = want
	ev.Reason = fmt.Sprintf("BOX range entry at %%K %.1f", ev.K)
}

// shouldExit applies the stochastic exit rules: a long exits when %K reaches
// overbought or turns down, a short when %K reaches oversold or turns up.
func shouldExit(position model.Action, kNow, kPrev float64, cfg Config) bool {
	if kNow != kNow || kPrev != kPrev {
		return false
	}
	switch position {
	case model.ActionBuy:
		return kNow >= cfg.Overbought || kNow < kPrev
	case model.ActionSell:
		return kNow <= cfg.Oversold || kNow > kPrev
	}
	return false
}
