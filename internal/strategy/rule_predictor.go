package strategy

import "tradesrv/internal/model"

// RulePredictor adapts the rule Evaluator to the predictor surface: the
// trading service publishes rule evaluations through SignalFrom so rule and
// model signals share one Signal shape and one confidence scale, and Decide
// serves standalone window-in signal-out callers.
type RulePredictor struct {
	eval *Evaluator
}

// NewRulePredictor wraps an Evaluator for use on the predictor surface.
func NewRulePredictor(eval *Evaluator) *RulePredictor {
	return &RulePredictor{eval: eval}
}

// SignalFrom converts a rule evaluation into a Signal. Confidence scales
// with how deep %K sits past the trigger threshold, clamped to the same
// [0.5, 0.95] range the model predictor uses; a HOLD carries the floor.
func (p *RulePredictor) SignalFrom(symbol string, ev Evaluation) model.Signal {
	sig := model.Signal{
		Symbol:       symbol,
		Action:       ev.Signal,
		CurrentPrice: ev.Price,
		Reason:       ev.Reason,
	}
	switch ev.Signal {
	case model.ActionBuy:
		sig.Confidence = clampConfidence(0.5 + (p.eval.cfg.Oversold-ev.K)/p.eval.cfg.Oversold*0.45)
	case model.ActionSell:
		sig.Confidence = clampConfidence(0.5 + (ev.K-p.eval.cfg.Overbought)/(100-p.eval.cfg.Overbought)*0.45)
	default:
		sig.Confidence = 0.5
	}
	return sig
}

// Decide evaluates the rule set over the window and converts the result to a
// Signal via SignalFrom.
func (p *RulePredictor) Decide(window []model.Bar, currentPrice float64) (model.Signal, error) {
	ev, err := p.eval.Evaluate(window, "")
	if err != nil {
		return model.Signal{}, err
	}
	symbol := ""
	if len(window) > 0 {
		symbol = window[len(window)-1].Symbol
	}
	sig := p.SignalFrom(symbol, ev)
	sig.CurrentPrice = currentPrice
	return sig, nil
}

func clampConfidence(c float64) float64 {
	if c < 0.5 {
		return 0.5
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}
