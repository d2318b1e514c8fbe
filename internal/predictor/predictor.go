// Package predictor implements the model-based signal path: a linear
// regressor over engineered bar features, trained by gradient descent and
// persisted as a JSON artifact per symbol.
package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"tradesrv/internal/model"
)

// MinTrainBars is the smallest window Train accepts.
const MinTrainBars = 500

// MinDecideBars is the smallest window Decide accepts.
const MinDecideBars = 100

// Decision thresholds. A prediction below the hold threshold is always
// HOLD; BUY/SELL additionally require the act threshold and a predicted
// move larger than minMovePct.
const (
	holdConfidence = 0.6
	actConfidence  = 0.7
	minMovePct     = 0.1 // percent
)

// Predictor turns a bar window into a trading signal.
type Predictor interface {
	Decide(window []model.Bar, currentPrice float64) (model.Signal, error)
}

// LinearModel predicts the next-bar fractional return with a linear
// regressor over standardized features.
type LinearModel struct {
	Symbol      string    `json:"symbol"`
	Weights     []float64 `json:"weights"`
	Bias        float64   `json:"bias"`
	FeatureMean []float64 `json:"feature_mean"`
	FeatureStd  []float64 `json:"feature_std"`
	NumFeatures int       `json:"num_features"`
	Samples     int       `json:"samples"`
	TrainedAt   time.Time `json:"trained_at"`

	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
}

// NewLinearModel creates an untrained model for symbol with the reference
// training hyperparameters.
func NewLinearModel(symbol string) *LinearModel {
	return &LinearModel{
		Symbol:       symbol,
		NumFeatures:  numFeatures,
		LearningRate: 0.01,
		Epochs:       200,
	}
}

// Trained reports whether the model has been fitted.
func (m *LinearModel) Trained() bool {
	return len(m.Weights) == m.NumFeatures && m.Samples > 0
}

// Train fits the model on the window by gradient descent. The target for
// each bar is the next bar's fractional close change. Requires at least
// MinTrainBars bars.
func (m *LinearModel) Train(window []model.Bar) error {
	if len(window) < MinTrainBars {
		return fmt.Errorf("%w: have %d bars, need %d for training", model.ErrInsufficientData, len(window), MinTrainBars)
	}

	var X [][]float64
	var y []float64
	for i := featureWarmup; i < len(window)-1; i++ {
		X = append(X, extractFeatures(window, i))
		y = append(y, pctChange(window, i+1, 1))
	}
	if len(X) == 0 {
		return fmt.Errorf("%w: no training samples after warmup", model.ErrInsufficientData)
	}

	m.fitScaler(X)
	for i := range X {
		m.standardize(X[i])
	}

	w := make([]float64, m.NumFeatures)
	bias := 0.0
	lr := m.LearningRate / float64(len(X))
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for i := range X {
			pred := bias
			for j, v := range X[i] {
				pred += w[j] * v
			}
			err := pred - y[i]
			bias -= lr * err
			for j, v := range X[i] {
				w[j] -= lr * err * v
			}
		}
	}

	m.Weights = w
	m.Bias = bias
	m.Samples = len(X)
	m.TrainedAt = time.Now().UTC()
	return nil
}

// PredictNext returns the predicted next close and a confidence derived
// from the size of the predicted move: large moves are distrusted.
func (m *LinearModel) PredictNext(window []model.Bar) (price, confidence float64, err error) {
	if !m.Trained() {
		return 0, 0, model.ErrModelNotLoaded
	}
	if len(window) <= featureWarmup {
		return 0, 0, fmt.Errorf("%w: have %d bars, need %d for features", model.ErrInsufficientData, len(window), featureWarmup+1)
	}

	f := extractFeatures(window, len(window)-1)
	m.standardize(f)
	ret := m.Bias
	for j, v := range f {
		ret += m.Weights[j] * v
	}

	current := window[len(window)-1].Close
	price = current * (1 + ret)
	confidence = clamp(1-math.Abs(ret)*10, 0.5, 0.95)
	return price, confidence, nil
}

// Decide produces a signal from the window. Below MinDecideBars the answer
// is an error; a low-confidence prediction degrades to HOLD.
func (m *LinearModel) Decide(window []model.Bar, currentPrice float64) (model.Signal, error) {
	if len(window) < MinDecideBars {
		return model.Signal{}, fmt.Errorf("%w: have %d bars, need %d", model.ErrInsufficientData, len(window), MinDecideBars)
	}
	predicted, confidence, err := m.PredictNext(window)
	if err != nil {
		return model.Signal{}, err
	}

	sig := model.Signal{
		Symbol:         m.Symbol,
		Action:         model.ActionHold,
		CurrentPrice:   currentPrice,
		PredictedPrice: &predicted,
	}
	if confidence < holdConfidence {
		sig.Reason = fmt.Sprintf("confidence %.3f below %.1f", confidence, holdConfidence)
		return sig, nil
	}

	changePct := (predicted - currentPrice) / currentPrice * 100
	sig.Confidence = confidence
	switch {
	case changePct > minMovePct && confidence > actConfidence:
		sig.Action = model.ActionBuy
		sig.Reason = fmt.Sprintf("predicted +%.3f%% at confidence %.3f", changePct, confidence)
	case changePct < -minMovePct && confidence > actConfidence:
		sig.Action = model.ActionSell
		sig.Reason = fmt.Sprintf("predicted %.3f%% at confidence %.3f", changePct, confidence)
	default:
		sig.Reason = fmt.Sprintf("predicted %.3f%% at confidence %.3f, holding", changePct, confidence)
	}
	return sig, nil
}

// Save writes the model artifact as indented JSON.
func (m *LinearModel) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create model dir: %v", model.ErrPersistence, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write model: %v", model.ErrPersistence, err)
	}
	return nil
}

// Load reads a model artifact from path.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	if m.NumFeatures == 0 {
		m.NumFeatures = numFeatures
	}
	return &m, nil
}

// ModelPath returns the per-symbol artifact path under modelDir.
func ModelPath(modelDir, symbol string) string {
	return filepath.Join(modelDir, fmt.Sprintf("trading_model_%s.json", symbol))
}

// FallbackPath returns the shared artifact path used when no per-symbol
// model exists.
func FallbackPath(modelDir string) string {
	return filepath.Join(modelDir, "trading_model.json")
}

// LoadForSymbol tries the per-symbol artifact, then the shared fallback.
func LoadForSymbol(modelDir, symbol string) (*LinearModel, error) {
	m, err := Load(ModelPath(modelDir, symbol))
	if err == nil {
		m.Symbol = symbol
		return m, nil
	}
	m, ferr := Load(FallbackPath(modelDir))
	if ferr != nil {
		return nil, fmt.Errorf("%w: no artifact for %s: %v", model.ErrModelNotLoaded, symbol, err)
	}
	m.Symbol = symbol
	return m, nil
}

func (m *LinearModel) fitScaler(X [][]float64) {
	mean := make([]float64, m.NumFeatures)
	std := make([]float64, m.NumFeatures)
	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(X))
	}
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(len(X)))
		if std[j] == 0 {
			std[j] = 1
		}
	}
	m.FeatureMean = mean
	m.FeatureStd = std
}

func (m *LinearModel) standardize(f []float64) {
	if len(m.FeatureMean) != len(f) || len(m.FeatureStd) != len(f) {
		return
	}
	for j := range f {
		f[j] = (f[j] - m.FeatureMean[j]) / m.FeatureStd[j]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
