// Package riskmodel loads the pre-trained risk classifier and turns its
// probability output into Low/Medium/High labels.
package riskmodel

import (
	"errors"
	"math"
)

const (
	LabelLow    = "Low"
	LabelMedium = "Medium"
	LabelHigh   = "High"
)

var ErrFeatureCount = errors.New("feature vector length does not match model")

// Predictor scores one feature vector, in Features() order, as P(high risk).
type Predictor interface {
	Name() string
	Features() []string
	// Background is the reference input: feature means used for imputation and SHAP baselines.
	Background() []float64
	Predict(x []float64) (float64, error)
}

type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Label maps a score to a risk label; each boundary belongs to the higher label.
func (t Thresholds) Label(score float64) string {
	switch {
	case score < t.Low:
		return LabelLow
	case score < t.High:
		return LabelMedium
	default:
		return LabelHigh
	}
}

func (t Thresholds) valid() bool {
	return t.Low > 0 && t.High < 1 && t.Low < t.High
}

func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Logit is the inverse of Sigmoid, clamped away from 0 and 1.
func Logit(p float64) float64 {
	const eps = 1e-12
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}
