// Package xai computes SHAP feature attributions for risk predictions.
package xai

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"phyrisk/internal/model"
	"phyrisk/internal/riskmodel"
)

const (
	MethodLinear   = "linear"
	MethodSampling = "sampling"

	SpaceLogOdds     = "log_odds"
	SpaceProbability = "probability"

	DefaultPermutations = 64
)

// Explanation holds one record's attributions. BaseValue plus the sum of all
// SHAP values equals Prediction, both expressed in Space.
type Explanation struct {
	Method     string            `json:"method"`
	Space      string            `json:"space"`
	BaseValue  float64           `json:"base_value"`
	Prediction float64           `json:"prediction"`
	Values     []model.SHAPValue `json:"values"`
}

type Explainer interface {
	// Explain attributes the prediction for x. seed only affects sampling explainers.
	Explain(x []float64, seed int64) (*Explanation, error)
}

// NewExplainer returns the exact explainer for linear models and a
// permutation-sampling one for everything else.
func NewExplainer(p riskmodel.Predictor, permutations int) Explainer {
	if m, ok := p.(*riskmodel.LinearModel); ok {
		return &LinearExplainer{model: m}
	}
	if permutations <= 0 {
		permutations = DefaultPermutations
	}
	return &SamplingExplainer{predictor: p, permutations: permutations}
}

// LinearExplainer: phi_i = w_i * (x_i - mean_i) in log-odds.
type LinearExplainer struct {
	model *riskmodel.LinearModel
}

func (e *LinearExplainer) Explain(x []float64, _ int64) (*Explanation, error) {
	base, err := e.model.Logit(e.model.Background())
	if err != nil {
		return nil, err
	}
	pred, err := e.model.Logit(x)
	if err != nil {
		return nil, err
	}

	features := e.model.Features()
	weights := e.model.Weights()
	means := e.model.Background()
	values := make([]model.SHAPValue, len(features))
	for i, name := range features {
		values[i] = model.SHAPValue{Feature: name, Value: x[i], SHAP: weights[i] * (x[i] - means[i])}
	}
	SortByMagnitude(values)

	return &Explanation{
		Method:     MethodLinear,
		Space:      SpaceLogOdds,
		BaseValue:  base,
		Prediction: pred,
		Values:     values,
	}, nil
}

// SamplingExplainer estimates Shapley values by walking random feature
// permutations from the background to x and averaging marginal changes.
type SamplingExplainer struct {
	predictor    riskmodel.Predictor
	permutations int
}

func (e *SamplingExplainer) Explain(x []float64, seed int64) (*Explanation, error) {
	features := e.predictor.Features()
	background := e.predictor.Background()
	n := len(features)
	if len(x) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", riskmodel.ErrFeatureCount, len(x), n)
	}

	base, err := e.predictor.Predict(background)
	if err != nil {
		return nil, fmt.Errorf("predict background failed: %w", err)
	}
	pred, err := e.predictor.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("predict record failed: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	phi := make([]float64, n)
	z := make([]float64, n)
	for k := 0; k < e.permutations; k++ {
		copy(z, background)
		prev := base
		order := rng.Perm(n)
		for step, j := range order {
			z[j] = x[j]
			// the last step lands exactly on x
			cur := pred
			if step < n-1 {
				if cur, err = e.predictor.Predict(z); err != nil {
					return nil, fmt.Errorf("predict coalition failed: %w", err)
				}
			}
			phi[j] += cur - prev
			prev = cur
		}
	}

	values := make([]model.SHAPValue, n)
	for i, name := range features {
		values[i] = model.SHAPValue{Feature: name, Value: x[i], SHAP: phi[i] / float64(e.permutations)}
	}
	SortByMagnitude(values)

	return &Explanation{
		Method:     MethodSampling,
		Space:      SpaceProbability,
		BaseValue:  base,
		Prediction: pred,
		Values:     values,
	}, nil
}

// SortByMagnitude orders values by |shap| descending; ties keep feature order.
func SortByMagnitude(values []model.SHAPValue) {
	sort.SliceStable(values, func(i, j int) bool {
		return math.Abs(values[i].SHAP) > math.Abs(values[j].SHAP)
	})
}

type Importance struct {
	Feature     string  `json:"feature"`
	MeanAbsSHAP float64 `json:"mean_abs_shap"`
}

// GlobalImportance averages |shap| per feature over explanations, sorted descending.
func GlobalImportance(features []string, explanations []*Explanation) []Importance {
	sums := make(map[string]float64, len(features))
	for _, exp := range explanations {
		for _, v := range exp.Values {
			sums[v.Feature] += math.Abs(v.SHAP)
		}
	}

	out := make([]Importance, len(features))
	for i, f := range features {
		out[i] = Importance{Feature: f}
		if len(explanations) > 0 {
			out[i].MeanAbsSHAP = sums[f] / float64(len(explanations))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanAbsSHAP > out[j].MeanAbsSHAP
	})
	return out
}
