package xai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phyrisk/internal/riskmodel"
)

type additiveModel struct {
	coef []float64
	bg   []float64
}

func (m *additiveModel) Name() string { return "additive" }
func (m *additiveModel) Features() []string { return []string{"a", "b", "c"} }
func (m *additiveModel) Background() []float64 { return m.bg }

func (m *additiveModel) Predict(x []float64) (float64, error) {
	p := 0.1
	for i, c := range m.coef {
		p += c * x[i]
	}
	return p, nil
}

// interactionModel is f = 0.2 + 0.1*a*b, so a and b share the interaction.
type interactionModel struct{}

func (interactionModel) Name() string { return "interaction" }
func (interactionModel) Features() []string { return []string{"a", "b"} }
func (interactionModel) Background() []float64 { return []float64{0, 0} }

func (interactionModel) Predict(x []float64) (float64, error) {
	return 0.2 + 0.1*x[0]*x[1], nil
}

func sumSHAP(e *Explanation) float64 {
	var s float64
	for _, v := range e.Values {
		s += v.SHAP
	}
	return s
}

func TestLinearExplainerEfficiency(t *testing.T) {
	m := riskmodel.DefaultLinearModel()
	exp := NewExplainer(m, 0)
	require.IsType(t, &LinearExplainer{}, exp)

	x := []float64{52, 4, 9, 12, 14, 2, 0.5, 10}
	e, err := exp.Explain(x, 1)
	require.NoError(t, err)

	assert.Equal(t, MethodLinear, e.Method)
	assert.Equal(t, SpaceLogOdds, e.Space)
	assert.InDelta(t, -0.8, e.BaseValue, 1e-9)

	score, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, riskmodel.Logit(score), e.BaseValue+sumSHAP(e), 1e-9)
	assert.InDelta(t, e.Prediction, e.BaseValue+sumSHAP(e), 1e-9)

	for i := 1; i < len(e.Values); i++ {
		assert.GreaterOrEqual(t, math.Abs(e.Values[i-1].SHAP), math.Abs(e.Values[i].SHAP))
	}
}

func TestLinearExplainerAtMeanIsZero(t *testing.T) {
	m := riskmodel.DefaultLinearModel()
	e, err := NewExplainer(m, 0).Explain(m.Background(), 0)
	require.NoError(t, err)
	for _, v := range e.Values {
		assert.InDelta(t, 0, v.SHAP, 1e-12, v.Feature)
	}
}

func TestSamplingExplainerAdditive(t *testing.T) {
	m := &additiveModel{coef: []float64{0.05, -0.02, 0.01}, bg: []float64{1, 2, 3}}
	exp := NewExplainer(m, 16)
	require.IsType(t, &SamplingExplainer{}, exp)

	e, err := exp.Explain([]float64{3, 7, 3}, 42)
	require.NoError(t, err)
	assert.Equal(t, MethodSampling, e.Method)
	assert.Equal(t, SpaceProbability, e.Space)

	got := map[string]float64{}
	for _, v := range e.Values {
		got[v.Feature] = v.SHAP
	}
	assert.InDelta(t, 0.10, got["a"], 1e-12)
	assert.InDelta(t, -0.10, got["b"], 1e-12)
	assert.InDelta(t, 0, got["c"], 1e-12)
	assert.InDelta(t, e.Prediction, e.BaseValue+sumSHAP(e), 1e-12)
}

func TestSamplingExplainerInteraction(t *testing.T) {
	e, err := NewExplainer(interactionModel{}, 200).Explain([]float64{1, 1}, 7)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, e.Prediction, 1e-12)
	assert.InDelta(t, e.Prediction, e.BaseValue+sumSHAP(e), 1e-12)
	for _, v := range e.Values {
		assert.InDelta(t, 0.05, v.SHAP, 0.02, v.Feature)
	}
}

func TestSamplingExplainerDeterministic(t *testing.T) {
	exp := NewExplainer(interactionModel{}, 10)
	a, err := exp.Explain([]float64{1, 2}, 99)
	require.NoError(t, err)
	b, err := exp.Explain([]float64{1, 2}, 99)
	require.NoError(t, err)
	assert.Equal(t, a.Values, b.Values)

	_, err = exp.Explain([]float64{1}, 99)
	assert.ErrorIs(t, err, riskmodel.ErrFeatureCount)
}

func TestGlobalImportance(t *testing.T) {
	m := riskmodel.DefaultLinearModel()
	exp := NewExplainer(m, 0)

	var all []*Explanation
	for _, x := range [][]float64{
		{35, 3, 5, 7, 8, 6, 3, 5},
		{35, 11, 5, 7, 8, 6, 3, 5},
	} {
		e, err := exp.Explain(x, 0)
		require.NoError(t, err)
		all = append(all, e)
	}

	imp := GlobalImportance(m.Features(), all)
	require.Len(t, imp, len(m.Features()))
	assert.Equal(t, "sleep_hours", imp[0].Feature)
	assert.InDelta(t, 1.4, imp[0].MeanAbsSHAP, 1e-9)
	assert.InDelta(t, 0, imp[1].MeanAbsSHAP, 1e-12)

	empty := GlobalImportance(m.Features(), nil)
	assert.Len(t, empty, len(m.Features()))
}
