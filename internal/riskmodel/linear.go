package riskmodel

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed default_model.json
var defaultArtifact []byte

// Artifact is the on-disk form of a logistic regression exported from training.
type Artifact struct {
	Name          string    `json:"name"`
	Features      []string  `json:"features"`
	Weights       []float64 `json:"weights"`
	Intercept     float64   `json:"intercept"`
	Means         []float64 `json:"means"`
	LowThreshold  float64   `json:"low_threshold"`
	HighThreshold float64   `json:"high_threshold"`
}

// LinearModel is a logistic regression: P = sigmoid(intercept + w·x).
type LinearModel struct {
	name       string
	features   []string
	weights    []float64
	intercept  float64
	means      []float64
	thresholds Thresholds
}

func NewLinearModel(a Artifact) (*LinearModel, error) {
	n := len(a.Features)
	if n == 0 {
		return nil, fmt.Errorf("model artifact has no features")
	}
	if len(a.Weights) != n {
		return nil, fmt.Errorf("model artifact has %d weights for %d features", len(a.Weights), n)
	}
	means := a.Means
	if len(means) == 0 {
		means = make([]float64, n)
	}
	if len(means) != n {
		return nil, fmt.Errorf("model artifact has %d means for %d features", len(means), n)
	}
	name := a.Name
	if name == "" {
		name = "logistic-regression"
	}
	return &LinearModel{
		name:       name,
		features:   append([]string(nil), a.Features...),
		weights:    append([]float64(nil), a.Weights...),
		intercept:  a.Intercept,
		means:      append([]float64(nil), means...),
		thresholds: Thresholds{Low: a.LowThreshold, High: a.HighThreshold},
	}, nil
}

func LoadLinearModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact failed: %w", err)
	}
	return parseLinearModel(raw)
}

// DefaultLinearModel returns the model bundled with the binary.
func DefaultLinearModel() *LinearModel {
	m, err := parseLinearModel(defaultArtifact)
	if err != nil {
		panic(fmt.Sprintf("bundled model artifact is invalid: %v", err))
	}
	return m
}

func parseLinearModel(raw []byte) (*LinearModel, error) {
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact failed: %w", err)
	}
	return NewLinearModel(a)
}

func (m *LinearModel) Name() string {
	return m.name
}

func (m *LinearModel) Features() []string {
	return m.features
}

func (m *LinearModel) Background() []float64 {
	return m.means
}

func (m *LinearModel) Weights() []float64 {
	return m.weights
}

func (m *LinearModel) Intercept() float64 {
	return m.intercept
}

// Thresholds may be zero when the artifact does not carry its own.
func (m *LinearModel) Thresholds() Thresholds {
	return m.thresholds
}

// Logit returns intercept + w·x.
func (m *LinearModel) Logit(x []float64) (float64, error) {
	if len(x) != len(m.weights) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), len(m.weights))
	}
	z := m.intercept
	for i, w := range m.weights {
		z += w * x[i]
	}
	return z, nil
}

func (m *LinearModel) Predict(x []float64) (float64, error) {
	z, err := m.Logit(x)
	if err != nil {
		return 0, err
	}
	return Sigmoid(z), nil
}
