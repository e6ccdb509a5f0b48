package riskmodel

import (
	"fmt"
	"path/filepath"
	"strings"
)

type thresholdSource interface {
	Thresholds() Thresholds
}

// Load picks the predictor by file extension. An empty path uses the bundled
// linear model. Thresholds carried by the artifact win over fallback.
func Load(path, onnxLibPath string, fallback Thresholds) (Predictor, Thresholds, error) {
	var p Predictor
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case path == "":
		p = DefaultLinearModel()
	case ext == ".json":
		m, err := LoadLinearModel(path)
		if err != nil {
			return nil, Thresholds{}, err
		}
		p = m
	case ext == ".onnx":
		m, err := NewONNXModel(path, onnxLibPath)
		if err != nil {
			return nil, Thresholds{}, err
		}
		p = m
	default:
		return nil, Thresholds{}, fmt.Errorf("unsupported model file %q", path)
	}

	th := fallback
	if src, ok := p.(thresholdSource); ok && src.Thresholds().valid() {
		th = src.Thresholds()
	}
	if !th.valid() {
		return nil, Thresholds{}, fmt.Errorf("invalid risk thresholds: low=%v high=%v", th.Low, th.High)
	}
	return p, th, nil
}
