package riskmodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXMetadata is the JSON sidecar next to an .onnx file (model.onnx -> model.features.json).
// ONNX graphs exported from scikit-learn do not carry feature names or training means.
type ONNXMetadata struct {
	Name          string    `json:"name"`
	Features      []string  `json:"features"`
	Means         []float64 `json:"means"`
	OutputName    string    `json:"output_name"`
	LowThreshold  float64   `json:"low_threshold"`
	HighThreshold float64   `json:"high_threshold"`
}

// ONNXModel runs a classifier exported to ONNX with a [1, n] float input.
// The probability output is either [1, 2] (class probabilities) or [1, 1].
type ONNXModel struct {
	mu sync.Mutex

	modelPath string
	libPath   string
	meta      ONNXMetadata

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inited  bool
}

func NewONNXModel(modelPath, onnxLibPath string) (*ONNXModel, error) {
	metaPath := strings.TrimSuffix(modelPath, ".onnx") + ".features.json"
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read onnx metadata %s failed: %w", metaPath, err)
	}
	var meta ONNXMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse onnx metadata failed: %w", err)
	}
	if len(meta.Features) == 0 {
		return nil, fmt.Errorf("onnx metadata lists no features")
	}
	if len(meta.Means) == 0 {
		meta.Means = make([]float64, len(meta.Features))
	}
	if len(meta.Means) != len(meta.Features) {
		return nil, fmt.Errorf("onnx metadata has %d means for %d features", len(meta.Means), len(meta.Features))
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(filepath.Base(modelPath), ".onnx")
	}
	return &ONNXModel{modelPath: modelPath, libPath: onnxLibPath, meta: meta}, nil
}

func (m *ONNXModel) Name() string {
	return m.meta.Name
}

func (m *ONNXModel) Features() []string {
	return m.meta.Features
}

func (m *ONNXModel) Background() []float64 {
	return m.meta.Means
}

func (m *ONNXModel) Thresholds() Thresholds {
	return Thresholds{Low: m.meta.LowThreshold, High: m.meta.HighThreshold}
}

// init loads the shared library, environment and session on first use. Caller holds mu.
func (m *ONNXModel) init() error {
	if m.inited {
		return nil
	}

	if m.libPath != "" {
		ort.SetSharedLibraryPath(m.libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(m.modelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("onnx model has no inputs or outputs")
	}

	outputIdx := len(outputs) - 1
	if m.meta.OutputName != "" {
		outputIdx = -1
		for i := range outputs {
			if outputs[i].Name == m.meta.OutputName {
				outputIdx = i
			}
		}
		if outputIdx < 0 {
			return fmt.Errorf("onnx model has no output %q", m.meta.OutputName)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(m.meta.Features))))
	if err != nil {
		return fmt.Errorf("onnx new input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](fixedShape(outputs[outputIdx].Dimensions))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(m.modelPath,
		[]string{inputs[0].Name}, []string{outputs[outputIdx].Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		outputTensor.Destroy()
		inputTensor.Destroy()
		return fmt.Errorf("onnx new session: %w", err)
	}

	m.input = inputTensor
	m.output = outputTensor
	m.session = session
	m.inited = true
	return nil
}

// fixedShape replaces dynamic (batch) dimensions with 1.
func fixedShape(dims ort.Shape) ort.Shape {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return ort.NewShape(out...)
}

func (m *ONNXModel) Predict(x []float64) (float64, error) {
	if len(x) != len(m.meta.Features) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), len(m.meta.Features))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return 0, err
	}

	in := m.input.GetData()
	for i, v := range x {
		in[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("onnx run: %w", err)
	}

	out := m.output.GetData()
	switch {
	case len(out) >= 2:
		return float64(out[1]), nil
	case len(out) == 1:
		return float64(out[0]), nil
	default:
		return 0, fmt.Errorf("onnx output is empty")
	}
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited {
		return nil
	}
	var firstErr error
	if err := m.session.Destroy(); err != nil {
		firstErr = err
	}
	if err := m.input.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.output.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.inited = false
	return firstErr
}
