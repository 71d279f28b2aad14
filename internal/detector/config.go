package detector

import (
	"errors"
	"fmt"
	"os"

	"github.com/yalue/onnxruntime_go"
)

// Config holds configuration for the ONNX symbol detector.
type Config struct {
	ModelPath  string   // Path to the ONNX detection model
	ClassNames []string // Symbol class names, indexed by model class id
	InputSize  int      // Model input edge length (default: 640)
	// RawNMSThreshold is the IoU threshold for suppressing duplicate raw
	// anchors within a single tile. Cross-tile duplicates are handled by
	// the overlap resolver, not here.
	RawNMSThreshold float64
	NumThreads      int // CPU threads for inference (0 = auto)
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		InputSize:       640,
		RawNMSThreshold: 0.45,
		NumThreads:      0,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.RawNMSThreshold <= 0 || c.RawNMSThreshold >= 1 {
		return fmt.Errorf("raw NMS threshold must be in (0, 1), got %g", c.RawNMSThreshold)
	}
	return nil
}

// validateModelFile checks if the model file exists.
func validateModelFile(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// validateModelInfo gets and validates model input/output information.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 1 model input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 1 model output, got %d", len(outputs))
	}
	return inputs[0], outputs[0], nil
}
