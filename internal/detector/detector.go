package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/yalue/onnxruntime_go"
)

// SymbolDetector runs fire-alarm symbol detection using ONNX Runtime.
type SymbolDetector struct {
	config     Config
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

// NewSymbolDetector creates a new symbol detector with the given
// configuration.
func NewSymbolDetector(config Config) (*SymbolDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := validateModelFile(config.ModelPath); err != nil {
		return nil, err
	}

	slog.Debug("initializing symbol detector",
		"model_path", config.ModelPath,
		"input_size", config.InputSize,
		"classes", len(config.ClassNames))

	if !onnxruntime_go.IsInitialized() {
		if err := onnxruntime_go.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	inputInfo, outputInfo, err := validateModelInfo(config.ModelPath)
	if err != nil {
		return nil, err
	}

	session, err := createSession(config.ModelPath, inputInfo, outputInfo, config)
	if err != nil {
		return nil, err
	}

	return &SymbolDetector{
		config:     config,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

// createSession creates the ONNX session with the given configuration.
func createSession(modelPath string, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
	config Config,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to destroy session options: %v\n", err)
		}
	}()

	if config.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Close releases resources used by the detector.
func (d *SymbolDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to destroy detector session: %v\n", err)
		}
		d.session = nil
	}
	// The ONNX environment stays up; it is shared for the process lifetime.
	return nil
}

// GetConfig returns a copy of the detector's configuration.
func (d *SymbolDetector) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Detect runs inference on a single tile image and returns tile-local
// detections at or above the confidence threshold.
func (d *SymbolDetector) Detect(ctx context.Context, img image.Image, confidence float64) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	tensorData, err := d.preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}

	outputData, outputShape, err := d.runInference(tensorData)
	if err != nil {
		return nil, err
	}

	dets, err := decodeOutput(outputData, outputShape, d.config.ClassNames, confidence)
	if err != nil {
		return nil, fmt.Errorf("postprocessing failed: %w", err)
	}

	// Map from model input space back to tile pixel space.
	scaleX := float64(origW) / float64(d.config.InputSize)
	scaleY := float64(origH) / float64(d.config.InputSize)
	for i := range dets {
		dets[i].CenterX *= scaleX
		dets[i].CenterY *= scaleY
		dets[i].Width *= scaleX
		dets[i].Height *= scaleY
	}

	return suppressRawDetections(dets, d.config.RawNMSThreshold), nil
}

// preprocess resizes the tile to the model input size and converts it to
// a normalized NCHW float32 tensor.
func (d *SymbolDetector) preprocess(img image.Image) ([]float32, error) {
	size := d.config.InputSize
	resized := imaging.Resize(img, size, size, imaging.Linear)

	data := make([]float32, 3*size*size)
	plane := size * size
	for y := range size {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+size*4]
		for x := range size {
			idx := y*size + x
			data[idx] = float32(row[x*4]) / 255.0
			data[plane+idx] = float32(row[x*4+1]) / 255.0
			data[2*plane+idx] = float32(row[x*4+2]) / 255.0
		}
	}
	return data, nil
}

// runInference executes the session and returns the raw output tensor
// data with its shape.
func (d *SymbolDetector) runInference(tensorData []float32) ([]float32, []int64, error) {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return nil, nil, errors.New("detector session is nil")
	}

	size := int64(d.config.InputSize)
	inputTensor, err := onnxruntime_go.NewTensor(
		onnxruntime_go.NewShape(1, 3, size, size), tensorData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	outputTensor := outputs[0]
	defer func() {
		if err := outputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
		}
	}()

	floatTensor, ok := outputTensor.(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputTensor)
	}

	data := floatTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, outputTensor.GetShape(), nil
}
