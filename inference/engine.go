// Package inference - Backend registry producing tensor sources from configuration.
package inference

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/inference/backend"
	"github.com/nvr-ai/go-overlay/inference/onnx"
	"github.com/nvr-ai/go-overlay/inference/tflite"
	"github.com/nvr-ai/go-overlay/tensors"
)

// Backend names an inference runtime.
type Backend = backend.Backend

const (
	// BackendTFLite runs .tflite models through TensorFlow Lite.
	BackendTFLite = backend.TFLite
	// BackendONNX runs .onnx models through ONNX Runtime.
	BackendONNX = backend.ONNX
)

// Config selects and configures the inference backend.
type Config = backend.Config

// ResolveBackend returns the configured backend, or the one implied by the model extension.
func ResolveBackend(cfg Config) (Backend, error) {
	return backend.Resolve(cfg)
}

// NewSource opens the model with the selected backend.
//
// Arguments:
//   - cfg: The inference configuration.
//   - logger: The logger handed to the backend.
//
// Returns:
//   - tensors.Source: The tensor source; callers must Close it.
//   - error: If the backend is unknown or the model cannot be opened.
func NewSource(cfg Config, logger *zap.Logger) (tensors.Source, error) {
	if cfg.Path == "" {
		return nil, errors.New("model path is required")
	}
	b, err := ResolveBackend(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", string(b)))

	switch b {
	case BackendTFLite:
		src, err := tflite.New(tflite.Options{
			ModelPath:   cfg.Path,
			Threads:     cfg.Threads,
			Accelerated: cfg.Accelerated,
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		providers := make([]onnx.Provider, 0, len(cfg.Providers))
		for _, p := range cfg.Providers {
			providers = append(providers, onnx.Provider(strings.ToLower(p)))
		}
		src, err := onnx.New(onnx.Options{
			ModelPath:     cfg.Path,
			SharedLibPath: cfg.SharedLibPath,
			Threads:       cfg.Threads,
			Accelerated:   cfg.Accelerated,
			Providers:     providers,
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
