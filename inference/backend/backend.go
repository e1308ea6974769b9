// Package backend - Inference backend selection, free of native runtime imports.
package backend

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend names an inference runtime.
type Backend string

const (
	// TFLite runs .tflite models through TensorFlow Lite.
	TFLite Backend = "tflite"
	// ONNX runs .onnx models through ONNX Runtime.
	ONNX Backend = "onnx"
)

// Config selects and configures the inference backend.
type Config struct {
	// Backend is the runtime; empty infers it from the model file extension.
	Backend Backend `json:"backend" yaml:"backend" koanf:"backend"`
	// Path is the model file.
	Path string `json:"path" yaml:"path" koanf:"path"`
	// Threads is the runtime thread count, 0 keeps the runtime default.
	Threads int `json:"threads" yaml:"threads" koanf:"threads"`
	// Accelerated enables hardware delegates or execution providers.
	Accelerated bool `json:"accelerated" yaml:"accelerated" koanf:"accelerated"`
	// Providers lists ONNX execution providers tried in order when accelerated.
	Providers []string `json:"providers" yaml:"providers" koanf:"providers"`
	// SharedLibPath is the onnxruntime shared library.
	SharedLibPath string `json:"sharedlibpath" yaml:"sharedlibpath" koanf:"sharedlibpath"`
}

// Resolve returns the configured backend, or the one implied by the model extension.
//
// Arguments:
//   - cfg: The inference configuration.
//
// Returns:
//   - Backend: The backend to use.
//   - error: If neither the configuration nor the extension names a known backend.
func Resolve(cfg Config) (Backend, error) {
	b := Backend(strings.ToLower(string(cfg.Backend)))
	if b == "" {
		switch {
		case strings.HasSuffix(strings.ToLower(cfg.Path), ".tflite"):
			b = TFLite
		case strings.HasSuffix(strings.ToLower(cfg.Path), ".onnx"):
			b = ONNX
		}
	}
	switch b {
	case TFLite, ONNX:
		return b, nil
	case "":
		return "", errors.Errorf("cannot infer backend from model path %q", cfg.Path)
	default:
		return "", errors.Errorf("unknown backend %q", cfg.Backend)
	}
}
