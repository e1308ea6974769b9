package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSourceRequiresPath(t *testing.T) {
	_, err := NewSource(Config{Backend: BackendTFLite}, nil)
	assert.EqualError(t, err, "model path is required")
}

func TestNewSourceUnknownBackend(t *testing.T) {
	_, err := NewSource(Config{Backend: "tensorrt", Path: "m.onnx"}, nil)
	assert.ErrorContains(t, err, "unknown backend")
}
