// Package tensors - Raw model output tensors and the capability interface that produces them.
package tensors

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	gtensor "gorgonia.org/tensor"
)

// DType is the element type a tensor was produced with.
type DType string

const (
	// Float32 is a 32-bit floating point tensor.
	Float32 DType = "float32"
	// Uint8 is a quantized 8-bit tensor.
	Uint8 DType = "uint8"
)

// Tensor is one raw output of an inference call.
//
// Data is always widened to float32 so decoders do not need to switch on the element type;
// DType records what the engine actually produced.
type Tensor struct {
	Name  string
	Shape []int
	DType DType
	Data  []float32
}

// Set is the ordered sequence of tensors produced by one inference call.
type Set []Tensor

// Source produces raw output tensors for an input frame.
//
// Implementations own whatever native runtime they wrap; callers only see the Set.
type Source interface {
	// Produce runs one inference on frame and returns the output tensors.
	Produce(ctx context.Context, frame image.Image) (Set, error)
	// InputSize is the frame size the model expects.
	InputSize() image.Point
	// Close releases native resources.
	Close() error
}

// NewFloat32 copies data into a float32 tensor of the given shape.
//
// Arguments:
//   - name: The output name reported by the engine.
//   - shape: The tensor dimensions.
//   - data: The flat, row-major elements.
//
// Returns:
//   - Tensor: The tensor.
//   - error: If the element count does not match the shape.
func NewFloat32(name string, shape []int, data []float32) (Tensor, error) {
	if err := checkShape(shape, len(data)); err != nil {
		return Tensor{}, errors.Wrapf(err, "tensor %q", name)
	}
	out := make([]float32, len(data))
	copy(out, data)
	return Tensor{Name: name, Shape: cloneShape(shape), DType: Float32, Data: out}, nil
}

// NewUint8 widens quantized data into a tensor of the given shape.
func NewUint8(name string, shape []int, data []uint8) (Tensor, error) {
	if err := checkShape(shape, len(data)); err != nil {
		return Tensor{}, errors.Wrapf(err, "tensor %q", name)
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return Tensor{Name: name, Shape: cloneShape(shape), DType: Uint8, Data: out}, nil
}

// FromDense converts a gorgonia tensor into a raw tensor.
//
// float32, float64, int64 and uint8 backings are supported, which covers what TFLite and
// ONNX models emit for classification and detection heads. The data is copied.
//
// Arguments:
//   - name: The name to attach to the tensor.
//   - t: The source tensor.
//
// Returns:
//   - Tensor: The converted tensor.
//   - error: If the dtype is unsupported.
func FromDense(name string, t gtensor.Tensor) (Tensor, error) {
	shape := []int(t.Shape().Clone())
	switch data := t.Data().(type) {
	case []float32:
		return NewFloat32(name, shape, data)
	case []uint8:
		return NewUint8(name, shape, data)
	case []int64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return NewFloat32(name, shape, out)
	case []float64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return NewFloat32(name, shape, out)
	case float32:
		return NewFloat32(name, []int{1}, []float32{data})
	default:
		return Tensor{}, errors.Errorf("tensor %q: unsupported dtype %v", name, t.Dtype())
	}
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Rank returns the number of dimensions.
func (t Tensor) Rank() int {
	return len(t.Shape)
}

// Squeeze returns a view of the tensor with every size-1 dimension removed.
//
// A tensor whose dimensions are all 1 squeezes to rank 1 so the single element stays
// addressable.
func (t Tensor) Squeeze() Tensor {
	shape := make([]int, 0, len(t.Shape))
	for _, d := range t.Shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	if len(shape) == 0 && len(t.Data) > 0 {
		shape = append(shape, len(t.Data))
	}
	return Tensor{Name: t.Name, Shape: shape, DType: t.DType, Data: t.Data}
}

func (t Tensor) String() string {
	return fmt.Sprintf("%s%v(%s)", t.Name, t.Shape, t.DType)
}

func checkShape(shape []int, n int) error {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return errors.Errorf("negative dimension in shape %v", shape)
		}
		size *= d
	}
	if len(shape) == 0 {
		size = 0
	}
	if size != n {
		return errors.Errorf("shape %v holds %d elements, got %d", shape, size, n)
	}
	return nil
}

func cloneShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
