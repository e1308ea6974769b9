// Package tflite - TensorFlow Lite tensor source.
package tflite

import (
	"context"
	"image"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/tensors"
)

// Options configures the interpreter.
type Options struct {
	ModelPath string
	// Threads is the interpreter thread count, 0 keeps the TFLite default.
	Threads int
	// Accelerated adds the first Edge TPU delegate when one is present.
	Accelerated bool
}

// Source runs a TFLite model. It is not safe for concurrent use.
type Source struct {
	model   *tflite.Model
	interp  *tflite.Interpreter
	input   *tflite.Tensor
	size    image.Point
	resizer *images.Resizer
	buf     []uint8
	logger  *zap.Logger
	once    sync.Once
}

// New loads the model and allocates its tensors.
//
// Arguments:
//   - opts: The model path and interpreter options.
//   - logger: The logger for delegate and shape diagnostics.
//
// Returns:
//   - *Source: A ready tensor source.
//   - error: If the model cannot be loaded or its input is not a [1, H, W, 3] image.
func New(opts Options, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := tflite.NewModelFromFile(opts.ModelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load model %s", opts.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if opts.Threads > 0 {
		options.SetNumThread(opts.Threads)
	}
	if opts.Accelerated {
		devices, err := edgetpu.DeviceList()
		switch {
		case err != nil:
			logger.Warn("could not list Edge TPU devices", zap.Error(err))
		case len(devices) == 0:
			logger.Info("no Edge TPU devices found, running on CPU")
		default:
			options.AddDelegate(edgetpu.New(devices[0]))
			logger.Info("using Edge TPU delegate", zap.String("device", devices[0].Path))
		}
	}

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		model.Delete()
		return nil, errors.New("cannot create interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		model.Delete()
		return nil, errors.Errorf("allocate tensors failed: %v", status)
	}

	input := interp.GetInputTensor(0)
	if input.NumDims() != 4 || input.Dim(3) != 3 {
		interp.Delete()
		model.Delete()
		return nil, errors.Errorf("unsupported input shape %v", shapeOf(input))
	}
	size := image.Pt(input.Dim(2), input.Dim(1))

	logger.Info("tflite model loaded",
		zap.String("model", opts.ModelPath),
		zap.Ints("input_shape", shapeOf(input)),
		zap.Any("input_type", input.Type()),
		zap.Int("outputs", interp.GetOutputTensorCount()))

	return &Source{
		model:   model,
		interp:  interp,
		input:   input,
		size:    size,
		resizer: images.NewResizer(size),
		buf:     make([]uint8, size.X*size.Y*3),
		logger:  logger,
	}, nil
}

// InputSize implements tensors.Source.
func (s *Source) InputSize() image.Point {
	return s.size
}

// Produce implements tensors.Source.
func (s *Source) Produce(ctx context.Context, frame image.Image) (tensors.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rgba := s.resizer.Resize(frame)
	images.PackHWC(rgba, s.buf)

	switch s.input.Type() {
	case tflite.UInt8:
		copy(s.input.UInt8s(), s.buf)
	case tflite.Float32:
		dst := s.input.Float32s()
		for i, v := range s.buf {
			dst[i] = (float32(v) - 127.5) / 127.5
		}
	default:
		return nil, errors.Errorf("unsupported input type %v", s.input.Type())
	}

	if status := s.interp.Invoke(); status != tflite.OK {
		return nil, errors.Errorf("invoke failed: %v", status)
	}

	n := s.interp.GetOutputTensorCount()
	set := make(tensors.Set, 0, n)
	for i := 0; i < n; i++ {
		out := s.interp.GetOutputTensor(i)
		t, err := convert(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		set = append(set, t)
	}
	return set, nil
}

// Close implements tensors.Source.
func (s *Source) Close() error {
	s.once.Do(func() {
		s.interp.Delete()
		s.model.Delete()
	})
	return nil
}

func convert(out *tflite.Tensor) (tensors.Tensor, error) {
	switch out.Type() {
	case tflite.UInt8:
		return tensors.NewUint8(out.Name(), shapeOf(out), out.UInt8s())
	case tflite.Float32:
		return tensors.NewFloat32(out.Name(), shapeOf(out), out.Float32s())
	default:
		return tensors.Tensor{}, errors.Errorf("unsupported output type %v", out.Type())
	}
}

func shapeOf(t *tflite.Tensor) []int {
	shape := make([]int, 0, t.NumDims())
	for i := 0; i < t.NumDims(); i++ {
		shape = append(shape, t.Dim(i))
	}
	return shape
}
