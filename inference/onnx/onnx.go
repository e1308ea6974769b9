// Package onnx - ONNX Runtime tensor source.
package onnx

import (
	"context"
	"image"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	gtensor "gorgonia.org/tensor"

	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/tensors"
)

// Provider is an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA Provider = "cuda"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
	// ProviderCoreML uses Apple CoreML.
	ProviderCoreML Provider = "coreml"
)

// Options configures the session.
type Options struct {
	ModelPath string
	// SharedLibPath points at the onnxruntime shared library; empty uses DefaultSharedLibPath.
	SharedLibPath string
	// Threads is the intra-op thread count, 0 keeps the runtime default.
	Threads int
	// Accelerated tries Providers in order; CPU is always the fallback.
	Accelerated bool
	Providers   []Provider
}

var envOnce sync.Once

// Source runs an ONNX model whose first input is a [1, 3, H, W] float32 image.
type Source struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []ort.Value
	names   []string
	size    image.Point
	resizer *images.Resizer
	logger  *zap.Logger
	once    sync.Once
}

// DefaultSharedLibPath returns where the onnxruntime library is installed by default.
func DefaultSharedLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// New opens the model, discovering input and output names and shapes from the model file.
//
// Arguments:
//   - opts: The model path and session options.
//   - logger: The logger for provider diagnostics.
//
// Returns:
//   - *Source: A ready tensor source.
//   - error: If the runtime or session cannot be created.
func New(opts Options, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := initEnvironment(opts.SharedLibPath); err != nil {
		return nil, err
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read model info %s", opts.ModelPath)
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		return nil, errors.Errorf("model %s has no inputs or outputs", opts.ModelPath)
	}
	in := inputsInfo[0]
	inShape := staticShape(in.Dimensions)
	if len(inShape) != 4 || inShape[1] != 3 || in.DataType != ort.TensorElementDataTypeFloat {
		return nil, errors.Errorf("unsupported input %s %v", in.Name, in.Dimensions)
	}
	size := image.Pt(int(inShape[3]), int(inShape[2]))

	input, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	outputs := make([]ort.Value, 0, len(outputsInfo))
	names := make([]string, 0, len(outputsInfo))
	cleanup := func() {
		input.Destroy()
		for _, o := range outputs {
			o.Destroy()
		}
	}
	for _, info := range outputsInfo {
		out, err := newOutput(info)
		if err != nil {
			cleanup()
			return nil, err
		}
		outputs = append(outputs, out)
		names = append(names, info.Name)
	}

	options, err := sessionOptions(opts, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{in.Name}, names,
		[]ort.Value{input}, outputs, options)
	if err != nil {
		cleanup()
		return nil, errors.Wrap(err, "create session")
	}

	logger.Info("onnx model loaded",
		zap.String("model", opts.ModelPath),
		zap.String("input", in.Name),
		zap.Strings("outputs", names))

	return &Source{
		session: session,
		input:   input,
		outputs: outputs,
		names:   names,
		size:    size,
		resizer: images.NewResizer(size),
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
	images.PackCHW(s.resizer.Resize(frame), s.input.GetData(), 0, 255)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	set := make(tensors.Set, 0, len(s.outputs))
	for i, out := range s.outputs {
		t, err := convert(s.names[i], out)
		if err != nil {
			return nil, err
		}
		set = append(set, t)
	}
	return set, nil
}

// Close implements tensors.Source.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		err = s.session.Destroy()
		s.input.Destroy()
		for _, o := range s.outputs {
			o.Destroy()
		}
	})
	return err
}

func initEnvironment(libPath string) error {
	var err error
	envOnce.Do(func() {
		if libPath == "" {
			libPath = DefaultSharedLibPath()
		}
		if _, statErr := os.Stat(libPath); statErr != nil {
			err = errors.Wrapf(statErr, "onnxruntime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		err = errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime")
	})
	if err == nil && !ort.IsInitialized() {
		return errors.New("onnxruntime environment is not initialized")
	}
	return err
}

func sessionOptions(opts Options, logger *zap.Logger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "set threads")
		}
	}
	if !opts.Accelerated {
		return options, nil
	}
	for _, p := range opts.Providers {
		if err := appendProvider(options, p); err != nil {
			logger.Warn("execution provider unavailable", zap.String("provider", string(p)), zap.Error(err))
			continue
		}
		logger.Info("execution provider enabled", zap.String("provider", string(p)))
	}
	return options, nil
}

func appendProvider(options *ort.SessionOptions, p Provider) error {
	switch p {
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return options.AppendExecutionProviderCUDA(cuda)
	case ProviderOpenVINO:
		return options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	case ProviderCoreML:
		return options.AppendExecutionProviderCoreML(0)
	default:
		return errors.Errorf("unknown provider %q", p)
	}
}

func newOutput(info ort.InputOutputInfo) (ort.Value, error) {
	shape := staticShape(info.Dimensions)
	var (
		v   ort.Value
		err error
	)
	switch info.DataType {
	case ort.TensorElementDataTypeFloat:
		v, err = ort.NewEmptyTensor[float32](shape)
	case ort.TensorElementDataTypeUint8:
		v, err = ort.NewEmptyTensor[uint8](shape)
	case ort.TensorElementDataTypeInt64:
		v, err = ort.NewEmptyTensor[int64](shape)
	default:
		return nil, errors.Errorf("output %s: unsupported element type %v", info.Name, info.DataType)
	}
	return v, errors.Wrapf(err, "create output %s", info.Name)
}

func convert(name string, v ort.Value) (tensors.Tensor, error) {
	shape := make([]int, 0, len(v.GetShape()))
	for _, d := range v.GetShape() {
		shape = append(shape, int(d))
	}
	var backing interface{}
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		backing = t.GetData()
	case *ort.Tensor[uint8]:
		backing = t.GetData()
	case *ort.Tensor[int64]:
		backing = t.GetData()
	default:
		return tensors.Tensor{}, errors.Errorf("output %s: unsupported value type %T", name, v)
	}
	dense := gtensor.New(gtensor.WithShape(shape...), gtensor.WithBacking(backing))
	return tensors.FromDense(name, dense)
}

// staticShape replaces dynamic (negative) dimensions with 1.
func staticShape(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}
