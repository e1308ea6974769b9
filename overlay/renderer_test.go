package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/models"
	"github.com/nvr-ai/go-overlay/models/postprocess"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	return img
}

func testLabels() *models.OutputClassSet {
	return models.NewOutputClassSet([]string{"background", "person", "bicycle"})
}

func TestRenderClassificationTopLabel(t *testing.T) {
	r := NewRenderer(DefaultConfig(), nil)
	res := postprocess.ClassificationResult{{ClassIndex: 1, Score: 0.875}, {ClassIndex: 2, Score: 0.1}}

	ann := r.Describe(res, testLabels(), Metadata{InferenceTime: 12340 * time.Microsecond, ModelName: "/models/mobilenet_v1.tflite", Source: "/dev/video1"}, image.Pt(640, 480))

	assert.Equal(t, []string{
		"MODEL: mobilenet_v1.tflite",
		"SOURCE: /dev/video1",
		"INFERENCE TIME: 12.34 ms",
		"person: 87.50%",
	}, ann.Lines)
	assert.Empty(t, ann.Boxes)
}

func TestRenderFramerateOnlyWhenEnabled(t *testing.T) {
	meta := Metadata{FPS: 29.97}

	off := NewRenderer(DefaultConfig(), nil).Describe(nil, nil, meta, image.Pt(10, 10))
	assert.NotContains(t, off.Lines, "FPS: 30.0")

	cfg := DefaultConfig()
	cfg.FramerateInfo = true
	on := NewRenderer(cfg, nil).Describe(nil, nil, meta, image.Pt(10, 10))
	assert.Contains(t, on.Lines, "FPS: 30.0")
	assert.Contains(t, on.Lines, "INFERENCE TIME: 0.00 ms")
}

func TestRenderDetectionBoxes(t *testing.T) {
	r := NewRenderer(DefaultConfig(), nil)
	res := postprocess.DetectionResult{
		{Box: images.Box{YMin: 0.25, XMin: 0.25, YMax: 0.75, XMax: 0.5}, ClassIndex: 2, Score: 0.9},
		{Box: images.Box{YMin: 0, XMin: 0, YMax: 0.1, XMax: 0.1}, ClassIndex: 1, Score: 0.6},
	}

	ann := r.Describe(res, testLabels(), Metadata{}, image.Pt(200, 100))
	require.Len(t, ann.Boxes, 2)
	assert.Equal(t, "bicycle", ann.Boxes[0].Label)
	assert.Equal(t, image.Rect(50, 25, 100, 75), ann.Boxes[0].ToRect())
	assert.Equal(t, "person", ann.Boxes[1].Label)
}

func TestRenderOutOfRangeLabelUsesPlaceholder(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewRenderer(DefaultConfig(), zap.New(core))
	frame := grayFrame(64, 64)

	cls := postprocess.ClassificationResult{{ClassIndex: 99, Score: 1}}
	ann := r.Describe(cls, testLabels(), Metadata{}, frame.Bounds().Size())
	assert.Contains(t, ann.Lines, "unknown: 100.00%")

	det := postprocess.DetectionResult{{Box: images.Box{YMax: 1, XMax: 1}, ClassIndex: -3, Score: 0.8}}
	out, err := r.Render(frame, det, testLabels(), Metadata{})
	require.NoError(t, err)
	require.NotNil(t, out)

	ann = r.Describe(det, nil, Metadata{}, frame.Bounds().Size())
	assert.Equal(t, "unknown", ann.Boxes[0].Label)

	require.GreaterOrEqual(t, logs.Len(), 1)
	assert.Equal(t, "substituting label placeholder", logs.All()[0].Message)
}

func TestRenderCustomPlaceholder(t *testing.T) {
	r := NewRenderer(Config{Placeholder: "n/a"}, nil)
	ann := r.Describe(postprocess.ClassificationResult{{ClassIndex: 7, Score: 0.5}}, testLabels(), Metadata{}, image.Pt(1, 1))
	assert.Contains(t, ann.Lines, "n/a: 50.00%")
}

func TestRenderDoesNotMutateSource(t *testing.T) {
	r := NewRenderer(DefaultConfig(), nil)
	src := grayFrame(120, 80)
	before := make([]uint8, len(src.Pix))
	copy(before, src.Pix)
	srcPtr := src

	res := postprocess.DetectionResult{{Box: images.Box{YMin: 0.1, XMin: 0.1, YMax: 0.9, XMax: 0.9}, ClassIndex: 1, Score: 0.99}}
	out, err := r.Render(src, res, testLabels(), Metadata{ModelName: "ssd.tflite", InferenceTime: time.Millisecond})
	require.NoError(t, err)

	assert.Same(t, srcPtr, src)
	assert.Equal(t, before, src.Pix)
	assert.NotSame(t, src, out)
	assert.NotEqual(t, before, out.Pix, "annotations should change the output")
	assert.Equal(t, src.Bounds(), out.Bounds())
}

func TestRenderDrawsBoxStroke(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BoxColor = color.RGBA{255, 0, 0, 255}
	r := NewRenderer(cfg, nil)
	src := grayFrame(100, 100)

	res := postprocess.DetectionResult{{Box: images.Box{YMin: 0.5, XMin: 0.5, YMax: 0.9, XMax: 0.9}, ClassIndex: 1, Score: 0.9}}
	out, err := r.Render(src, res, testLabels(), Metadata{})
	require.NoError(t, err)

	// bottom-right edge of the box is far from the header panel and the label tag
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, out.RGBAAt(89, 85))
	assert.Equal(t, color.RGBA{100, 100, 100, 100}, out.RGBAAt(70, 80))
}

func TestRenderNilSource(t *testing.T) {
	_, err := NewRenderer(DefaultConfig(), nil).Render(nil, nil, nil, Metadata{})
	assert.Error(t, err)
}

func TestRenderErrorMessage(t *testing.T) {
	err := &RenderError{Index: 5, Size: 3}
	assert.Equal(t, "label index 5 out of range for 3 labels", err.Error())
}
