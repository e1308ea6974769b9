// Package overlay - Burns decoded inference results into a copy of a video frame.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/common"
	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/models/postprocess"
)

// DefaultPlaceholder is rendered for class indices the label table does not cover.
const DefaultPlaceholder = "unknown"

// Labels resolves class indices to names.
type Labels interface {
	Name(index int) (string, bool)
	Len() int
}

// Metadata describes the inference run that produced a result.
type Metadata struct {
	InferenceTime time.Duration
	ModelName     string
	Source        string
	// FPS is only rendered when Config.FramerateInfo is set.
	FPS float64
}

// Config controls what the renderer draws.
type Config struct {
	// FramerateInfo adds a frame rate line to the header.
	FramerateInfo bool `json:"framerate_info" yaml:"framerate_info" koanf:"framerateinfo"`
	// Placeholder replaces labels for out-of-range class indices.
	Placeholder string `json:"placeholder" yaml:"placeholder" koanf:"placeholder"`
	// BoxThickness is the detection rectangle stroke in pixels.
	BoxThickness int `json:"box_thickness" yaml:"box_thickness" koanf:"boxthickness"`

	TextColor       color.RGBA `json:"-" yaml:"-" koanf:"-"`
	BoxColor        color.RGBA `json:"-" yaml:"-" koanf:"-"`
	BackgroundColor color.RGBA `json:"-" yaml:"-" koanf:"-"`
}

// DefaultConfig returns white text on a translucent panel and green boxes.
func DefaultConfig() Config {
	return Config{
		Placeholder:     DefaultPlaceholder,
		BoxThickness:    2,
		TextColor:       color.RGBA{255, 255, 255, 255},
		BoxColor:        color.RGBA{0, 255, 0, 255},
		BackgroundColor: color.RGBA{0, 0, 0, 160},
	}
}

// RenderError reports a class index outside the label table. The renderer recovers from
// it by drawing the placeholder; it is never returned to callers.
type RenderError struct {
	Index int
	Size  int
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("label index %d out of range for %d labels", e.Index, e.Size)
}

// Annotation is everything the renderer will draw for one frame.
type Annotation struct {
	// Lines is the header text, top to bottom.
	Lines []string
	// Boxes are detection boxes in frame pixel coordinates.
	Boxes []common.BoundingBox
}

// Renderer draws annotations. It keeps no per-frame state.
type Renderer struct {
	cfg    Config
	logger *zap.Logger
}

// NewRenderer creates a renderer. Zero-valued colours and thickness fall back to the
// defaults, as does an empty placeholder.
func NewRenderer(cfg Config, logger *zap.Logger) *Renderer {
	def := DefaultConfig()
	if cfg.Placeholder == "" {
		cfg.Placeholder = def.Placeholder
	}
	if cfg.BoxThickness <= 0 {
		cfg.BoxThickness = def.BoxThickness
	}
	if cfg.TextColor == (color.RGBA{}) {
		cfg.TextColor = def.TextColor
	}
	if cfg.BoxColor == (color.RGBA{}) {
		cfg.BoxColor = def.BoxColor
	}
	if cfg.BackgroundColor == (color.RGBA{}) {
		cfg.BackgroundColor = def.BackgroundColor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Config returns the effective configuration, defaults applied.
func (r *Renderer) Config() Config {
	return r.cfg
}

// Render returns an annotated copy of src.
//
// src is only read; the returned image is newly allocated and owned by the caller, so the
// un-annotated frame can still be used elsewhere.
//
// Arguments:
//   - src: The frame to annotate.
//   - res: The decoded result, may be nil to draw only the header.
//   - labels: The label table, may be nil.
//   - meta: Timing and naming information for the header.
//
// Returns:
//   - *image.RGBA: The annotated frame.
//   - error: Only when src is nil.
func (r *Renderer) Render(src image.Image, res postprocess.Result, labels Labels, meta Metadata) (*image.RGBA, error) {
	if src == nil {
		return nil, errors.New("render: nil source image")
	}
	dst := images.CloneRGBA(src)
	ann := r.Describe(res, labels, meta, dst.Bounds().Size())

	for _, box := range ann.Boxes {
		rect := box.ToRect()
		strokeRect(dst, rect, r.cfg.BoxThickness, r.cfg.BoxColor)
		drawLabel(dst, box.Caption(), rect.Min, r.cfg.TextColor, r.cfg.BoxColor)
	}
	drawPanel(dst, ann.Lines, r.cfg.TextColor, r.cfg.BackgroundColor)
	return dst, nil
}

// Describe computes the text and boxes Render would draw on a frame of the given size.
func (r *Renderer) Describe(res postprocess.Result, labels Labels, meta Metadata, size image.Point) Annotation {
	var ann Annotation
	if meta.ModelName != "" {
		ann.Lines = append(ann.Lines, "MODEL: "+filepath.Base(meta.ModelName))
	}
	if meta.Source != "" {
		ann.Lines = append(ann.Lines, "SOURCE: "+meta.Source)
	}
	ann.Lines = append(ann.Lines, fmt.Sprintf("INFERENCE TIME: %.2f ms", float64(meta.InferenceTime.Microseconds())/1000))
	if r.cfg.FramerateInfo {
		ann.Lines = append(ann.Lines, fmt.Sprintf("FPS: %.1f", meta.FPS))
	}

	switch res := res.(type) {
	case postprocess.ClassificationResult:
		if top, ok := res.Top(); ok {
			ann.Lines = append(ann.Lines, fmt.Sprintf("%s: %.2f%%", r.label(labels, top.ClassIndex), top.Score*100))
		}
	case postprocess.DetectionResult:
		for _, det := range res {
			rect := det.Box.ToRect(size.X, size.Y)
			ann.Boxes = append(ann.Boxes, common.BoundingBox{
				Label:      r.label(labels, det.ClassIndex),
				Confidence: det.Score,
				X1:         float32(rect.Min.X),
				Y1:         float32(rect.Min.Y),
				X2:         float32(rect.Max.X),
				Y2:         float32(rect.Max.Y),
			})
		}
	}
	return ann
}

func (r *Renderer) label(labels Labels, idx int) string {
	if labels != nil {
		if name, ok := labels.Name(idx); ok {
			return name
		}
	}
	size := 0
	if labels != nil {
		size = labels.Len()
	}
	r.logger.Debug("substituting label placeholder",
		zap.Error(&RenderError{Index: idx, Size: size}),
		zap.String("placeholder", r.cfg.Placeholder))
	return r.cfg.Placeholder
}
