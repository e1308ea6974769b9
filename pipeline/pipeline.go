// Package pipeline - The capture, infer, decode, render and display loop.
package pipeline

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/models/postprocess"
	"github.com/nvr-ai/go-overlay/overlay"
	"github.com/nvr-ai/go-overlay/profiler"
	"github.com/nvr-ai/go-overlay/results"
	"github.com/nvr-ai/go-overlay/tensors"
)

// ErrStop is returned by a FrameSource or Sink to end Run cleanly, e.g. when the
// display window is closed.
var ErrStop = errors.New("pipeline stopped")

// FrameSource yields frames. Read returns io.EOF when the source is exhausted.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
	Name() string
	Close() error
}

// Sink displays annotated frames.
type Sink interface {
	Show(title string, frame image.Image) error
}

// Publisher receives a record for every decoded frame.
type Publisher interface {
	Publish(rec results.Record) error
}

// Config holds pipeline options.
type Config struct {
	// Category selects how model outputs are decoded.
	Category postprocess.Category
	// ModelName is shown in the header and stored in records.
	ModelName string
	// Title is the display window title.
	Title string
}

// Output is what one processed frame produced.
type Output struct {
	Result postprocess.Result
	Record results.Record
	Frame  *image.RGBA
}

// Stats summarizes a pipeline run.
type Stats struct {
	Frames    uint64
	Skipped   uint64
	FPS       float64
	Inference profiler.Stats
}

// Pipeline is single-threaded; callers serialize access.
type Pipeline struct {
	cfg        Config
	source     tensors.Source
	decoder    *postprocess.Decoder
	renderer   *overlay.Renderer
	labels     overlay.Labels
	publishers []Publisher
	timer      *profiler.TimeTracker
	framerate  *profiler.Framerate
	logger     *zap.Logger

	frames  uint64
	skipped uint64
}

// New wires a pipeline.
//
// Arguments:
//   - cfg: The pipeline options.
//   - source: The model tensor source.
//   - decoder: The output decoder.
//   - renderer: The overlay renderer.
//   - labels: The label table, may be nil.
//   - logger: The logger.
//   - publishers: Record consumers.
//
// Returns:
//   - *Pipeline: The pipeline.
func New(cfg Config, source tensors.Source, decoder *postprocess.Decoder, renderer *overlay.Renderer, labels overlay.Labels, logger *zap.Logger, publishers ...Publisher) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "overlay"
	}
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		decoder:    decoder,
		renderer:   renderer,
		labels:     labels,
		publishers: publishers,
		timer:      profiler.NewTimeTracker("inference"),
		framerate:  profiler.NewFramerate(),
		logger:     logger,
	}
}

// Process runs one frame through inference, decoding and rendering.
// Decode failures are returned as *postprocess.DecodeError.
func (p *Pipeline) Process(ctx context.Context, frame image.Image, sourceName string) (Output, error) {
	if frame == nil {
		return Output{}, errors.New("nil frame")
	}
	var set tensors.Set
	elapsed, err := p.timer.Time(func() error {
		var perr error
		set, perr = p.source.Produce(ctx, frame)
		return perr
	})
	if err != nil {
		return Output{}, errors.Wrap(err, "inference")
	}

	res, err := p.decoder.Decode(set, p.cfg.Category)
	if err != nil {
		return Output{}, err
	}

	p.frames++
	model := filepath.Base(p.cfg.ModelName)
	rendered, err := p.renderer.Render(frame, res, p.labels, overlay.Metadata{
		InferenceTime: elapsed,
		ModelName:     model,
		Source:        sourceName,
		FPS:           p.framerate.FPS(),
	})
	if err != nil {
		return Output{}, err
	}

	rec := results.NewRecord(res, p.labels, p.renderer.Config().Placeholder)
	rec.Frame = p.frames
	rec.Source = sourceName
	rec.Model = model
	rec.InferenceTime = elapsed

	return Output{Result: res, Record: rec, Frame: rendered}, nil
}

// Step reads one frame, processes it, publishes the record and shows the overlay.
// A frame whose outputs cannot be decoded is logged and skipped without being shown.
func (p *Pipeline) Step(ctx context.Context, src FrameSource, sink Sink) error {
	frame, err := src.Read(ctx)
	if err != nil {
		return err
	}
	p.framerate.Tick()

	out, err := p.Process(ctx, frame, src.Name())
	if err != nil {
		if postprocess.IsDecodeError(err) {
			p.skipped++
			p.logger.Warn("skipping frame", zap.String("source", src.Name()), zap.Error(err))
			return nil
		}
		return err
	}

	for _, pub := range p.publishers {
		if err := pub.Publish(out.Record); err != nil {
			p.logger.Warn("publish failed", zap.Error(err))
		}
	}

	if sink != nil {
		if err := sink.Show(p.cfg.Title, out.Frame); err != nil {
			return err
		}
	}
	return nil
}

// Run steps until the source is exhausted, the context is cancelled, or a source, inference
// or sink error occurs. io.EOF and ErrStop end the run without error.
func (p *Pipeline) Run(ctx context.Context, src FrameSource, sink Sink) error {
	p.logger.Info("pipeline started",
		zap.String("source", src.Name()),
		zap.String("model", p.cfg.ModelName),
		zap.Stringer("category", p.cfg.Category))
	start := time.Now()

	var err error
	for err == nil {
		if err = ctx.Err(); err != nil {
			break
		}
		err = p.Step(ctx, src, sink)
	}

	stats := p.Stats()
	p.logger.Info("pipeline finished",
		zap.Uint64("frames", stats.Frames),
		zap.Uint64("skipped", stats.Skipped),
		zap.Duration("avg_inference", stats.Inference.Average),
		zap.Duration("elapsed", time.Since(start)))

	if errors.Is(err, io.EOF) || errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// Stats returns counters for the frames processed so far.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:    p.frames,
		Skipped:   p.skipped,
		FPS:       p.framerate.FPS(),
		Inference: p.timer.Stats(),
	}
}
