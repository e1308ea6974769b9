// Package app - Builds the pipeline and its consumers from an AppConfig.
package app

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/config"
	"github.com/nvr-ai/go-overlay/inference"
	"github.com/nvr-ai/go-overlay/models"
	"github.com/nvr-ai/go-overlay/models/postprocess"
	"github.com/nvr-ai/go-overlay/overlay"
	"github.com/nvr-ai/go-overlay/pipeline"
	"github.com/nvr-ai/go-overlay/results"
	"github.com/nvr-ai/go-overlay/tensors"
)

// App owns the resources behind a pipeline.
type App struct {
	Pipeline *pipeline.Pipeline
	Labels   *models.OutputClassSet
	source   tensors.Source
	recorder *results.Recorder
}

// New loads the label table and model, opens the record log when enabled and wires the
// pipeline. extra publishers receive every record after the recorder.
func New(cfg config.AppConfig, logger *zap.Logger, extra ...pipeline.Publisher) (*App, error) {
	var labels *models.OutputClassSet
	if cfg.Labels != "" {
		var err error
		if labels, err = models.LoadClasses(cfg.Labels); err != nil {
			return nil, err
		}
		logger.Info("labels loaded", zap.String("path", cfg.Labels), zap.Int("count", labels.Len()))
	}

	src, err := inference.NewSource(cfg.Model, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open model")
	}

	a := &App{Labels: labels, source: src}
	var pubs []pipeline.Publisher
	if cfg.Record.Enabled {
		if a.recorder, err = results.Create(cfg.Record.Dir, "overlay"); err != nil {
			_ = src.Close()
			return nil, err
		}
		logger.Info("recording results", zap.String("path", a.recorder.Path()))
		pubs = append(pubs, a.recorder)
	}
	pubs = append(pubs, extra...)

	var lbl overlay.Labels
	if labels != nil {
		lbl = labels
	}
	a.Pipeline = pipeline.New(pipeline.Config{
		Category:  cfg.CategoryValue(),
		ModelName: cfg.Model.Path,
	}, src,
		postprocess.NewDecoder(cfg.Decoder),
		overlay.NewRenderer(cfg.Overlay, logger.Named("overlay")),
		lbl, logger.Named("pipeline"), pubs...)
	return a, nil
}

// Close releases the model and flushes the record log.
func (a *App) Close() error {
	var err error
	if a.recorder != nil {
		err = a.recorder.Close()
	}
	if cerr := a.source.Close(); err == nil {
		err = cerr
	}
	return err
}
