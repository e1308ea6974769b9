// Command overlay runs a model over a camera, video or image directory and shows the
// annotated frames.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-overlay/app"
	"github.com/nvr-ai/go-overlay/config"
	"github.com/nvr-ai/go-overlay/logger"
	"github.com/nvr-ai/go-overlay/pipeline"
	"github.com/nvr-ai/go-overlay/pipeline/gocvio"
)

func main() {
	cfg, err := config.Load(config.ParseConfigFlag(os.Args[1:]))
	if err != nil {
		logger.New(false).Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.Log.Debug)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("overlay failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, log *zap.Logger) error {
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var src pipeline.FrameSource
	if cfg.Source.Dir != "" {
		dir, err := pipeline.NewDirSource(cfg.Source.Dir)
		if err != nil {
			return err
		}
		dir.Loop = cfg.Source.Loop
		src = dir
	} else {
		capture, err := gocvio.OpenCapture(cfg.Source.Device)
		if err != nil {
			return err
		}
		src = capture
	}
	defer src.Close()

	var sink pipeline.Sink
	if cfg.Source.Display {
		window := gocvio.NewWindow("overlay")
		defer window.Close()
		sink = window
	}

	return a.Pipeline.Run(ctx, src, sink)
}
