// Command overlay-server serves predictions and annotated frames over HTTP and streams
// records to websocket clients.
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
	"github.com/nvr-ai/go-overlay/server"
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

	// records reach websocket clients from the HTTP handlers, not the pipeline
	hub := server.NewHub(log.Named("ws"))
	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("start", zap.Error(err))
	}
	defer a.Close()

	srv := server.New(cfg.Server, a.Pipeline, hub, log.Named("http"))
	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}
