// Package server - HTTP and websocket surface over the inference pipeline.
package server

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // register decoders
	"image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/models/postprocess"
	"github.com/nvr-ai/go-overlay/pipeline"
)

// Processor runs one frame through the model. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, frame image.Image, source string) (pipeline.Output, error)
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr" koanf:"addr"`
	// StaticDir is served at / when set.
	StaticDir string `json:"static_dir" yaml:"static_dir" koanf:"staticdir"`
	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" koanf:"maxuploadbytes"`
}

// DefaultConfig listens on :8080 and accepts uploads up to 16 MiB.
func DefaultConfig() Config {
	return Config{Addr: ":8080", MaxUploadBytes: 16 << 20}
}

// Server exposes prediction, annotation, health and the record stream.
type Server struct {
	cfg     Config
	proc    Processor
	hub     *Hub
	engine  *gin.Engine
	logger  *zap.Logger
	mu      sync.Mutex
	started time.Time
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// New builds the router.
//
// Arguments:
//   - cfg: The server configuration.
//   - proc: The frame processor; calls are serialized.
//   - hub: The record broadcast hub, may be nil to disable /ws.
//   - logger: The request logger.
//
// Returns:
//   - *Server: The server.
func New(cfg Config, proc Processor, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	s := &Server{cfg: cfg, proc: proc, hub: hub, logger: logger, started: time.Now()}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	if cfg.StaticDir != "" {
		engine.Use(static.Serve("/", static.LocalFile(cfg.StaticDir, false)))
	}
	engine.GET("/healthz", s.handleHealth)
	v1 := engine.Group("/v1")
	v1.POST("/predict", s.handlePredict)
	v1.POST("/annotate", s.handleAnnotate)
	if hub != nil {
		engine.GET("/ws", func(c *gin.Context) {
			hub.ServeWS(c.Writer, c.Request)
		})
	}
	s.engine = engine
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if s.hub != nil {
			s.hub.Close()
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.Clients()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"ws_clients": clients,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	out, ok := s.process(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, out.Record)
}

func (s *Server) handleAnnotate(c *gin.Context) {
	out, ok := s.process(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out.Frame); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// process decodes the uploaded image, runs it and publishes the record. It writes the
// error response itself and reports whether the caller should continue.
func (s *Server) process(c *gin.Context) (pipeline.Output, bool) {
	frame, err := s.readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return pipeline.Output{}, false
	}

	s.mu.Lock()
	out, err := s.proc.Process(c.Request.Context(), frame, c.ClientIP())
	s.mu.Unlock()
	if err != nil {
		var de *postprocess.DecodeError
		if errors.As(err, &de) {
			c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: de.Error(), Category: de.Category.String()})
			return pipeline.Output{}, false
		}
		s.logger.Error("process failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return pipeline.Output{}, false
	}

	if s.hub != nil {
		if err := s.hub.Publish(out.Record); err != nil {
			s.logger.Warn("broadcast failed", zap.Error(err))
		}
	}
	return out, true
}

// readImage accepts a multipart "image" field or a raw image body.
func (s *Server) readImage(c *gin.Context) (image.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	var r io.Reader = c.Request.Body
	// FormFile parses url-encoded bodies too, which would consume a raw upload
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, errors.Wrap(err, "read multipart image field")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "open upload")
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	format, ok := images.ParseFormat(name)
	if !ok {
		return nil, errors.Errorf("unsupported image format %q", name)
	}
	s.logger.Debug("upload decoded", zap.String("format", string(format)), zap.Int("bytes", len(data)))
	return img, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
