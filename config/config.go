// Package config - Application configuration from defaults, a YAML file and OVERLAY_ environment variables.
package config

import (
	"flag"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-overlay/inference/backend"
	"github.com/nvr-ai/go-overlay/models/postprocess"
	"github.com/nvr-ai/go-overlay/overlay"
	"github.com/nvr-ai/go-overlay/server"
)

// EnvPrefix marks environment overrides. OVERLAY_DECODER_TOPK sets decoder.topk.
const EnvPrefix = "OVERLAY_"

// SourceConfig selects where frames come from. Exactly one of Device and Dir is used;
// Dir wins when both are set.
type SourceConfig struct {
	// Device is a camera index, device path, video file or stream URL.
	Device string `koanf:"device"`
	// Dir is a directory of still images.
	Dir string `koanf:"dir"`
	// Loop replays Dir forever.
	Loop bool `koanf:"loop"`
	// Display opens a window for the overlay.
	Display bool `koanf:"display"`
}

// RecordConfig enables the CBOR record log.
type RecordConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug bool `koanf:"debug"`
}

// AppConfig is the whole configuration.
type AppConfig struct {
	Model    backend.Config     `koanf:"model"`
	Labels   string             `koanf:"labels"`
	Category string             `koanf:"category"`
	Decoder  postprocess.Config `koanf:"decoder"`
	Overlay  overlay.Config     `koanf:"overlay"`
	Source   SourceConfig       `koanf:"source"`
	Server   server.Config      `koanf:"server"`
	Record   RecordConfig       `koanf:"record"`
	Log      LogConfig          `koanf:"log"`
}

var defaults = map[string]any{
	"category":               "classification",
	"decoder.scale":          postprocess.DefaultScale,
	"decoder.topk":           postprocess.DefaultTopK,
	"decoder.scorethreshold": postprocess.DefaultScoreThreshold,
	"overlay.placeholder":    overlay.DefaultPlaceholder,
	"overlay.boxthickness":   overlay.DefaultConfig().BoxThickness,
	"source.device":          "0",
	"source.display":         true,
	"server.addr":            server.DefaultConfig().Addr,
	"server.maxuploadbytes":  server.DefaultConfig().MaxUploadBytes,
	"record.dir":             "records",
}

// Load reads the configuration. An empty path skips the file; a named file must exist.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - AppConfig: The validated configuration.
//   - error: If a layer cannot be read or validation fails.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return cfg, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, errors.Wrapf(err, "load %s", path)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return cfg, errors.Wrap(err, "load environment")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config")
	}

	return cfg, Validate(&cfg)
}

// Validate checks values the components cannot default.
func Validate(cfg *AppConfig) error {
	if cfg.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if _, err := backend.Resolve(cfg.Model); err != nil {
		return errors.Wrap(err, "model")
	}
	if _, err := postprocess.ParseCategory(cfg.Category); err != nil {
		return err
	}
	if cfg.Decoder.Scale <= 0 {
		return errors.Errorf("decoder.scale must be positive, got %v", cfg.Decoder.Scale)
	}
	if cfg.Decoder.TopK <= 0 {
		return errors.Errorf("decoder.topk must be positive, got %d", cfg.Decoder.TopK)
	}
	if t := cfg.Decoder.ScoreThreshold; t < 0 || t > 1 {
		return errors.Errorf("decoder.scorethreshold must be within [0, 1], got %v", t)
	}
	if nms := cfg.Decoder.NMS; nms != nil && (nms.IoUThreshold <= 0 || nms.IoUThreshold > 1) {
		return errors.Errorf("decoder.nms.iouthreshold must be within (0, 1], got %v", nms.IoUThreshold)
	}
	if cfg.Record.Enabled && cfg.Record.Dir == "" {
		return errors.New("record.dir is required when recording")
	}
	return nil
}

// CategoryValue returns the parsed result category.
func (c AppConfig) CategoryValue() postprocess.Category {
	cat, _ := postprocess.ParseCategory(c.Category)
	return cat
}

var defaultConfigPath = "configs/config.yaml"

// ParseConfigFlag returns the -file flag value from args.
func ParseConfigFlag(args []string) string {
	fs := flag.NewFlagSet("overlay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	_ = fs.Parse(args)
	return *configPath
}
