// Package config loads kaleido's settings from a YAML file and KALEIDO_*
// environment variables, and watches the file for control range changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KALEIDO_"

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Render    RenderConfig    `yaml:"render"`
	Detectors DetectorsConfig `yaml:"detectors"`
	Log       logging.Options `yaml:"log"`
	Tray      bool            `yaml:"tray"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	StaticDir string `yaml:"static_dir"`
	// Control messages each websocket may send per second
	WSRate  float64 `yaml:"ws_rate" validate:"gt=0"`
	WSBurst int     `yaml:"ws_burst" validate:"gte=1"`
}

type CameraConfig struct {
	Device int `yaml:"device" validate:"gte=0"`
	Width  int `yaml:"width" validate:"gte=0,lte=8192"`
	Height int `yaml:"height" validate:"gte=0,lte=8192"`
	FPS    int `yaml:"fps" validate:"gte=1,lte=120"`
}

type RenderConfig struct {
	Zoom        controls.Range    `yaml:"zoom"`
	Speed       controls.Range    `yaml:"speed"`
	Viewport    controls.Viewport `yaml:"viewport"`
	RefreshRate int               `yaml:"refresh_rate" validate:"gte=1,lte=240"`
	JPEGQuality int               `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
	Overlays    bool              `yaml:"overlays"`
}

type DetectorsConfig struct {
	Enabled bool            `yaml:"enabled"`
	Face    detector.Config `yaml:"face"`
	Hands   detector.Config `yaml:"hands"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    "127.0.0.1:8080",
			WSRate:  30,
			WSBurst: 10,
		},
		Camera: CameraConfig{
			Device: 0,
			Width:  capture.DefaultWidth,
			Height: capture.DefaultHeight,
			FPS:    capture.DefaultFPS,
		},
		Render: RenderConfig{
			Zoom:        controls.DefaultZoom,
			Speed:       controls.DefaultSpeed,
			Viewport:    controls.Viewport{Width: 1280, Height: 720},
			RefreshRate: 60,
			JPEGQuality: capture.DefaultJPEGQuality,
			Overlays:    true,
		},
		Detectors: DetectorsConfig{
			Enabled: true,
			Face:    detector.DefaultFaceConfig(),
			Hands:   detector.DefaultHandConfig(),
		},
		Log: logging.DefaultOptions(),
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Kinds are fixed by position, not by the file
	cfg.Detectors.Face.Kind = detector.KindFace
	cfg.Detectors.Hands.Kind = detector.KindHands

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and that each range default lies inside
// its range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Render.Viewport.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, r := range map[string]controls.Range{"zoom": c.Render.Zoom, "speed": c.Render.Speed} {
		if r.Default < r.Min || r.Default > r.Max {
			return fmt.Errorf("invalid config: %s default %v outside [%v, %v]", name, r.Default, r.Min, r.Max)
		}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from KALEIDO_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}

	str("ADDR", &c.Server.Addr)
	str("STATIC_DIR", &c.Server.StaticDir)
	num("CAMERA", &c.Camera.Device)
	num("CAMERA_WIDTH", &c.Camera.Width)
	num("CAMERA_HEIGHT", &c.Camera.Height)
	num("JPEG_QUALITY", &c.Render.JPEGQuality)
	flag("DETECTORS", &c.Detectors.Enabled)
	flag("OVERLAYS", &c.Render.Overlays)
	flag("TRAY", &c.Tray)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}
