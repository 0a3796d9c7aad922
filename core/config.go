package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Instance InstanceConfiguration
	Log      LogConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	Frame            renderer.Configuration
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// ShaderDirectory holds compiled name.type.spv files. Ignored when
	// ShaderArchive is set or ShaderEmbedded is true.
	ShaderDirectory string
	ShaderArchive   string

	// ShaderEmbedded serves shaders from the packr box built into the binary.
	ShaderEmbedded bool
}

// InstanceConfiguration is used to configure the graphics instance
type InstanceConfiguration struct {
	ApplicationName string
	Debug           bool
	Extensions      []string
	Layers          []string
}

// LogConfiguration selects the log level and output format
type LogConfiguration struct {
	Level string

	// Format is either "text" or "json"
	Format string
}

// Environment variables read by LoadConfiguration.
const (
	EnvFramesPerSecond   = "VKFRAME_FPS"
	EnvEventPollDelay    = "VKFRAME_EVENT_POLL_MS"
	EnvWidth             = "VKFRAME_WIDTH"
	EnvHeight            = "VKFRAME_HEIGHT"
	EnvFenceTimeout      = "VKFRAME_FENCE_TIMEOUT"
	EnvDescriptorMaxSets = "VKFRAME_DESCRIPTOR_MAX_SETS"
	EnvDescriptorGrowth  = "VKFRAME_DESCRIPTOR_GROWTH"
	EnvPresentMode       = "VKFRAME_PRESENT_MODE"
	EnvShaderDirectory   = "VKFRAME_SHADER_DIR"
	EnvShaderArchive     = "VKFRAME_SHADER_ARCHIVE"
	EnvShaderEmbedded    = "VKFRAME_SHADER_EMBEDDED"
	EnvDebug             = "VKFRAME_DEBUG"
	EnvLogLevel          = "VKFRAME_LOG_LEVEL"
	EnvLogFormat         = "VKFRAME_LOG_FORMAT"
)

const defaultApplicationName = "vkframe"

// DefaultConfiguration returns the configuration used when nothing is overridden.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  5,
		},
		Renderer: RendererConfiguration{
			Frame:           renderer.DefaultConfiguration(),
			ScreenWidth:     1280,
			ScreenHeight:    720,
			ShaderDirectory: "shaders",
		},
		Instance: InstanceConfiguration{
			ApplicationName: defaultApplicationName,
		},
		Log: LogConfiguration{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfiguration reads the given .env files, then overrides the defaults
// with any VKFRAME_* variable that is set. Variables already present in the
// environment take precedence over the files. Missing files are ignored.
func LoadConfiguration(files ...string) (Configuration, error) {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Configuration{}, errors.Wrapf(err, "load %s", f)
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	env := envReader{}

	cfg.Time.FramesPerSecond = env.integer(EnvFramesPerSecond, cfg.Time.FramesPerSecond)
	cfg.Time.EventPollDelay = env.integer(EnvEventPollDelay, cfg.Time.EventPollDelay)
	cfg.Renderer.ScreenWidth = env.uint32(EnvWidth, cfg.Renderer.ScreenWidth)
	cfg.Renderer.ScreenHeight = env.uint32(EnvHeight, cfg.Renderer.ScreenHeight)
	cfg.Renderer.Frame.FenceTimeout = env.duration(EnvFenceTimeout, cfg.Renderer.Frame.FenceTimeout)
	cfg.Renderer.Frame.Descriptors.MaxSets = env.uint32(EnvDescriptorMaxSets, cfg.Renderer.Frame.Descriptors.MaxSets)
	cfg.Renderer.Frame.Descriptors.GrowthFactor = env.float(EnvDescriptorGrowth, cfg.Renderer.Frame.Descriptors.GrowthFactor)
	cfg.Renderer.Frame.PresentMode = env.presentMode(EnvPresentMode, cfg.Renderer.Frame.PresentMode)
	cfg.Renderer.ShaderDirectory = envy.Get(EnvShaderDirectory, cfg.Renderer.ShaderDirectory)
	cfg.Renderer.ShaderArchive = envy.Get(EnvShaderArchive, cfg.Renderer.ShaderArchive)
	cfg.Renderer.ShaderEmbedded = env.boolean(EnvShaderEmbedded, cfg.Renderer.ShaderEmbedded)
	cfg.Instance.Debug = env.boolean(EnvDebug, cfg.Instance.Debug)
	cfg.Log.Level = envy.Get(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = envy.Get(EnvLogFormat, cfg.Log.Format)

	if env.err != nil {
		return Configuration{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Validate checks values that would make the renderer misbehave.
func (c Configuration) Validate() error {
	switch {
	case c.Time.FramesPerSecond < 0:
		return errors.Errorf("%s: must not be negative", EnvFramesPerSecond)
	case c.Time.EventPollDelay <= 0:
		return errors.Errorf("%s: must be positive", EnvEventPollDelay)
	case c.Renderer.ScreenWidth == 0 || c.Renderer.ScreenHeight == 0:
		return errors.Errorf("%s/%s: window extent must not be zero", EnvWidth, EnvHeight)
	case c.Renderer.Frame.FenceTimeout <= 0:
		return errors.Errorf("%s: must be positive", EnvFenceTimeout)
	case c.Renderer.Frame.Descriptors.MaxSets == 0:
		return errors.Errorf("%s: must be positive", EnvDescriptorMaxSets)
	case c.Renderer.Frame.Descriptors.GrowthFactor < 1:
		return errors.Errorf("%s: must be at least 1", EnvDescriptorGrowth)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, EnvLogLevel)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Errorf("%s: unknown format %q", EnvLogFormat, c.Log.Format)
	}
	return nil
}

// envReader parses typed variables and keeps the first error.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	v, err := envy.MustGet(key)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = errors.Wrapf(err, "%s=%q", key, value)
	}
}

func (r *envReader) integer(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) uint32(key string, def uint32) uint32 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return uint32(n)
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) boolean(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *envReader) presentMode(key string, def gfx.PresentMode) gfx.PresentMode {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	for _, m := range []gfx.PresentMode{
		gfx.PresentModeImmediate,
		gfx.PresentModeMailbox,
		gfx.PresentModeFifo,
		gfx.PresentModeFifoRelaxed,
	} {
		if strings.EqualFold(m.String(), v) {
			return m
		}
	}
	r.fail(key, v, errors.New("unknown present mode"))
	return def
}

// NewLogger builds the root logger from configuration.
func NewLogger(cfg LogConfiguration) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	log := logrus.New()
	log.SetLevel(level)
	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", cfg.Format)
	}
	return log, nil
}
