// Package config resolves runtime settings from built-in defaults, an
// optional dotenv file and the process environment, in that order of
// precedence from lowest to highest.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	KeyWidth         = "BLOOM_WIDTH"
	KeyHeight        = "BLOOM_HEIGHT"
	KeyTitle         = "BLOOM_TITLE"
	KeyModel         = "BLOOM_MODEL"
	KeyShaderDir     = "BLOOM_SHADER_DIR"
	KeyFieldOfView   = "BLOOM_FOV"
	KeyValidation    = "BLOOM_VALIDATION"
	KeyLogLevel      = "BLOOM_LOG_LEVEL"
	KeyStatsInterval = "BLOOM_STATS_INTERVAL"
)

type Config struct {
	Window     Window
	Renderer   Renderer
	Model      string
	Validation bool
	LogLevel   logrus.Level
}

type Window struct {
	Title  string
	Width  int
	Height int
}

// Renderer holds the settings the renderer consumes directly.
type Renderer struct {
	ShaderDir   string
	Shaders     Shaders
	FieldOfView float32
	// StatsInterval is how often frame statistics are logged. Zero disables
	// them.
	StatsInterval time.Duration
}

// Shaders names the SPIR-V blobs of each pipeline, relative to ShaderDir.
type Shaders struct {
	LitVert, LitFrag             string
	BrightVert, BrightFrag       string
	BlurHVert, BlurHFrag         string
	BlurVVert, BlurVFrag         string
	CompositeVert, CompositeFrag string
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Bloom",
			Width:  1280,
			Height: 720,
		},
		Renderer: Renderer{
			ShaderDir: "assets/shaders",
			Shaders: Shaders{
				LitVert:       "PBR.vert.spv",
				LitFrag:       "PBR.frag.spv",
				BrightVert:    "filterBright.vert.spv",
				BrightFrag:    "filterBright.frag.spv",
				BlurHVert:     "horizontalFilter.vert.spv",
				BlurHFrag:     "horizontalFilter.frag.spv",
				BlurVVert:     "verticalFilter.vert.spv",
				BlurVFrag:     "verticalFilter.frag.spv",
				CompositeVert: "post.vert.spv",
				CompositeFrag: "post.frag.spv",
			},
			FieldOfView:   60,
			StatsInterval: 5 * time.Second,
		},
		Model:      "assets/models/car.obj",
		Validation: false,
		LogLevel:   logrus.InfoLevel,
	}
}

// Load reads dotenvPath if it exists, then applies environment overrides on
// top of Default.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return Config{}, errors.Wrapf(err, "load %s", dotenvPath)
			}
		}
	}
	return FromEnv()
}

// FromEnv applies environment overrides on top of Default.
func FromEnv() (Config, error) {
	envy.Reload()
	cfg := Default()
	var err error

	if cfg.Window.Width, err = envInt(KeyWidth, cfg.Window.Width); err != nil {
		return cfg, err
	}
	if cfg.Window.Height, err = envInt(KeyHeight, cfg.Window.Height); err != nil {
		return cfg, err
	}
	cfg.Window.Title = envy.Get(KeyTitle, cfg.Window.Title)
	cfg.Model = envy.Get(KeyModel, cfg.Model)
	cfg.Renderer.ShaderDir = envy.Get(KeyShaderDir, cfg.Renderer.ShaderDir)

	if raw, ok := lookup(KeyFieldOfView); ok {
		fov, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return cfg, errors.Wrapf(err, "%s", KeyFieldOfView)
		}
		cfg.Renderer.FieldOfView = float32(fov)
	}
	if raw, ok := lookup(KeyValidation); ok {
		if cfg.Validation, err = strconv.ParseBool(raw); err != nil {
			return cfg, errors.Wrapf(err, "%s", KeyValidation)
		}
	}
	if raw, ok := lookup(KeyLogLevel); ok {
		if cfg.LogLevel, err = logrus.ParseLevel(raw); err != nil {
			return cfg, errors.Wrapf(err, "%s", KeyLogLevel)
		}
	}
	if raw, ok := lookup(KeyStatsInterval); ok {
		if cfg.Renderer.StatsInterval, err = time.ParseDuration(raw); err != nil {
			return cfg, errors.Wrapf(err, "%s", KeyStatsInterval)
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports settings the renderer cannot work with.
func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FieldOfView <= 0 || c.Renderer.FieldOfView >= 180 {
		return errors.Newf("field of view %g must be between 0 and 180 degrees", c.Renderer.FieldOfView)
	}
	if c.Renderer.StatsInterval < 0 {
		return errors.Newf("stats interval %s must not be negative", c.Renderer.StatsInterval)
	}
	if c.Model == "" {
		return errors.New("no model configured")
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, err := envy.MustGet(key)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func envInt(key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}
