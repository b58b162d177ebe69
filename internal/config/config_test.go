package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/bloom/internal/config"
)

func TestDefaultsAreValid(t *testing.T) {
	c := qt.New(t)
	cfg := config.Default()
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Renderer.FieldOfView, qt.Equals, float32(60))
	c.Assert(cfg.Renderer.Shaders.LitVert, qt.Equals, "PBR.vert.spv")
	c.Assert(cfg.Renderer.Shaders.CompositeFrag, qt.Equals, "post.frag.spv")
}

func TestEnvironmentOverrides(t *testing.T) {
	c := qt.New(t)
	t.Setenv(config.KeyWidth, "640")
	t.Setenv(config.KeyHeight, "480")
	t.Setenv(config.KeyFieldOfView, "75")
	t.Setenv(config.KeyValidation, "true")
	t.Setenv(config.KeyLogLevel, "debug")
	t.Setenv(config.KeyStatsInterval, "250ms")
	t.Setenv(config.KeyModel, "sponza.obj")

	cfg, err := config.FromEnv()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Window.Width, qt.Equals, 640)
	c.Assert(cfg.Window.Height, qt.Equals, 480)
	c.Assert(cfg.Renderer.FieldOfView, qt.Equals, float32(75))
	c.Assert(cfg.Validation, qt.IsTrue)
	c.Assert(cfg.LogLevel, qt.Equals, logrus.DebugLevel)
	c.Assert(cfg.Renderer.StatsInterval, qt.Equals, 250*time.Millisecond)
	c.Assert(cfg.Model, qt.Equals, "sponza.obj")
}

func TestMalformedValues(t *testing.T) {
	c := qt.New(t)
	for key, value := range map[string]string{
		config.KeyWidth:         "wide",
		config.KeyFieldOfView:   "200",
		config.KeyValidation:    "maybe",
		config.KeyLogLevel:      "loud",
		config.KeyStatsInterval: "-1s",
	} {
		c.Run(key, func(c *qt.C) {
			c.Setenv(key, value)
			_, err := config.FromEnv()
			c.Assert(err, qt.Not(qt.IsNil))
		})
	}
}

func TestDotenvFile(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bloom.env")
	c.Assert(os.WriteFile(path, []byte("BLOOM_TITLE=from dotenv\nBLOOM_HEIGHT=300\n"), 0o600), qt.IsNil)
	c.Cleanup(func() {
		os.Unsetenv(config.KeyTitle)
		os.Unsetenv(config.KeyHeight)
	})

	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Window.Title, qt.Equals, "from dotenv")
	c.Assert(cfg.Window.Height, qt.Equals, 300)
}

func TestMissingDotenvFileIsIgnored(t *testing.T) {
	c := qt.New(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Window.Width, qt.Equals, 1280)
}
