// Command bloomview opens a window and draws a model with a bloom
// post-process until the window is closed or Escape is pressed.
package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/bloom/internal/config"
	"github.com/vkngwrapper/bloom/internal/gpu/vkgpu"
	"github.com/vkngwrapper/bloom/internal/input"
	"github.com/vkngwrapper/bloom/internal/mesh"
	"github.com/vkngwrapper/bloom/internal/renderer"
)

func main() {
	runtime.LockOSThread()

	envFile := flag.String("env", ".env", "dotenv file with BLOOM_* settings; skipped when missing")
	flag.Parse()

	log := logrus.WithField("session", uuid.NewString())
	if err := run(*envFile, log); err != nil {
		log.WithError(err).Fatal("Bloom stopped")
	}
}

func run(envFile string, log *logrus.Entry) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	log.Logger.SetLevel(cfg.LogLevel)

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow(cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Window.Width), int32(cfg.Window.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	defer window.Destroy()

	backend, err := vkgpu.New(window, vkgpu.Options{AppName: cfg.Window.Title, Validation: cfg.Validation}, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	swapchain, err := backend.NewSwapchain()
	if err != nil {
		return err
	}
	defer swapchain.Close()

	model, err := mesh.Load(cfg.Model)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"model":     model.Name,
		"meshes":    len(model.Meshes),
		"materials": len(model.Materials),
	}).Info("Model loaded")

	r, err := renderer.New(backend, swapchain, model, os.DirFS(cfg.Renderer.ShaderDir), cfg.Renderer, log)
	if err != nil {
		return err
	}

	loopErr := frameLoop(window, r, log)
	if err := r.Close(); err != nil && loopErr == nil {
		return err
	}
	return loopErr
}

func frameLoop(window *sdl.Window, r *renderer.Renderer, log *logrus.Entry) error {
	state := input.NewState()
	for {
		var events windowEvents
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			dispatch(event, state, &events)
		}
		if events.quit || state.Quit {
			log.Info("Quit requested")
			return nil
		}
		if events.resized {
			r.NotifyResized()
		}

		// A minimized window has no area to present to; wait for it to come
		// back before drawing or rebuilding.
		if w, h := window.VulkanGetDrawableSize(); w == 0 || h == 0 || window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
			sdl.WaitEventTimeout(100)
			continue
		}

		if _, err := r.DrawFrame(state); err != nil {
			return err
		}
	}
}
