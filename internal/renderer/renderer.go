// Package renderer draws a lit model with a bloom post-process. It owns every
// GPU object of the frame: render passes, pipelines, offscreen targets,
// descriptor sets, uniform buffers and per-image command buffers, and it
// rebuilds the size and format dependent ones when the swapchain changes.
//
// A frame is five passes: a bright pass of the model, a horizontal and a
// vertical blur of it, the lit model, and a composite of the blurred bright
// pass over the lit model onto the swapchain image.
package renderer

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/config"
	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/mesh"
)

type Renderer struct {
	dev       gpu.Device
	swapchain gpu.Swapchain
	model     *mesh.Model
	cfg       config.Renderer
	log       *logrus.Entry

	layouts       layouts
	sampler       gpu.Sampler
	offscreenPass gpu.RenderPass
	presentPass   gpu.RenderPass
	shaders       shaders
	pipelines     [pipelineCount]gpu.Pipeline

	mesh *mesh.LoadedMesh

	pool        gpu.DescriptorPool
	scene       uniformBuffer
	materials   []materialUniforms
	textureSets [targetCount]gpu.DescriptorSet

	extent       core1_0.Extent2D
	depth        target
	targets      [targetCount]target
	offscreenFBs [targetCount]gpu.Framebuffer
	swapchainFBs []gpu.Framebuffer

	slots          []frameSlot
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore

	passes   []Pass
	resized  bool
	rebuilds int
	stats    *frameStats
}

// New uploads the model and creates every object needed to draw it into
// swapchain. Shader blobs are read from shaderFS under the names in cfg.
// On failure everything created so far is released.
func New(dev gpu.Device, swapchain gpu.Swapchain, model *mesh.Model, shaderFS fs.FS, cfg config.Renderer, log *logrus.Entry) (*Renderer, error) {
	if len(model.Materials) == 0 {
		return nil, errors.Newf("model %s has no materials", model.Name)
	}
	r := &Renderer{
		dev:       dev,
		swapchain: swapchain,
		model:     model,
		cfg:       cfg,
		log:       log,
		extent:    swapchain.Extent(),
		stats:     newFrameStats(cfg.StatsInterval, log),
	}
	if err := r.init(shaderFS); err != nil {
		if closeErr := r.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Cleanup after failed renderer creation")
		}
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"width":     r.extent.Width,
		"height":    r.extent.Height,
		"images":    len(r.slots),
		"materials": len(r.materials),
		"submeshes": len(r.mesh.Submeshes),
	}).Info("Renderer ready")
	return r, nil
}

func (r *Renderer) init(shaderFS fs.FS) error {
	var err error
	if r.layouts, err = createLayouts(r.dev); err != nil {
		return err
	}
	if r.sampler, err = createSampler(r.dev); err != nil {
		return err
	}
	if r.offscreenPass, err = createOffscreenPass(r.dev); err != nil {
		return err
	}
	if r.presentPass, err = createPresentPass(r.dev, r.swapchain.Format()); err != nil {
		return err
	}
	if r.shaders, err = loadShaders(r.dev, shaderFS, r.cfg.Shaders); err != nil {
		return err
	}

	if r.mesh, err = mesh.Upload(r.dev, r.model, r.log); err != nil {
		return errors.Wrapf(err, "upload %s", r.model.Name)
	}
	for _, sub := range r.mesh.Submeshes {
		if sub.Material < 0 || sub.Material >= len(r.model.Materials) {
			return errors.AssertionFailedf("submesh material %d of %d", sub.Material, len(r.model.Materials))
		}
	}
	if err := r.createDescriptors(); err != nil {
		return err
	}

	if err := r.createTargets(); err != nil {
		return err
	}
	if err := r.createPipelines(allPipelines()...); err != nil {
		return err
	}
	if err := r.createFramebuffers(); err != nil {
		return err
	}
	if err := r.writeTextureSets(); err != nil {
		return err
	}

	if err := r.createSemaphores(); err != nil {
		return err
	}
	if err := r.createSlots(len(r.swapchainFBs)); err != nil {
		return err
	}
	r.passes = r.buildPasses()
	return nil
}

// Extent is the size every target and pipeline is currently built for.
func (r *Renderer) Extent() core1_0.Extent2D {
	return r.extent
}
