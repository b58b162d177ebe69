package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// createPipelines (re)creates the pipelines of the given kinds against the
// current render passes and extent.
func (r *Renderer) createPipelines(kinds ...pipelineKind) error {
	for _, kind := range kinds {
		r.dev.Destroy(r.pipelines[kind])
		r.pipelines[kind] = 0

		renderPass := r.offscreenPass
		if kind == pipelineComposite {
			renderPass = r.presentPass
		}
		p, err := createPipeline(r.dev, kind, r.shaders[kind], r.layouts, renderPass, r.extent)
		if err != nil {
			return err
		}
		r.pipelines[kind] = p
	}
	return nil
}

func allPipelines() []pipelineKind {
	kinds := make([]pipelineKind, 0, pipelineCount)
	for k := pipelineKind(0); k < pipelineCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (r *Renderer) destroyPipelines() {
	for i, p := range r.pipelines {
		r.dev.Destroy(p)
		r.pipelines[i] = 0
	}
}

// Rebuild recreates the swapchain and everything that depends on it. It
// waits for the device to go idle first, so no submitted frame can observe
// a half-rebuilt state. Only what the swapchain change invalidates is
// rebuilt: the present pass on a format change, the targets and size-baked
// pipelines on an extent change. Framebuffers and texture descriptors are
// always refreshed because the swapchain views are always new.
//
// While the surface has no area nothing is touched and the rebuild stays
// pending for the next frame.
func (r *Renderer) Rebuild() error {
	extent, err := r.swapchain.SurfaceExtent()
	if err != nil {
		return errors.Wrap(err, "query surface extent")
	}
	if extent.Width == 0 || extent.Height == 0 {
		r.resized = true
		r.log.Debug("Surface has no area, deferring rebuild")
		return nil
	}

	if err := r.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before rebuild")
	}

	r.destroyFramebuffers()

	changes, err := r.swapchain.Recreate()
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}

	if changes.FormatChanged {
		r.dev.Destroy(r.presentPass)
		if r.presentPass, err = createPresentPass(r.dev, r.swapchain.Format()); err != nil {
			return err
		}
	}

	switch {
	case changes.ExtentChanged:
		r.destroyTargets()
		r.extent = r.swapchain.Extent()
		if err := r.createTargets(); err != nil {
			return err
		}
		if err := r.createPipelines(allPipelines()...); err != nil {
			return err
		}
	case changes.FormatChanged:
		if err := r.createPipelines(pipelineComposite); err != nil {
			return err
		}
	}

	if err := r.createFramebuffers(); err != nil {
		return err
	}
	if err := r.writeTextureSets(); err != nil {
		return err
	}

	// An acquire abandoned as suboptimal leaves a signal pending on the
	// image-available semaphore; a fresh one starts unsignaled.
	r.dev.Destroy(r.imageAvailable)
	if r.imageAvailable, err = r.dev.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "recreate image-available semaphore")
	}

	if images := len(r.swapchainFBs); images != len(r.slots) {
		r.destroySlots()
		if err := r.createSlots(images); err != nil {
			return err
		}
	}

	r.passes = r.buildPasses()
	r.resized = false
	r.rebuilds++

	r.log.WithFields(logrus.Fields{
		"width":          r.extent.Width,
		"height":         r.extent.Height,
		"images":         len(r.swapchainFBs),
		"format_changed": changes.FormatChanged,
		"extent_changed": changes.ExtentChanged,
		"rebuilds":       r.rebuilds,
	}).Info("Swapchain rebuilt")
	return nil
}

// Close waits for the device to drain and destroys everything the renderer
// created. The swapchain and the device are left to their owner.
func (r *Renderer) Close() error {
	err := r.dev.WaitIdle()
	if err != nil {
		err = errors.Wrap(err, "wait for device idle before teardown")
	}

	r.destroySlots()
	r.dev.Destroy(r.imageAvailable, r.renderFinished)
	r.imageAvailable, r.renderFinished = 0, 0

	r.destroyFramebuffers()
	r.destroyPipelines()
	r.destroyTargets()
	r.destroyDescriptors()
	if r.mesh != nil {
		r.mesh.Destroy(r.dev)
		r.mesh = nil
	}
	r.shaders.destroy(r.dev)
	r.dev.Destroy(r.presentPass, r.offscreenPass, r.sampler)
	r.presentPass, r.offscreenPass, r.sampler = 0, 0, 0
	r.layouts.destroy(r.dev)
	r.passes = nil
	return err
}
