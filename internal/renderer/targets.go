package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

// targetID names the four offscreen color targets.
type targetID int

const (
	// targetBright holds the bright-pass output (A).
	targetBright targetID = iota
	// targetBlurH holds the horizontally blurred bright pass (B).
	targetBlurH
	// targetBlurV holds the fully blurred bright pass (C).
	targetBlurV
	// targetScene holds the lit scene (D).
	targetScene
	targetCount
)

func (t targetID) String() string {
	switch t {
	case targetBright:
		return "bright"
	case targetBlurH:
		return "blur-h"
	case targetBlurV:
		return "blur-v"
	case targetScene:
		return "scene"
	}
	return "unknown"
}

// target is an owned image and its view.
type target struct {
	image gpu.Image
	view  gpu.ImageView
}

func createTarget(dev gpu.Device, format core1_0.Format, extent core1_0.Extent2D, usage core1_0.ImageUsageFlags, aspect core1_0.ImageAspectFlags) (target, error) {
	image, err := dev.CreateImage(gpu.ImageDesc{Format: format, Extent: extent, Usage: usage})
	if err != nil {
		return target{}, err
	}
	view, err := dev.CreateImageView(image, format, aspect)
	if err != nil {
		dev.Destroy(image)
		return target{}, err
	}
	return target{image: image, view: view}, nil
}

func (t *target) destroy(dev gpu.Device) {
	dev.Destroy(t.view, t.image)
	*t = target{}
}

// createTargets allocates the shared depth buffer and the offscreen color
// targets at the current extent.
func (r *Renderer) createTargets() error {
	var err error
	r.depth, err = createTarget(r.dev, depthFormat, r.extent,
		core1_0.ImageUsageDepthStencilAttachment, core1_0.ImageAspectDepth)
	if err != nil {
		return errors.Wrap(err, "create depth target")
	}
	for i := range r.targets {
		r.targets[i], err = createTarget(r.dev, offscreenFormat, r.extent,
			core1_0.ImageUsageColorAttachment|core1_0.ImageUsageSampled, core1_0.ImageAspectColor)
		if err != nil {
			return errors.Wrapf(err, "create %s target", targetID(i))
		}
	}
	return nil
}

func (r *Renderer) destroyTargets() {
	for i := range r.targets {
		r.targets[i].destroy(r.dev)
	}
	r.depth.destroy(r.dev)
}

// createFramebuffers binds every offscreen target and every swapchain view
// to its render pass. It must run after any change to the views involved.
func (r *Renderer) createFramebuffers() error {
	for i, t := range r.targets {
		fb, err := r.dev.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass:  r.offscreenPass,
			Attachments: []gpu.ImageView{t.view, r.depth.view},
			Extent:      r.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create %s framebuffer", targetID(i))
		}
		r.offscreenFBs[i] = fb
	}

	views := r.swapchain.ImageViews()
	r.swapchainFBs = make([]gpu.Framebuffer, 0, len(views))
	for i, v := range views {
		fb, err := r.dev.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass:  r.presentPass,
			Attachments: []gpu.ImageView{v, r.depth.view},
			Extent:      r.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create swapchain framebuffer %d", i)
		}
		r.swapchainFBs = append(r.swapchainFBs, fb)
	}
	return nil
}

func (r *Renderer) destroyFramebuffers() {
	for i, fb := range r.offscreenFBs {
		r.dev.Destroy(fb)
		r.offscreenFBs[i] = 0
	}
	for _, fb := range r.swapchainFBs {
		r.dev.Destroy(fb)
	}
	r.swapchainFBs = nil
}
