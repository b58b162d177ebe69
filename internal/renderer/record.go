package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/input"
)

// fullscreenVertices is the vertex count of the triangle the post-process
// vertex shaders generate.
const fullscreenVertices = 3

// recordFrame records the whole frame for one swapchain image: uniform
// updates first, then every pass in order.
func (r *Renderer) recordFrame(cb gpu.CommandBuffer, imageIndex int, state *input.State) error {
	if err := r.dev.BeginCommandBuffer(cb, core1_0.CommandBufferUsageOneTimeSubmit); err != nil {
		return errors.Wrap(err, "begin frame commands")
	}
	if err := r.updateUniforms(cb, state); err != nil {
		return err
	}
	for _, p := range r.passes {
		if err := r.recordPass(cb, p, imageIndex); err != nil {
			return errors.Wrapf(err, "record %s pass", p.Name)
		}
	}
	if err := r.dev.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "end frame commands")
	}
	return nil
}

func (r *Renderer) recordPass(cb gpu.CommandBuffer, p Pass, imageIndex int) error {
	fb := p.Framebuffer
	if p.Present {
		if imageIndex < 0 || imageIndex >= len(r.swapchainFBs) {
			return errors.AssertionFailedf("image index %d with %d swapchain framebuffers", imageIndex, len(r.swapchainFBs))
		}
		fb = r.swapchainFBs[imageIndex]
	}

	err := r.dev.CmdBeginRenderPass(cb, gpu.RenderPassBegin{
		RenderPass:  p.RenderPass,
		Framebuffer: fb,
		Extent:      r.extent,
		ClearValues: []core1_0.ClearValue{
			p.Clear,
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	})
	if err != nil {
		return err
	}

	r.dev.CmdBindPipeline(cb, p.Pipeline)
	if p.DrawMesh {
		r.dev.CmdBindDescriptorSets(cb, p.Layout, setScene, r.scene.set)
		for _, sub := range r.mesh.Submeshes {
			mat := r.materials[sub.Material]
			r.dev.CmdBindDescriptorSets(cb, p.Layout, setMaterial, mat.basic.set, mat.pbr.set)
			r.dev.CmdBindVertexBuffers(cb, 0, sub.VertexBuffers()...)
			r.dev.CmdDraw(cb, sub.VertexCount, 1, 0, 0)
		}
	} else {
		r.dev.CmdBindDescriptorSets(cb, p.Layout, 0, p.Inputs...)
		r.dev.CmdDraw(cb, fullscreenVertices, 1, 0, 0)
	}

	r.dev.CmdEndRenderPass(cb)
	return nil
}
