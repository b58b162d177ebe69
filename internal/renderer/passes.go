package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

var (
	clearBlack = core1_0.ClearValueFloat{0, 0, 0, 1}
	clearGray  = core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1}
)

// Pass is one render pass of the frame, described as data. The frame
// recorder walks the list in order and records each pass the same way.
type Pass struct {
	Name       string
	RenderPass gpu.RenderPass
	// Framebuffer is ignored when Present is set; the framebuffer of the
	// acquired swapchain image is used instead.
	Framebuffer gpu.Framebuffer
	Present     bool
	Pipeline    gpu.Pipeline
	Layout      gpu.PipelineLayout
	Clear       core1_0.ClearValueFloat

	// DrawMesh draws every submesh with its scene and material sets bound.
	// Otherwise Inputs are bound from set 0 and a fullscreen triangle is
	// drawn.
	DrawMesh bool
	Inputs   []gpu.DescriptorSet
}

// buildPasses assembles the pass list from the current objects. It is
// rebuilt after anything it references is recreated.
//
// bright -> A, blur-h A -> B, blur-v B -> C, scene -> D, composite C + D ->
// swapchain image.
func (r *Renderer) buildPasses() []Pass {
	return []Pass{
		{
			Name:        "bright",
			RenderPass:  r.offscreenPass,
			Framebuffer: r.offscreenFBs[targetBright],
			Pipeline:    r.pipelines[pipelineBright],
			Layout:      r.layouts.lit,
			Clear:       clearBlack,
			DrawMesh:    true,
		},
		{
			Name:        "blur-h",
			RenderPass:  r.offscreenPass,
			Framebuffer: r.offscreenFBs[targetBlurH],
			Pipeline:    r.pipelines[pipelineBlurH],
			Layout:      r.layouts.post,
			Clear:       clearBlack,
			Inputs:      []gpu.DescriptorSet{r.textureSets[targetBright]},
		},
		{
			Name:        "blur-v",
			RenderPass:  r.offscreenPass,
			Framebuffer: r.offscreenFBs[targetBlurV],
			Pipeline:    r.pipelines[pipelineBlurV],
			Layout:      r.layouts.post,
			Clear:       clearGray,
			Inputs:      []gpu.DescriptorSet{r.textureSets[targetBlurH]},
		},
		{
			Name:        "scene",
			RenderPass:  r.offscreenPass,
			Framebuffer: r.offscreenFBs[targetScene],
			Pipeline:    r.pipelines[pipelineLit],
			Layout:      r.layouts.lit,
			Clear:       clearGray,
			DrawMesh:    true,
		},
		{
			Name:       "composite",
			RenderPass: r.presentPass,
			Present:    true,
			Pipeline:   r.pipelines[pipelineComposite],
			Layout:     r.layouts.post,
			Clear:      clearGray,
			Inputs:     []gpu.DescriptorSet{r.textureSets[targetBlurV], r.textureSets[targetScene]},
		},
	}
}

// Passes returns the current pass list.
func (r *Renderer) Passes() []Pass {
	out := make([]Pass, len(r.passes))
	copy(out, r.passes)
	return out
}
