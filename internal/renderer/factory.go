package renderer

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/bloom/internal/config"
	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/mesh"
)

const (
	offscreenFormat = core1_0.FormatR16G16B16A16SignedFloat
	depthFormat     = core1_0.FormatD32SignedFloat
)

// Descriptor set indices of the lit pipeline layout.
const (
	setScene = iota
	setMaterial
	setMaterialPBR
	setTexture
)

type layouts struct {
	scene    gpu.DescriptorSetLayout
	material gpu.DescriptorSetLayout
	texture  gpu.DescriptorSetLayout

	// lit is {scene, material, materialPBR, texture}; post is {texture, texture}.
	lit  gpu.PipelineLayout
	post gpu.PipelineLayout
}

func createLayouts(dev gpu.Device) (l layouts, err error) {
	defer func() {
		if err != nil {
			l.destroy(dev)
		}
	}()

	l.scene, err = dev.CreateDescriptorSetLayout(gpu.DescriptorBinding{
		Binding: 0,
		Type:    core1_0.DescriptorTypeUniformBuffer,
		Stages:  core1_0.StageVertex,
	})
	if err != nil {
		return l, errors.Wrap(err, "create scene descriptor layout")
	}
	l.material, err = dev.CreateDescriptorSetLayout(gpu.DescriptorBinding{
		Binding: 0,
		Type:    core1_0.DescriptorTypeUniformBuffer,
		Stages:  core1_0.StageFragment,
	})
	if err != nil {
		return l, errors.Wrap(err, "create material descriptor layout")
	}
	l.texture, err = dev.CreateDescriptorSetLayout(gpu.DescriptorBinding{
		Binding: 0,
		Type:    core1_0.DescriptorTypeCombinedImageSampler,
		Stages:  core1_0.StageFragment,
	})
	if err != nil {
		return l, errors.Wrap(err, "create texture descriptor layout")
	}

	l.lit, err = dev.CreatePipelineLayout(l.scene, l.material, l.material, l.texture)
	if err != nil {
		return l, errors.Wrap(err, "create lit pipeline layout")
	}
	l.post, err = dev.CreatePipelineLayout(l.texture, l.texture)
	if err != nil {
		return l, errors.Wrap(err, "create post-process pipeline layout")
	}
	return l, nil
}

func (l *layouts) destroy(dev gpu.Device) {
	dev.Destroy(l.lit, l.post, l.scene, l.material, l.texture)
	*l = layouts{}
}

// createOffscreenPass builds the pass every offscreen target is rendered
// with. The color attachment ends up ready for sampling, and the two
// dependencies order its writes against fragment reads of the previous and
// next pass.
func createOffscreenPass(dev gpu.Device) (gpu.RenderPass, error) {
	rp, err := dev.CreateRenderPass(gpu.RenderPassDesc{
		Color: gpu.AttachmentDesc{
			Format:        offscreenFormat,
			LoadOp:        core1_0.AttachmentLoadOpClear,
			StoreOp:       core1_0.AttachmentStoreOpStore,
			InitialLayout: core1_0.ImageLayoutUndefined,
			FinalLayout:   core1_0.ImageLayoutShaderReadOnlyOptimal,
		},
		Depth: &gpu.AttachmentDesc{
			Format:        depthFormat,
			LoadOp:        core1_0.AttachmentLoadOpClear,
			StoreOp:       core1_0.AttachmentStoreOpDontCare,
			InitialLayout: core1_0.ImageLayoutUndefined,
			FinalLayout:   core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
		Dependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:      core1_0.SubpassExternal,
				DstSubpass:      0,
				SrcStageMask:    core1_0.PipelineStageFragmentShader | core1_0.PipelineStageLateFragmentTests,
				SrcAccessMask:   core1_0.AccessShaderRead | core1_0.AccessDepthStencilAttachmentWrite,
				DstStageMask:    core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask:   core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
				DependencyFlags: core1_0.DependencyByRegion,
			},
			{
				SrcSubpass:      0,
				DstSubpass:      core1_0.SubpassExternal,
				SrcStageMask:    core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask:   core1_0.AccessColorAttachmentWrite,
				DstStageMask:    core1_0.PipelineStageFragmentShader,
				DstAccessMask:   core1_0.AccessShaderRead,
				DependencyFlags: core1_0.DependencyByRegion,
			},
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "create offscreen render pass")
	}
	return rp, nil
}

// createPresentPass builds the pass that writes the swapchain image.
func createPresentPass(dev gpu.Device, format core1_0.Format) (gpu.RenderPass, error) {
	rp, err := dev.CreateRenderPass(gpu.RenderPassDesc{
		Color: gpu.AttachmentDesc{
			Format:        format,
			LoadOp:        core1_0.AttachmentLoadOpClear,
			StoreOp:       core1_0.AttachmentStoreOpStore,
			InitialLayout: core1_0.ImageLayoutUndefined,
			FinalLayout:   khr_swapchain.ImageLayoutPresentSrc,
		},
		Depth: &gpu.AttachmentDesc{
			Format:        depthFormat,
			LoadOp:        core1_0.AttachmentLoadOpClear,
			StoreOp:       core1_0.AttachmentStoreOpDontCare,
			InitialLayout: core1_0.ImageLayoutUndefined,
			FinalLayout:   core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
		// The depth image is shared with the scene pass, so its clear here
		// must wait for the scene's depth writes.
		Dependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageLateFragmentTests,
				SrcAccessMask: core1_0.AccessDepthStencilAttachmentWrite,
				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "create present render pass for %v", format)
	}
	return rp, nil
}

type pipelineKind int

const (
	pipelineLit pipelineKind = iota
	pipelineBright
	pipelineBlurH
	pipelineBlurV
	pipelineComposite
	pipelineCount
)

func (k pipelineKind) String() string {
	switch k {
	case pipelineLit:
		return "lit"
	case pipelineBright:
		return "bright"
	case pipelineBlurH:
		return "blur-h"
	case pipelineBlurV:
		return "blur-v"
	case pipelineComposite:
		return "composite"
	}
	return "unknown"
}

// drawsMesh reports whether a pipeline consumes the model's vertex streams.
// The others draw a single fullscreen triangle generated in the vertex
// shader.
func (k pipelineKind) drawsMesh() bool {
	return k == pipelineLit || k == pipelineBright
}

type shaderPair struct {
	vert gpu.ShaderModule
	frag gpu.ShaderModule
}

type shaders [pipelineCount]shaderPair

func shaderFiles(names config.Shaders) [pipelineCount][2]string {
	return [pipelineCount][2]string{
		pipelineLit:       {names.LitVert, names.LitFrag},
		pipelineBright:    {names.BrightVert, names.BrightFrag},
		pipelineBlurH:     {names.BlurHVert, names.BlurHFrag},
		pipelineBlurV:     {names.BlurVVert, names.BlurVFrag},
		pipelineComposite: {names.CompositeVert, names.CompositeFrag},
	}
}

// loadShaders reads every SPIR-V blob from fsys and creates its module.
func loadShaders(dev gpu.Device, fsys fs.FS, names config.Shaders) (s shaders, err error) {
	defer func() {
		if err != nil {
			s.destroy(dev)
		}
	}()

	load := func(name string) (gpu.ShaderModule, error) {
		code, err := fs.ReadFile(fsys, name)
		if err != nil {
			return 0, errors.Wrapf(err, "read shader %s", name)
		}
		module, err := dev.CreateShaderModule(code)
		if err != nil {
			return 0, errors.Wrapf(err, "create shader module %s", name)
		}
		return module, nil
	}

	for kind, files := range shaderFiles(names) {
		if s[kind].vert, err = load(files[0]); err != nil {
			return s, err
		}
		if s[kind].frag, err = load(files[1]); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s *shaders) destroy(dev gpu.Device) {
	for i := range s {
		dev.Destroy(s[i].vert, s[i].frag)
	}
	*s = shaders{}
}

func createPipeline(dev gpu.Device, kind pipelineKind, sh shaderPair, l layouts, renderPass gpu.RenderPass, extent core1_0.Extent2D) (gpu.Pipeline, error) {
	desc := gpu.PipelineDesc{
		VertexShader:   sh.vert,
		FragmentShader: sh.frag,
		Extent:         extent,
		Layout:         l.post,
		RenderPass:     renderPass,
	}
	if kind.drawsMesh() {
		desc.VertexBindings = mesh.VertexBindings()
		desc.VertexAttributes = mesh.VertexAttributes()
		desc.CullMode = core1_0.CullModeBack
		desc.DepthTest = true
		desc.Layout = l.lit
	}

	p, err := dev.CreateGraphicsPipeline(desc)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s pipeline", kind)
	}
	return p, nil
}

func createSampler(dev gpu.Device) (gpu.Sampler, error) {
	s, err := dev.CreateSampler(gpu.SamplerDesc{
		Filter:      core1_0.FilterLinear,
		AddressMode: core1_0.SamplerAddressModeClampToEdge,
	})
	if err != nil {
		return 0, errors.Wrap(err, "create offscreen sampler")
	}
	return s, nil
}
