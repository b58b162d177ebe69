package vkgpu

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

func (b *Backend) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	attachments := []core1_0.AttachmentDescription{attachment(desc.Color)}
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
		},
	}
	if desc.Depth != nil {
		attachments = append(attachments, attachment(*desc.Depth))
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	renderPass, res, err := b.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments:         attachments,
		Subpasses:           []core1_0.SubpassDescription{subpass},
		SubpassDependencies: desc.Dependencies,
	})
	if err != nil {
		return 0, failure("CreateRenderPass", res, err)
	}
	return gpu.RenderPass(b.renderPasses.add(renderPass)), nil
}

func attachment(desc gpu.AttachmentDesc) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         desc.Format,
		Samples:        core1_0.Samples1,
		LoadOp:         desc.LoadOp,
		StoreOp:        desc.StoreOp,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  desc.InitialLayout,
		FinalLayout:    desc.FinalLayout,
	}
}

func (b *Backend) CreateDescriptorSetLayout(bindings ...gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	info := core1_0.DescriptorSetLayoutCreateInfo{}
	for _, binding := range bindings {
		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  binding.Type,
			DescriptorCount: 1,
			StageFlags:      binding.Stages,
		})
	}
	layout, res, err := b.deviceDriver.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return 0, failure("CreateDescriptorSetLayout", res, err)
	}
	return gpu.DescriptorSetLayout(b.setLayouts.add(layout)), nil
}

func (b *Backend) CreatePipelineLayout(sets ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	info := core1_0.PipelineLayoutCreateInfo{}
	for _, set := range sets {
		layout, ok := b.setLayouts.get(set.Handle())
		if !ok {
			return 0, missing("CreatePipelineLayout", set)
		}
		info.SetLayouts = append(info.SetLayouts, layout)
	}
	layout, res, err := b.deviceDriver.CreatePipelineLayout(nil, info)
	if err != nil {
		return 0, failure("CreatePipelineLayout", res, err)
	}
	return gpu.PipelineLayout(b.pipelineLayouts.add(layout)), nil
}

// bytecode reinterprets a SPIR-V blob as the little-endian words it holds.
func bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("shader blob of %d bytes is not whole 32-bit words", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}

func (b *Backend) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	words, err := bytecode(code)
	if err != nil {
		return 0, err
	}
	module, res, err := b.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: words})
	if err != nil {
		return 0, failure("CreateShaderModule", res, err)
	}
	return gpu.ShaderModule(b.shaders.add(module)), nil
}

func (b *Backend) CreateGraphicsPipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	vertShader, ok := b.shaders.get(desc.VertexShader.Handle())
	if !ok {
		return 0, missing("CreateGraphicsPipeline", desc.VertexShader)
	}
	fragShader, ok := b.shaders.get(desc.FragmentShader.Handle())
	if !ok {
		return 0, missing("CreateGraphicsPipeline", desc.FragmentShader)
	}
	layout, ok := b.pipelineLayouts.get(desc.Layout.Handle())
	if !ok {
		return 0, missing("CreateGraphicsPipeline", desc.Layout)
	}
	renderPass, ok := b.renderPasses.get(desc.RenderPass.Handle())
	if !ok {
		return 0, missing("CreateGraphicsPipeline", desc.RenderPass)
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				Width:    float32(desc.Extent.Width),
				Height:   float32(desc.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{Offset: core1_0.Offset2D{X: 0, Y: 0}, Extent: desc.Extent},
		},
	}

	pipelines, res, err := b.deviceDriver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{Stage: core1_0.StageVertex, Module: vertShader, Name: "main"},
				{Stage: core1_0.StageFragment, Module: fragShader, Name: "main"},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   desc.VertexBindings,
				VertexAttributeDescriptions: desc.VertexAttributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology: core1_0.PrimitiveTopologyTriangleList,
			},
			ViewportState: viewport,
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    desc.CullMode,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  desc.DepthTest,
				DepthWriteEnable: desc.DepthTest,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			Layout:            layout,
			RenderPass:        renderPass,
			Subpass:           desc.Subpass,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return 0, failure("CreateGraphicsPipelines", res, err)
	}
	return gpu.Pipeline(b.pipelines.add(pipelines[0])), nil
}

func (b *Backend) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	sampler, res, err := b.deviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,
		BorderColor:  core1_0.BorderColorIntOpaqueBlack,
		MipmapMode:   core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return 0, failure("CreateSampler", res, err)
	}
	return gpu.Sampler(b.samplers.add(sampler)), nil
}

// CreateImage creates a single-sample, single-level 2D image in device-local
// memory.
func (b *Backend) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	img, res, err := b.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        desc.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         desc.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, failure("CreateImage", res, err)
	}

	memReqs := b.deviceDriver.GetImageMemoryRequirements(img)
	memory, err := b.allocate(memReqs.Size, memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		b.deviceDriver.DestroyImage(img, nil)
		return 0, err
	}
	if res, err := b.deviceDriver.BindImageMemory(img, memory, 0); err != nil {
		b.deviceDriver.DestroyImage(img, nil)
		b.deviceDriver.FreeMemory(memory, nil)
		return 0, failure("BindImageMemory", res, err)
	}
	return gpu.Image(b.images.add(image{image: img, memory: memory})), nil
}

func (b *Backend) CreateImageView(img gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	target, ok := b.images.get(img.Handle())
	if !ok {
		return 0, missing("CreateImageView", img)
	}
	view, err := b.createImageView(target.image, format, aspect)
	if err != nil {
		return 0, err
	}
	return gpu.ImageView(b.imageViews.add(view)), nil
}

func (b *Backend) createImageView(img core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	view, res, err := b.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    img,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return view, failure("CreateImageView", res, err)
	}
	return view, nil
}

func (b *Backend) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	renderPass, ok := b.renderPasses.get(desc.RenderPass.Handle())
	if !ok {
		return 0, missing("CreateFramebuffer", desc.RenderPass)
	}
	var attachments []core1_0.ImageView
	for _, v := range desc.Attachments {
		view, ok := b.imageViews.get(v.Handle())
		if !ok {
			return 0, missing("CreateFramebuffer", v)
		}
		attachments = append(attachments, view)
	}

	framebuffer, res, err := b.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: attachments,
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
	})
	if err != nil {
		return 0, failure("CreateFramebuffer", res, err)
	}
	return gpu.Framebuffer(b.framebuffers.add(framebuffer)), nil
}

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	buf, res, err := b.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        desc.Size,
		Usage:       desc.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, failure("CreateBuffer", res, err)
	}

	memReqs := b.deviceDriver.GetBufferMemoryRequirements(buf)
	memory, err := b.allocate(memReqs.Size, memReqs.MemoryTypeBits, desc.Memory)
	if err != nil {
		b.deviceDriver.DestroyBuffer(buf, nil)
		return 0, err
	}
	if res, err := b.deviceDriver.BindBufferMemory(buf, memory, 0); err != nil {
		b.deviceDriver.DestroyBuffer(buf, nil)
		b.deviceDriver.FreeMemory(memory, nil)
		return 0, failure("BindBufferMemory", res, err)
	}
	return gpu.Buffer(b.buffers.add(buffer{buffer: buf, memory: memory, size: desc.Size})), nil
}

func (b *Backend) allocate(size int, typeBits uint32, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	memProperties := b.instanceDriver.GetPhysicalDeviceMemoryProperties(b.physicalDevice)
	memoryIndex, err := findMemoryType(memProperties.MemoryTypes, typeBits, properties)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}
	memory, res, err := b.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return memory, failure("AllocateMemory", res, err)
	}
	return memory, nil
}

func findMemoryType(types []core1_0.MemoryType, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range types {
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type with properties %s", properties)
}

func (b *Backend) WriteBuffer(buf gpu.Buffer, offset int, data []byte) error {
	target, ok := b.buffers.get(buf.Handle())
	if !ok {
		return missing("WriteBuffer", buf)
	}
	if offset < 0 || offset+len(data) > target.size {
		return errors.AssertionFailedf("write of %d bytes at %d into %d byte buffer", len(data), offset, target.size)
	}

	memoryPtr, res, err := b.deviceDriver.MapMemory(target.memory, offset, len(data), 0)
	if err != nil {
		return failure("MapMemory", res, err)
	}
	defer b.deviceDriver.UnmapMemory(target.memory)

	copy(unsafe.Slice((*byte)(memoryPtr), len(data)), data)
	return nil
}

func (b *Backend) CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	pool, res, err := b.deviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return 0, failure("CreateDescriptorPool", res, err)
	}
	return gpu.DescriptorPool(b.pools.add(pool)), nil
}

func (b *Backend) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	target, ok := b.pools.get(pool.Handle())
	if !ok {
		return nil, missing("AllocateDescriptorSets", pool)
	}
	var setLayouts []core1_0.DescriptorSetLayout
	for _, l := range layouts {
		layout, ok := b.setLayouts.get(l.Handle())
		if !ok {
			return nil, missing("AllocateDescriptorSets", l)
		}
		setLayouts = append(setLayouts, layout)
	}

	sets, res, err := b.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: target,
		SetLayouts:     setLayouts,
	})
	if err != nil {
		return nil, failure("AllocateDescriptorSets", res, err)
	}
	out := make([]gpu.DescriptorSet, len(sets))
	for i, set := range sets {
		out[i] = gpu.DescriptorSet(b.sets.add(descriptorSet{set: set, pool: pool.Handle()}))
	}
	return out, nil
}

func (b *Backend) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) error {
	var out []core1_0.WriteDescriptorSet
	for _, w := range writes {
		set, ok := b.sets.get(w.Set.Handle())
		if !ok {
			return missing("UpdateDescriptorSets", w.Set)
		}
		write := core1_0.WriteDescriptorSet{
			DstSet:          set.set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  w.Type,
		}
		switch w.Type {
		case core1_0.DescriptorTypeUniformBuffer:
			buf, ok := b.buffers.get(w.Buffer.Handle())
			if !ok {
				return missing("UpdateDescriptorSets", w.Buffer)
			}
			write.BufferInfo = []core1_0.DescriptorBufferInfo{
				{Buffer: buf.buffer, Offset: 0, Range: w.Range},
			}
		case core1_0.DescriptorTypeCombinedImageSampler:
			view, ok := b.imageViews.get(w.ImageView.Handle())
			if !ok {
				return missing("UpdateDescriptorSets", w.ImageView)
			}
			sampler, ok := b.samplers.get(w.Sampler.Handle())
			if !ok {
				return missing("UpdateDescriptorSets", w.Sampler)
			}
			write.ImageInfo = []core1_0.DescriptorImageInfo{
				{ImageView: view, Sampler: sampler, ImageLayout: w.Layout},
			}
		default:
			return errors.AssertionFailedf("unsupported descriptor type %s", w.Type)
		}
		out = append(out, write)
	}
	if err := b.deviceDriver.UpdateDescriptorSets(out, nil); err != nil {
		return &gpu.Error{Op: "UpdateDescriptorSets", Status: "failed", Err: err}
	}
	return nil
}

func (b *Backend) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	buffers, res, err := b.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        b.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, failure("AllocateCommandBuffers", res, err)
	}
	out := make([]gpu.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		out[i] = gpu.CommandBuffer(b.commandBuffers.add(cb))
	}
	return out, nil
}

func (b *Backend) CreateFence(signaled bool) (gpu.Fence, error) {
	info := core1_0.FenceCreateInfo{}
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	fence, res, err := b.deviceDriver.CreateFence(nil, info)
	if err != nil {
		return 0, failure("CreateFence", res, err)
	}
	return gpu.Fence(b.fences.add(fence)), nil
}

func (b *Backend) CreateSemaphore() (gpu.Semaphore, error) {
	semaphore, res, err := b.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, failure("CreateSemaphore", res, err)
	}
	return gpu.Semaphore(b.semaphores.add(semaphore)), nil
}

// Destroy releases objects in the order given. Unknown and zero handles are
// skipped. Destroying a pool drops the descriptor sets allocated from it.
func (b *Backend) Destroy(objects ...gpu.Object) {
	for _, obj := range objects {
		if obj == nil || obj.Handle() == 0 {
			continue
		}
		b.destroy(obj)
	}
}

func (b *Backend) destroy(obj gpu.Object) {
	h := obj.Handle()
	switch obj.Kind() {
	case gpu.KindBuffer:
		if buf, ok := b.buffers.take(h); ok {
			b.deviceDriver.DestroyBuffer(buf.buffer, nil)
			b.deviceDriver.FreeMemory(buf.memory, nil)
		}
	case gpu.KindImage:
		if img, ok := b.images.take(h); ok {
			b.deviceDriver.DestroyImage(img.image, nil)
			b.deviceDriver.FreeMemory(img.memory, nil)
		}
	case gpu.KindImageView:
		if view, ok := b.imageViews.take(h); ok {
			b.deviceDriver.DestroyImageView(view, nil)
		}
	case gpu.KindFramebuffer:
		if fb, ok := b.framebuffers.take(h); ok {
			b.deviceDriver.DestroyFramebuffer(fb, nil)
		}
	case gpu.KindRenderPass:
		if rp, ok := b.renderPasses.take(h); ok {
			b.deviceDriver.DestroyRenderPass(rp, nil)
		}
	case gpu.KindPipeline:
		if p, ok := b.pipelines.take(h); ok {
			b.deviceDriver.DestroyPipeline(p, nil)
		}
	case gpu.KindPipelineLayout:
		if l, ok := b.pipelineLayouts.take(h); ok {
			b.deviceDriver.DestroyPipelineLayout(l, nil)
		}
	case gpu.KindDescriptorSetLayout:
		if l, ok := b.setLayouts.take(h); ok {
			b.deviceDriver.DestroyDescriptorSetLayout(l, nil)
		}
	case gpu.KindDescriptorPool:
		if pool, ok := b.pools.take(h); ok {
			for _, sh := range b.sets.handles() {
				if set, _ := b.sets.get(sh); set.pool == h {
					b.sets.take(sh)
				}
			}
			b.deviceDriver.DestroyDescriptorPool(pool, nil)
		}
	case gpu.KindDescriptorSet:
		// Sets live as long as their pool.
		b.sets.take(h)
	case gpu.KindSampler:
		if s, ok := b.samplers.take(h); ok {
			b.deviceDriver.DestroySampler(s, nil)
		}
	case gpu.KindShaderModule:
		if m, ok := b.shaders.take(h); ok {
			b.deviceDriver.DestroyShaderModule(m, nil)
		}
	case gpu.KindCommandBuffer:
		if cb, ok := b.commandBuffers.take(h); ok {
			b.deviceDriver.FreeCommandBuffers(cb)
		}
	case gpu.KindFence:
		if f, ok := b.fences.take(h); ok {
			b.deviceDriver.DestroyFence(f, nil)
		}
	case gpu.KindSemaphore:
		if s, ok := b.semaphores.take(h); ok {
			b.deviceDriver.DestroySemaphore(s, nil)
		}
	}
}
